package torrent

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const compactPeerLen = 6

// PeerInfo is a peer address as received from the tracker.
type PeerInfo struct {
	IP   string
	Port uint16
}

func (p PeerInfo) Addr() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(int(p.Port)))
}

func (p PeerInfo) String() string {
	return p.Addr()
}

// parsePeers accepts both peer list encodings a tracker may use:
// a byte string of 6-byte blocks or a list of dictionaries with 'ip' and 'port'.
func parsePeers(respMap map[string]interface{}) ([]PeerInfo, error) {
	peers, ok := respMap["peers"]
	if !ok {
		return nil, fmt.Errorf("cannot find 'peers' field in the announce response")
	}
	switch peers := peers.(type) {
	case string:
		return parseCompactPeers([]byte(peers))
	case []interface{}:
		return parseDictPeers(peers)
	default:
		return nil, fmt.Errorf("'peers' field in the announce response is neither a string nor a list, got %T", peers)
	}
}

func parseCompactPeers(peersBytes []byte) ([]PeerInfo, error) {
	if len(peersBytes)%compactPeerLen != 0 {
		return nil, fmt.Errorf("'peers' field in the announce response has incorrect size %d, must be N * %d", len(peersBytes), compactPeerLen)
	}
	peersList := make([]PeerInfo, 0, len(peersBytes)/compactPeerLen)
	for i := 0; i < len(peersBytes); i += compactPeerLen {
		peer := peersBytes[i : i+compactPeerLen]
		var ipParts []string
		for _, b := range peer[:4] {
			ipParts = append(ipParts, strconv.Itoa(int(b)))
		}
		ip := strings.Join(ipParts, ".")
		port := binary.BigEndian.Uint16(peer[4:])
		peersList = append(peersList, PeerInfo{ip, port})
	}
	return peersList, nil
}

func parseDictPeers(peers []interface{}) ([]PeerInfo, error) {
	peersList := make([]PeerInfo, 0, len(peers))
	for i, item := range peers {
		dict, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("peer %d is not a dictionary, got %T", i, item)
		}
		ip, ok := dict["ip"].(string)
		if !ok || ip == "" {
			return nil, fmt.Errorf("peer %d has no 'ip' string", i)
		}
		port, ok := dict["port"].(int64)
		if !ok {
			return nil, fmt.Errorf("peer %d has no 'port' integer", i)
		}
		if port < 0 || port > 65535 {
			return nil, fmt.Errorf("peer %d has out of range port %d", i, port)
		}
		peersList = append(peersList, PeerInfo{IP: ip, Port: uint16(port)})
	}
	return peersList, nil
}
