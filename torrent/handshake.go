package torrent

import (
	"fmt"
	"io"
)

const protocolName = "BitTorrent protocol"

// Handshake is the first message exchanged on a peer connection.
// See: https://wiki.theory.org/index.php/BitTorrentSpecification#Handshake
type Handshake struct {
	Protocol string
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

func NewHandshake(infoHash [20]byte, peerID string) *Handshake {
	h := &Handshake{Protocol: protocolName, InfoHash: infoHash}
	copy(h.PeerID[:], peerID)
	return h
}

func (h *Handshake) Bytes() []byte {
	buf := make([]byte, 0, 1+len(h.Protocol)+8+20+20)
	buf = append(buf, byte(len(h.Protocol)))
	buf = append(buf, h.Protocol...)
	buf = append(buf, h.Reserved[:]...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// ReadHandshake reads a handshake sent by a remote peer.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	pstrlenBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, pstrlenBuf); err != nil {
		return nil, fmt.Errorf("failed to read handshake: %w", err)
	}
	pstrlen := int(pstrlenBuf[0])
	if pstrlen == 0 {
		return nil, fmt.Errorf("handshake has empty protocol name")
	}
	restBuf := make([]byte, pstrlen+8+20+20)
	if _, err := io.ReadFull(r, restBuf); err != nil {
		return nil, fmt.Errorf("failed to read handshake: %w", err)
	}
	h := &Handshake{Protocol: string(restBuf[:pstrlen])}
	copy(h.Reserved[:], restBuf[pstrlen:pstrlen+8])
	copy(h.InfoHash[:], restBuf[pstrlen+8:pstrlen+28])
	copy(h.PeerID[:], restBuf[pstrlen+28:])
	if h.Protocol != protocolName {
		return nil, fmt.Errorf("unsupported protocol %q", h.Protocol)
	}
	return h, nil
}
