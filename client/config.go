package client

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const peerIDPrefix = "-BC0001-"

// Config is everything a Client needs; nothing is read from package state.
type Config struct {
	// PeerID identifies this client to trackers and peers.
	PeerID string
	// Host is the address the listener binds to.
	Host string
	// PortFirst and PortLast bound the inclusive range scanned for a listening port.
	PortFirst uint16
	PortLast  uint16
	// AnnounceTimeout bounds each tracker announce. Zero means no limit.
	AnnounceTimeout time.Duration
	Logger          zerolog.Logger
	HTTPClient      *http.Client
	// Listen binds the listener; net.Listen when nil.
	Listen func(network, address string) (net.Listener, error)
}

func DefaultConfig() Config {
	return Config{
		PeerID:          NewPeerID(time.Now()),
		Host:            "localhost",
		PortFirst:       6881,
		PortLast:        6889,
		AnnounceTimeout: 30 * time.Second,
		Logger:          zerolog.Nop(),
		HTTPClient:      http.DefaultClient,
	}
}

// NewPeerID returns a 20 byte peer id made of the client prefix and the zero padded Unix time.
func NewPeerID(now time.Time) string {
	return fmt.Sprintf("%s%012d", peerIDPrefix, now.Unix())
}
