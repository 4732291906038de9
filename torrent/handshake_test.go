package torrent

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHandshake(t *testing.T) {
	var infoHash [20]byte
	copy(infoHash[:], "0123456789abcdefghij")
	sent := NewHandshake(infoHash, testPeerID)
	raw := sent.Bytes()
	require.Len(t, raw, 68)

	got, err := ReadHandshake(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, sent, got)
	assert.Equal(t, testPeerID, string(got.PeerID[:]))
}

func TestReadHandshakeInvalid(t *testing.T) {
	valid := NewHandshake([20]byte{1}, testPeerID).Bytes()
	other := append([]byte{4}, "HTTP"...)
	other = append(other, make([]byte, 48)...)

	tests := map[string][]byte{
		"empty":          {},
		"zero length":    {0},
		"truncated":      valid[:40],
		"other protocol": other,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadHandshake(bytes.NewReader(data))
			assert.Error(t, err)
		})
	}
}
