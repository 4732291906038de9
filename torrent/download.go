package torrent

import (
	"context"
)

// Download ties a torrent file on disk to its metainfo and the tracker serving its peers.
type Download struct {
	Path    string
	Torrent *File
	Tracker *Tracker
}

// NewDownload parses the torrent at path and makes the initial announce for it.
// Metainfo errors are returned as is, tracker errors as *TrackerError.
func NewDownload(ctx context.Context, path string, port uint16, peerID string, opts ...TrackerOption) (*Download, error) {
	tFile, err := Parse(path)
	if err != nil {
		return nil, err
	}
	tracker, err := NewTracker(ctx, tFile, port, peerID, opts...)
	if err != nil {
		return nil, err
	}
	return &Download{Path: path, Torrent: tFile, Tracker: tracker}, nil
}

func (d *Download) InfoHash() [20]byte {
	return d.Torrent.InfoHash()
}
