// Package client keeps track of the torrents being downloaded by this process
// and decides when there is nothing left to do.
package client

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"btclient/torrent"
)

const handshakeTimeout = 10 * time.Second

type Client struct {
	cfg      Config
	log      zerolog.Logger
	listener net.Listener
	port     uint16

	mu        sync.Mutex
	torrents  map[[20]byte]*torrent.Tracker
	downloads map[string]*torrent.Download
	done      chan struct{}
	finished  bool
}

// New binds the first free port of the configured range.
// An error wrapping ErrNoPortAvailable means the client can't run at all.
func New(cfg Config) (*Client, error) {
	l, port, err := ListenFirstFree(cfg.Host, cfg.PortFirst, cfg.PortLast, cfg.Listen)
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:       cfg,
		log:       cfg.Logger,
		listener:  l,
		port:      port,
		torrents:  make(map[[20]byte]*torrent.Tracker),
		downloads: make(map[string]*torrent.Download),
		done:      make(chan struct{}),
	}
	c.log.Info().Uint16("port", port).Str("peer_id", cfg.PeerID).Msg("listening")
	return c, nil
}

func (c *Client) Port() uint16 {
	return c.port
}

func (c *Client) PeerID() string {
	return c.cfg.PeerID
}

func (c *Client) Listener() net.Listener {
	return c.listener
}

// Done is closed once the last active download completes.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Start adds every torrent in paths. If none of them could be added there is nothing to wait for
// and Done is closed right away.
func (c *Client) Start(ctx context.Context, paths []string) {
	for _, path := range paths {
		c.AddTorrent(ctx, path)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.downloads) == 0 {
		c.log.Info().Msg("no torrents to download")
		c.finish()
	}
}

// AddTorrent starts downloading the torrent at path unless it is already active.
// Failures leave no trace besides a log event; the result tells whether path is active.
func (c *Client) AddTorrent(ctx context.Context, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.downloads[path]; ok {
		return true
	}

	if c.cfg.AnnounceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AnnounceTimeout)
		defer cancel()
	}
	opts := []torrent.TrackerOption{torrent.WithLogger(c.log)}
	if c.cfg.HTTPClient != nil {
		opts = append(opts, torrent.WithHTTPClient(c.cfg.HTTPClient))
	}
	d, err := torrent.NewDownload(ctx, path, c.port, c.cfg.PeerID, opts...)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Str("kind", errorKind(err)).Msg("torrent was not added")
		return false
	}

	infoHash := d.InfoHash()
	c.torrents[infoHash] = d.Tracker
	c.downloads[path] = d
	resp := d.Tracker.Response()
	c.log.Info().
		Str("path", path).
		Hex("info_hash", infoHash[:]).
		Int("peers", len(resp.Peers)).
		Int64("complete", resp.Complete).
		Int64("incomplete", resp.Incomplete).
		Msg("torrent added")
	return true
}

// DownloadComplete marks path as finished. When it was the last active download Done is closed.
func (c *Client) DownloadComplete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.downloads[path]; !ok {
		return
	}
	delete(c.downloads, path)
	c.log.Info().Str("path", path).Msg("download complete")
	if len(c.downloads) == 0 {
		c.finish()
	}
}

func (c *Client) finish() {
	if c.finished {
		return
	}
	c.finished = true
	close(c.done)
}

// Tracker returns the tracker of the torrent with the given info hash, for routing incoming peers.
func (c *Client) Tracker(infoHash [20]byte) (*torrent.Tracker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.torrents[infoHash]
	return t, ok
}

// Active returns the paths of the active downloads in sorted order.
func (c *Client) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.downloads))
	for path := range c.downloads {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Serve accepts incoming connections until the listener is closed.
func (c *Client) Serve() error {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		c.AcceptedConnection(conn)
	}
}

// AcceptedConnection reads the handshake of an incoming peer and looks up the torrent it asks for.
// TODO: hand the connection over to the peer manager of that torrent instead of closing it.
func (c *Client) AcceptedConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	log := c.log.With().Str("addr", conn.RemoteAddr().String()).Logger()
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	h, err := torrent.ReadHandshake(conn)
	if err != nil {
		log.Debug().Err(err).Msg("incoming connection dropped")
		return
	}
	if _, ok := c.Tracker(h.InfoHash); !ok {
		log.Debug().Hex("info_hash", h.InfoHash[:]).Msg("incoming peer for unknown torrent")
		return
	}
	log.Debug().Hex("info_hash", h.InfoHash[:]).Msg("incoming peer")
}

func (c *Client) Close() error {
	return c.listener.Close()
}

func errorKind(err error) string {
	if kind := torrent.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "metainfo"
}
