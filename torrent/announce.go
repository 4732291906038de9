package torrent

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/bencode"
)

const (
	// EventStarted must be sent with the first announce for a torrent.
	EventStarted = "started"
	// EventNone is a regular announce; the 'event' parameter is omitted.
	EventNone = ""
)

// AnnounceRequest holds the tracker request parameters.
// See: https://wiki.theory.org/index.php/BitTorrentSpecification#Tracker_Request_Parameters
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerID     string
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Compact    bool
	Event      string
	TrackerID  string
}

// Values encodes the request as URL query parameters.
func (r *AnnounceRequest) Values() url.Values {
	params := url.Values{}
	params.Set("info_hash", string(r.InfoHash[:]))
	params.Set("peer_id", r.PeerID)
	params.Set("port", strconv.Itoa(int(r.Port)))
	params.Set("uploaded", strconv.FormatInt(r.Uploaded, 10))
	params.Set("downloaded", strconv.FormatInt(r.Downloaded, 10))
	params.Set("left", strconv.FormatInt(r.Left, 10))
	if r.Compact {
		params.Set("compact", "1")
	}
	if r.Event != EventNone {
		params.Set("event", r.Event)
	}
	if r.TrackerID != "" {
		params.Set("trackerid", r.TrackerID)
	}
	return params
}

// TrackerResponse is a successfully validated announce response.
type TrackerResponse struct {
	WarningMessage string
	MinInterval    int64
	TrackerId      string
	Interval       int64
	Complete       int64
	Incomplete     int64
	Peers          []PeerInfo
}

// Tracker talks to the tracker of a single torrent and hands out the peers it returned.
// A Tracker must not be used from several goroutines at once.
type Tracker struct {
	file   *File
	port   uint16
	peerID string

	uploaded   int64
	downloaded int64
	trackerID  string

	resp         *TrackerResponse
	peers        []PeerInfo
	lastAnnounce time.Time

	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

type TrackerOption func(*Tracker)

func WithHTTPClient(c *http.Client) TrackerOption {
	return func(t *Tracker) { t.client = c }
}

func WithLogger(l zerolog.Logger) TrackerOption {
	return func(t *Tracker) { t.log = l }
}

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker makes the 'started' announce request to the tracker of f.
// If the tracker can't be contacted or returns an unusable response the error is a *TrackerError.
func NewTracker(ctx context.Context, f *File, port uint16, peerID string, opts ...TrackerOption) (*Tracker, error) {
	t := &Tracker{
		file:   f,
		port:   port,
		peerID: peerID,
		client: http.DefaultClient,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With().Str("tracker", f.Announce()).Logger()

	resp, err := t.announce(ctx, EventStarted)
	if err != nil {
		return nil, err
	}
	t.setResponse(resp)
	return t, nil
}

func (t *Tracker) URL() string {
	return t.file.Announce()
}

// Response returns the last successful announce response.
func (t *Tracker) Response() *TrackerResponse {
	return t.resp
}

// Remaining is the number of peers not yet handed out by GetPeers.
func (t *Tracker) Remaining() int {
	return len(t.peers)
}

// GetPeers removes up to n peers from the front of the peer list and returns them.
// Once the list is exhausted it returns an empty slice.
func (t *Tracker) GetPeers(n int) []PeerInfo {
	if n < 0 {
		n = 0
	}
	if n > len(t.peers) {
		n = len(t.peers)
	}
	peers := make([]PeerInfo, n)
	copy(peers, t.peers[:n])
	t.peers = t.peers[n:]
	return peers
}

// Reannounce asks the tracker for a fresh peer list. It is only allowed once every peer
// has been handed out and the tracker's min interval has passed since the previous announce.
// On failure the previous response stays in place.
func (t *Tracker) Reannounce(ctx context.Context) (*TrackerResponse, error) {
	if len(t.peers) > 0 {
		return nil, ErrPeersRemaining
	}
	next := t.lastAnnounce.Add(time.Duration(t.resp.MinInterval) * time.Second)
	if t.now().Before(next) {
		return nil, fmt.Errorf("%w: next announce allowed at %s", ErrAnnounceTooSoon, next.Format(time.RFC3339))
	}
	resp, err := t.announce(ctx, EventNone)
	if err != nil {
		return nil, err
	}
	t.setResponse(resp)
	return resp, nil
}

func (t *Tracker) setResponse(resp *TrackerResponse) {
	t.resp = resp
	t.peers = resp.Peers
	t.lastAnnounce = t.now()
	if resp.TrackerId != "" {
		t.trackerID = resp.TrackerId
	}
}

func (t *Tracker) request(event string) *AnnounceRequest {
	return &AnnounceRequest{
		InfoHash:   t.file.InfoHash(),
		PeerID:     t.peerID,
		Port:       t.port,
		Uploaded:   t.uploaded,
		Downloaded: t.downloaded,
		Left:       t.file.Length() - t.downloaded,
		Compact:    true,
		Event:      event,
		TrackerID:  t.trackerID,
	}
}

func (t *Tracker) announce(ctx context.Context, event string) (*TrackerResponse, error) {
	announceURL := t.file.Announce()
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, unreachable(announceURL, fmt.Errorf("failed to parse announce URL: %w", err))
	}
	q := u.Query()
	for k, vs := range t.request(event).Values() {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	fullUrl := u.String()
	t.log.Debug().Str("url", fullUrl).Str("event", event).Msg("announcing")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, nil)
	if err != nil {
		return nil, unreachable(announceURL, fmt.Errorf("failed to build request: %w", err))
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, unreachable(announceURL, fmt.Errorf("get request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	bodyBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, unreachable(announceURL, fmt.Errorf("failed to read response body: %w", err))
	}

	tResp, err := t.parseResponse(bodyBytes)
	var te *TrackerError
	if errors.As(err, &te) && te.Kind == Failure {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, invalidResponse(announceURL, fmt.Errorf("unexpected status %s", resp.Status))
	}
	if err != nil {
		return nil, err
	}
	if tResp.WarningMessage != "" {
		t.log.Warn().Str("warning", tResp.WarningMessage).Msg("tracker returned a warning")
	}
	return tResp, nil
}

// See: https://wiki.theory.org/index.php/BitTorrentSpecification#Tracker_Response
func (t *Tracker) parseResponse(body []byte) (*TrackerResponse, error) {
	announceURL := t.file.Announce()
	var respMap map[string]interface{}
	if err := bencode.DecodeBytes(body, &respMap); err != nil {
		return nil, invalidResponse(announceURL, fmt.Errorf("failed to parse announce response: %w", err))
	}
	t.log.Debug().Interface("response", respMap).Msg("decoded announce response")

	if fail, ok := respMap["failure reason"]; ok {
		return nil, &TrackerError{Kind: Failure, URL: announceURL, Reason: fmt.Sprint(fail)}
	}

	var tResp TrackerResponse
	var err error
	if warn, ok := respMap["warning message"]; ok {
		tResp.WarningMessage = fmt.Sprint(warn)
	}
	if tResp.MinInterval, err = intField(respMap, "min interval", false); err != nil {
		return nil, invalidResponse(announceURL, err)
	}
	if tID, ok := respMap["tracker id"]; ok {
		if tResp.TrackerId, ok = tID.(string); !ok {
			return nil, invalidResponse(announceURL, fmt.Errorf("'tracker id' field is not a string, got %T", tID))
		}
	}
	if tResp.Interval, err = intField(respMap, "interval", true); err != nil {
		return nil, invalidResponse(announceURL, err)
	}
	if tResp.Complete, err = intField(respMap, "complete", true); err != nil {
		return nil, invalidResponse(announceURL, err)
	}
	if tResp.Incomplete, err = intField(respMap, "incomplete", true); err != nil {
		return nil, invalidResponse(announceURL, err)
	}
	if tResp.Peers, err = parsePeers(respMap); err != nil {
		return nil, invalidResponse(announceURL, err)
	}
	return &tResp, nil
}

func intField(respMap map[string]interface{}, key string, required bool) (int64, error) {
	v, ok := respMap[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("cannot find '%s' field in the announce response", key)
		}
		return 0, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("'%s' field in the announce response is not an integer, got %T", key, v)
	}
	return n, nil
}
