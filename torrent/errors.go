package torrent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an announce did not produce a usable tracker response.
type ErrorKind int

const (
	// Unreachable means the tracker could not be contacted or did not answer in time.
	Unreachable ErrorKind = iota + 1
	// Failure means the tracker answered with a 'failure reason'.
	Failure
	// InvalidResponse means the answer was missing required fields or was not valid bencode.
	InvalidResponse
)

func (k ErrorKind) String() string {
	switch k {
	case Unreachable:
		return "tracker_unreachable"
	case Failure:
		return "tracker_failure"
	case InvalidResponse:
		return "tracker_invalid_response"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels matched by TrackerError through errors.Is.
var (
	ErrTrackerUnreachable     = errors.New("tracker unreachable")
	ErrTrackerFailure         = errors.New("tracker failure")
	ErrTrackerInvalidResponse = errors.New("invalid tracker response")
)

var (
	ErrPeersRemaining  = errors.New("peer list is not exhausted yet")
	ErrAnnounceTooSoon = errors.New("tracker min interval has not elapsed")
)

// TrackerError is returned by NewTracker and Tracker.Reannounce.
type TrackerError struct {
	Kind ErrorKind
	URL  string
	// Reason is the tracker's 'failure reason' verbatim, set only for Failure.
	Reason string
	Err    error
}

func (e *TrackerError) Error() string {
	switch e.Kind {
	case Failure:
		return fmt.Sprintf("announce to %s failed: %s", e.URL, e.Reason)
	case Unreachable:
		return fmt.Sprintf("can't connect to the tracker at %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("invalid response from the tracker at %s: %v", e.URL, e.Err)
	}
}

func (e *TrackerError) Unwrap() error {
	return e.Err
}

func (e *TrackerError) Is(target error) bool {
	switch target {
	case ErrTrackerUnreachable:
		return e.Kind == Unreachable
	case ErrTrackerFailure:
		return e.Kind == Failure
	case ErrTrackerInvalidResponse:
		return e.Kind == InvalidResponse
	}
	return false
}

// KindOf returns the ErrorKind of the first TrackerError in err's chain, or 0 if there is none.
func KindOf(err error) ErrorKind {
	var te *TrackerError
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

func unreachable(url string, err error) *TrackerError {
	return &TrackerError{Kind: Unreachable, URL: url, Err: err}
}

func invalidResponse(url string, err error) *TrackerError {
	return &TrackerError{Kind: InvalidResponse, URL: url, Err: err}
}
