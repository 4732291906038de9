package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

var ErrNoPortAvailable = errors.New("no free port to accept connections")

// ListenFirstFree tries every port from first to last in ascending order and returns
// the first listener that could be bound together with its port.
// When none can be bound the error wraps ErrNoPortAvailable and a *multierror.Error
// holding every bind failure.
func ListenFirstFree(host string, first, last uint16, listen func(network, address string) (net.Listener, error)) (net.Listener, uint16, error) {
	if first > last {
		return nil, 0, fmt.Errorf("%w: empty port range %d-%d", ErrNoPortAvailable, first, last)
	}
	if listen == nil {
		listen = net.Listen
	}
	var result *multierror.Error
	for port := int(first); port <= int(last); port++ {
		l, err := listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return l, uint16(port), nil
		}
		result = multierror.Append(result, err)
	}
	return nil, 0, fmt.Errorf("%w in range %d-%d: %w", ErrNoPortAvailable, first, last, result)
}
