package session

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the collector's well-known port.
const DefaultPort = 8765

// ErrInvalidEndpoint rejects host text before any I/O happens.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Endpoint is the collector address for one session. It is fixed when the
// session starts; targeting another host means Stop then Start.
type Endpoint struct {
	Host string
	Port int
}

// URL returns ws://<host>:<port>.
func (e Endpoint) URL() string {
	return "ws://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string { return e.URL() }

// ParseEndpoint validates user-supplied host text. It accepts a hostname,
// an IPv4 address or an IPv6 address (bracketed or not); anything carrying
// a scheme, port, path or whitespace is rejected.
func ParseEndpoint(hostText string, port int) (Endpoint, error) {
	host := strings.TrimSpace(hostText)
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: host is empty", ErrInvalidEndpoint)
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: port %d out of range", ErrInvalidEndpoint, port)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	if ip := net.ParseIP(host); ip != nil {
		return Endpoint{Host: host, Port: port}, nil
	}
	if !validHostname(host) {
		return Endpoint{}, fmt.Errorf("%w: malformed host %q", ErrInvalidEndpoint, hostText)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// validHostname checks RFC 1123 label syntax. A name whose last label is
// all digits is malformed IPv4 text, since net.ParseIP already rejected it.
func validHostname(host string) bool {
	if len(host) > 253 {
		return false
	}
	labels := strings.Split(host, ".")
	if allDigits(labels[len(labels)-1]) {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
