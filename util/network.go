package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ResolveAddr builds a host:port string, validating that the host is a
// numeric IP when noDNS is true.
func ResolveAddr(host string, port int, noDNS bool) (string, error) {
	if host == "" {
		return "", fmt.Errorf("adapter host is empty")
	}
	if noDNS && net.ParseIP(host) == nil {
		return "", fmt.Errorf("cannot parse %q as an IP address (DNS disabled with -n)", host)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// SplitHostPort parses "host" or "host:port", falling back to
// defaultPort when no port is given.
func SplitHostPort(s string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port component: the whole string is the host.
		if net.ParseIP(s) != nil || !strings.Contains(s, ":") {
			return s, defaultPort, nil
		}
		return "", 0, fmt.Errorf("invalid adapter address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid adapter port %q", portStr)
	}
	return host, port, nil
}
