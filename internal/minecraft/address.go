package minecraft

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// ParseAddress splits "host", "host:port" or "[ipv6]:port" into its parts.
// A bare IP literal, IPv6 included, is a host without port.
// hasPort reports whether the address carried an explicit port.
func ParseAddress(address string) (host string, port uint16, hasPort bool, err error) {
	if net.ParseIP(address) != nil {
		return address, 0, false, nil
	}

	u, err := url.Parse("//" + address)
	if err != nil {
		return "", 0, false, fmt.Errorf("%w %q: %w", ErrInvalidAddress, address, err)
	}
	if u.User != nil || u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return "", 0, false, fmt.Errorf("%w %q: only host and port are allowed", ErrInvalidAddress, address)
	}

	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("%w %q: empty host", ErrInvalidAddress, address)
	}

	raw := u.Port()
	if raw == "" {
		return host, 0, false, nil
	}

	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || n == 0 {
		return "", 0, false, fmt.Errorf("%w %q: bad port %q", ErrInvalidAddress, address, raw)
	}

	return host, uint16(n), true, nil
}
