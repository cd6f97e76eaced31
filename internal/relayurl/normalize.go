// Package relayurl canonicalizes relay URLs so that two spellings of the
// same endpoint compare equal.
package relayurl

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/Shugur-Network/relaymap/internal/errors"
)

var defaultPorts = map[string]int{
	"ws":  80,
	"wss": 443,
}

// Normalize returns the canonical form of a ws:// or wss:// relay URL.
// Scheme and host are lower-cased, default ports and trailing slashes are
// dropped, the fragment is removed. The result is stable under Normalize.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.InvalidURL(raw, "empty URL")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", errors.InvalidURL(raw, err.Error())
	}

	scheme := strings.ToLower(u.Scheme)
	defaultPort, ok := defaultPorts[scheme]
	if !ok {
		return "", errors.InvalidURL(raw, "scheme must be ws or wss")
	}
	if u.Opaque != "" {
		return "", errors.InvalidURL(raw, "missing // after scheme")
	}
	if u.User != nil {
		return "", errors.InvalidURL(raw, "user info is not allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.InvalidURL(raw, "missing host")
	}
	if strings.ContainsAny(host, " \t") {
		return "", errors.InvalidURL(raw, "host contains whitespace")
	}

	var port string
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return "", errors.InvalidURL(raw, "port out of range")
		}
		if n != defaultPort {
			port = strconv.Itoa(n)
		}
	}

	var hostport string
	switch {
	case port != "":
		hostport = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		hostport = "[" + host + "]"
	default:
		hostport = host
	}

	// Only literal trailing slashes are dropped; an escaped %2F is part of
	// the path.
	rawPath := strings.TrimRight(u.EscapedPath(), "/")
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", errors.InvalidURL(raw, err.Error())
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     hostport,
		Path:     path,
		RawPath:  rawPath,
		RawQuery: u.RawQuery,
	}
	return out.String(), nil
}

// NormalizeAll normalizes raws, dropping duplicates while keeping first-seen
// order. Inputs that fail to normalize are returned in invalid.
func NormalizeAll(raws []string) (valid []string, invalid []string) {
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		normalized, err := Normalize(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		valid = append(valid, normalized)
	}
	return valid, invalid
}
