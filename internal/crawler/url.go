package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// DedupKey reduces a URL to the identity used when deduplicating pages:
// scheme and host lowercased, default port dropped, query and fragment
// stripped, and an empty path replaced by "/".
func DedupKey(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	normalizeHost(u)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	return u.String(), nil
}

// StripQueryAndFragment renders u without its query string and fragment.
func StripQueryAndFragment(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	clean.ForceQuery = false
	clean.Fragment = ""
	clean.RawFragment = ""
	return clean.String()
}

// ParseStartURL validates that rawURL is an absolute http(s) URL with a host.
func ParseStartURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %v", ErrInvalidRequest, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: url must be absolute http(s), got %q", ErrInvalidRequest, rawURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: url has no host: %q", ErrInvalidRequest, rawURL)
	}
	u.Scheme = scheme
	return u, nil
}

// BaseDomain returns the scheme://host origin of u.
func BaseDomain(u *url.URL) string {
	return fmt.Sprintf("%s://%s", strings.ToLower(u.Scheme), strings.ToLower(u.Host))
}

// SameHost reports whether a and b name the same host, ignoring case and port.
func SameHost(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Hostname(), b.Hostname())
}

func normalizeHost(u *url.URL) {
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
}
