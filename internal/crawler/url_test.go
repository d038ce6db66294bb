package crawler

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "https://Example.com", want: "https://example.com/"},
		{in: "http://example.com:80/a?x=1#top", want: "http://example.com/a"},
		{in: "https://example.com:443/a?", want: "https://example.com/a"},
		{in: "https://example.com:8443/a", want: "https://example.com:8443/a"},
	}
	for _, tt := range tests {
		got, err := DedupKey(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.in)
	}
	_, err := DedupKey("http://[::1")
	require.Error(t, err)
}

func TestStripQueryAndFragment(t *testing.T) {
	t.Parallel()

	u, err := url.Parse("https://example.com/a/b?q=1#x")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a/b", StripQueryAndFragment(u))
	require.Equal(t, "q=1", u.RawQuery, "input must not be modified")
}

func TestParseStartURL(t *testing.T) {
	t.Parallel()

	u, err := ParseStartURL("  HTTPS://acme.example/start  ")
	require.NoError(t, err)
	require.Equal(t, "https", u.Scheme)
	require.Equal(t, "https://acme.example", BaseDomain(u))

	for _, bad := range []string{"", "acme.example", "mailto:a@b.c", "https://", "http://[::1"} {
		_, err := ParseStartURL(bad)
		require.True(t, errors.Is(err, ErrInvalidRequest), "input %q", bad)
	}
}

func TestSameHost(t *testing.T) {
	t.Parallel()

	a, _ := url.Parse("https://Example.com:8443/x")
	b, _ := url.Parse("http://example.COM/y")
	c, _ := url.Parse("https://www.example.com/")
	require.True(t, SameHost(a, b))
	require.False(t, SameHost(a, c))
	require.False(t, SameHost(a, nil))
}

func TestFailureFromError(t *testing.T) {
	t.Parallel()

	f := failureFromError("https://x", &FetchError{Kind: FetchHTTPError, URL: "https://x", StatusCode: 503})
	require.Equal(t, "http_error", f.Kind)
	require.Equal(t, 503, f.StatusCode)

	f = failureFromError("https://x", errors.New("boom"))
	require.Equal(t, "network_error", f.Kind)
	require.Equal(t, "boom", f.Error)
}
