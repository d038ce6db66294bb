package simple

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicyAllowURL(t *testing.T) {
	t.Parallel()

	site, err := url.Parse("https://example.com/")
	require.NoError(t, err)

	tests := []struct {
		raw  string
		want bool
	}{
		{raw: "https://example.com/about", want: true},
		{raw: "http://EXAMPLE.com/contact", want: true},
		{raw: "https://example.com:8443/x", want: true},
		{raw: "https://example.com/brochure.PDF", want: false},
		{raw: "https://example.com/logo.png", want: false},
		{raw: "https://blog.example.com/", want: false},
		{raw: "https://other.com/", want: false},
		{raw: "mailto:info@example.com", want: false},
		{raw: "ftp://example.com/file", want: false},
	}
	p := New()
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.want, p.AllowURL(u, site))
		})
	}
}

func TestPolicyCustomExtensions(t *testing.T) {
	t.Parallel()

	site, _ := url.Parse("https://example.com/")
	p := New("pdf")
	png, _ := url.Parse("https://example.com/a.png")
	pdf, _ := url.Parse("https://example.com/a.pdf")
	require.True(t, p.AllowURL(png, site))
	require.False(t, p.AllowURL(pdf, site))
	require.False(t, p.AllowURL(nil, site))
}
