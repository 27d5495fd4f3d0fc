package shortlink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"snipr.local/internal/app/shortlink"
)

func TestIsAbsoluteHTTPURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com":        true,
		"http://example.com/a?b=c#d": true,
		"HTTPS://EXAMPLE.COM":        true,
		"http://localhost:8080":      true,
		"ftp://example.com":          false,
		"example.com":                false,
		"not a url":                  false,
		"https://":                   false,
		"":                           false,
		"javascript:alert(1)":        false,
		"http://[::1]:80/x":          true,
	}
	for in, want := range cases {
		assert.Equal(t, want, shortlink.IsAbsoluteHTTPURL(in), in)
	}
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com", shortlink.NormalizeURL("example.com"))
	assert.Equal(t, "https://example.com/x", shortlink.NormalizeURL("  example.com/x "))
	assert.Equal(t, "http://example.com", shortlink.NormalizeURL("http://example.com"))
	assert.Equal(t, "ftp://example.com", shortlink.NormalizeURL("ftp://example.com"))
	assert.Equal(t, "", shortlink.NormalizeURL("   "))
}

func TestHasDottedHostname(t *testing.T) {
	assert.True(t, shortlink.HasDottedHostname("https://example.com"))
	assert.True(t, shortlink.HasDottedHostname("http://127.0.0.1:8080"))
	assert.False(t, shortlink.HasDottedHostname("http://localhost"))
	assert.False(t, shortlink.HasDottedHostname("::"))
}

func TestValidateAlias(t *testing.T) {
	for _, ok := range []string{"demo", "my-link", "a_b.c", "A1", "x"} {
		assert.NoError(t, shortlink.ValidateAlias(ok), ok)
	}
	for _, bad := range []string{"a b", "a/b", "ü", "..", "API", "healthz", "metrics", "0123456789012345678901234567890123"} {
		assert.ErrorIs(t, shortlink.ValidateAlias(bad), shortlink.ErrValidation, bad)
	}
}

func TestValidToken(t *testing.T) {
	assert.True(t, shortlink.ValidToken("AbCd_-12"))
	assert.True(t, shortlink.ValidToken("my.alias"))
	assert.False(t, shortlink.ValidToken(""))
	assert.False(t, shortlink.ValidToken("a%20b"))
}
