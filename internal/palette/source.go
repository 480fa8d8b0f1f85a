package palette

import (
	"strings"
)

// DefaultProxyBase is the palette proxy endpoint, ready for an encoded url
const DefaultProxyBase = "http://127.0.0.1:65432/palette?url="

// IsProxyCandidate reports whether a failed direct sample of url may be
// retried through the proxy at base. Inline data, blob handles and URLs
// already pointing at the proxy are never proxied.
func IsProxyCandidate(url, base string) bool {
	if url == "" {
		return false
	}
	if strings.HasPrefix(url, "data:") || strings.HasPrefix(url, "blob:") || strings.HasPrefix(url, base) {
		return false
	}
	// any other scheme is left for the proxy to validate (file:// for instance)
	return true
}

// ProxySource returns the proxy URL for url, or "" when url is not a proxy candidate
func ProxySource(url, base string) string {
	if !IsProxyCandidate(url, base) {
		return ""
	}
	return base + EncodeURIComponent(url)
}

// EncodeURIComponent percent-encodes s as UTF-8, leaving only
// A-Z a-z 0-9 - _ . ! ~ * ' ( ) unescaped.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreservedComponent(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}

func unreservedComponent(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
