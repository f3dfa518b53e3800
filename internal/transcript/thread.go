package transcript

import (
	"net/url"
	"strings"
)

// ThreadKey derives the durable storage key for a conversation from its
// page URL. The key depends only on the path component, so the same thread
// yields the same key regardless of origin, query, or trailing slash.
func ThreadKey(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "home"
	}
	return sanitize(path)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
