package xapi

import "strings"

const idPlaceholder = ":id"

// EndpointKey normalizes a request path into the rate-limit bucket name.
// Segments of five or more digits collapse to ":id" so that per-user and
// per-tweet paths share one bucket; query strings are ignored.
func EndpointKey(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if len(seg) >= 5 && isDigits(seg) {
			segments[i] = idPlaceholder
		}
	}
	return strings.Join(segments, "/")
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
