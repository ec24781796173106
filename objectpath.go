package dbusconn

import "strings"

// ObjectPath is a validated D-Bus object path: ASCII, starts
// with '/', no empty segment except the root, segments restricted to
// [A-Za-z0-9_].
type ObjectPath string

// ValidateObjectPath checks p against the object-path grammar.
func ValidateObjectPath(p string) error {
	if p == "" || p[0] != '/' {
		return newErrf(KindCodecDecode, "object path %q must start with '/'", p)
	}
	if p == "/" {
		return nil
	}
	if strings.HasSuffix(p, "/") {
		return newErrf(KindCodecDecode, "object path %q has a trailing slash", p)
	}
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == "" {
			return newErrf(KindCodecDecode, "object path %q has an empty segment", p)
		}
		for _, c := range []byte(seg) {
			if !isPathSegmentByte(c) {
				return newErrf(KindCodecDecode, "object path %q has an invalid character %q", p, c)
			}
		}
	}
	return nil
}

func isPathSegmentByte(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
		return true
	default:
		return false
	}
}
