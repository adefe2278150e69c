package planmodel

import (
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
)

var unsafePathChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// RepoKey turns a repo reference ("owner/repo" or a full URL) into a
// filesystem-safe cache-directory name, suffixed with a short content hash
// to avoid collisions between repos that sanitise to the same label (e.g.
// "Foo/Bar" and "foo-bar").
func RepoKey(ref string) string {
	label := SanitiseID(ref)
	h := blake3.Sum256([]byte(ref))
	suffix := toHex(h[:4])
	if label == "" {
		return suffix
	}
	return label + "-" + suffix
}

// SanitiseID lowercases and strips a free-form string down to
// [a-z0-9._-]+, per the filesystem-paths-as-identifiers rule applied to
// every id used as a path segment.
func SanitiseID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = unsafePathChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-._")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}

func toHex(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0xf]
	}
	return string(out)
}
