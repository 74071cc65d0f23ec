package prompt

import (
	"regexp"
	"strings"
)

// KeySeparator joins name and version in a node key
const KeySeparator = "_"

var whitespaceRun = regexp.MustCompile(`\s+`)

// Key builds the node key "{name}_{version}". Names may themselves contain
// underscores, so callers keep name and version alongside the key instead of
// splitting it back apart.
func Key(name, version string) string {
	return name + KeySeparator + version
}

// Normalize turns a typed prompt name into the slug submitted on create:
// lowercased, each whitespace run replaced by "-".
func Normalize(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}
