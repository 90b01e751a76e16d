package webhook

import "strings"

// NormalizeProjectName turns a free-form name into a session-safe one: spaces
// become hyphens, letters are lowercased and anything other than ASCII letters,
// digits, '-' or '_' is dropped. The result may be empty.
func NormalizeProjectName(name string) string {
	name = strings.ToLower(strings.ReplaceAll(name, " ", "-"))

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
