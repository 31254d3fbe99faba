package uploads

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackName = "upload"

// asciiFold decomposes characters (NFKD) and drops everything outside ASCII,
// so "façade.jpg" becomes "facade.jpg".
var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
})))

// SanitizeFilename returns a filesystem-safe version of a client-supplied file
// name. Path separators become spaces, runs of whitespace become a single
// underscore, and only [A-Za-z0-9_.-] survive. Leading and trailing dots and
// underscores are trimmed so the result can never be "..", a hidden file or an
// absolute path.
func SanitizeFilename(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}

	folded = strings.NewReplacer("/", " ", "\\", " ").Replace(folded)
	folded = strings.Join(strings.Fields(folded), "_")

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return fallbackName
	}
	return out
}

// StoredName combines a record identifier with the sanitized original name.
func StoredName(id uuid.UUID, original string) string {
	return id.String() + "_" + SanitizeFilename(original)
}
