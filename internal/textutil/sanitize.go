package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// titleReplacer swaps path separators so a title can be used as a filename component.
var titleReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
)

// fileNameReplacer removes characters that break quoted header parameters or filesystems.
var fileNameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	";", "",
)

// SanitizeTitle replaces path separators with underscores and otherwise leaves
// the title unchanged. An empty or whitespace-only title yields fallback.
func SanitizeTitle(title, fallback string) string {
	if strings.TrimSpace(title) == "" {
		return fallback
	}
	return titleReplacer.Replace(title)
}

// ASCIIFileName folds a display name into a plain ASCII filename suitable for
// the legacy filename parameter of Content-Disposition. Accents are stripped,
// unsafe characters removed, and ext appended. Returns "" when nothing usable
// remains.
func ASCIIFileName(name, ext string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range fileNameReplacer.Replace(folded) {
		switch {
		case r > unicode.MaxASCII, unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	base := strings.Join(strings.Fields(b.String()), " ")
	base = strings.Trim(base, ". ")
	if base == "" {
		return ""
	}
	return base + ext
}
