package chat

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// NormalizeContent composes Vietnamese diacritics into NFC and strips any markup,
// leaving plain text.
func NormalizeContent(s string) string {
	s = norm.NFC.String(s)
	if strings.ContainsAny(s, "<>") {
		s = html.UnescapeString(strictPolicy.Sanitize(s))
	}
	return strings.TrimSpace(s)
}

func contentLength(s string) int {
	return utf8.RuneCountInString(s)
}
