package query

import "strings"

var normalizeReplacer = strings.NewReplacer(
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
	"?", " ", "!", " ", ";", " ",
	"(", " ", ")", " ", "\"", " ", "'", " ", "`", " ",
	"’", " ", "“", " ", "”", " ",
)

// Normalize case-folds the query, maps dash variants to "-", turns sentence
// punctuation into spaces and collapses whitespace. Characters that carry
// meaning for dates and clock times (":", "/", "-", ",", ".") are kept.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}
	s := normalizeReplacer.Replace(strings.ToLower(raw))
	return strings.Join(strings.Fields(s), " ")
}
