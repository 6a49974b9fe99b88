package matching

import (
	"strings"
	"unicode"
)

// aliases folds common spellings of the same place or language onto one key.
var aliases = map[string]string{
	"tel aviv yafo":        "tel aviv",
	"tel aviv jaffa":       "tel aviv",
	"tlv":                  "tel aviv",
	"yerushalayim":         "jerusalem",
	"modiin maccabim reut": "modiin",
	"beer sheva":           "beersheba",
	"ivrit":                "hebrew",
}

// normalize lowercases v, turns separators into single spaces, drops other
// punctuation and resolves aliases, so "Tel-Aviv_Yafo" and "tel aviv" compare
// equal.
func normalize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}

	b := strings.Builder{}
	b.Grow(len(v))
	lastWasSpace := true
	for _, r := range strings.ToLower(v) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastWasSpace = false
		case unicode.IsSpace(r) || r == '_' || r == '-' || r == '/':
			if !lastWasSpace {
				b.WriteByte(' ')
				lastWasSpace = true
			}
		}
	}

	out := strings.TrimSpace(b.String())
	if a, ok := aliases[out]; ok {
		return a
	}
	return out
}
