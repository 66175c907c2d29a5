package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, folds whitespace runs and control characters
// into single spaces and caps the result at maxLen runes (0 means no cap).
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	n, pendingSpace := 0, false
	for _, r := range input {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if maxLen > 0 && n >= maxLen {
			break
		}
		if pendingSpace {
			if maxLen > 0 && n+1 >= maxLen {
				break
			}
			b.WriteByte(' ')
			n++
			pendingSpace = false
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
