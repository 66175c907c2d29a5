package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"trims", "  Ada  ", 0, "Ada"},
		{"folds inner whitespace", "Mary \t\n Jane", 0, "Mary Jane"},
		{"drops control chars", "Jo\x00hn", 0, "Jo hn"},
		{"caps by rune", "Ñandúes", 3, "Ñan"},
		{"no trailing space at cap", "ab cd", 3, "ab"},
		{"blank", " \n ", 10, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeString(tc.in, tc.max))
		})
	}
}
