package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// StringArray maps a Postgres text[] column using the array literal form so
// it also round-trips through sqlite as plain text.
type StringArray []string

func (a *StringArray) Scan(src any) error {
	if src == nil {
		*a = StringArray{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return a.parse(v)
	case []byte:
		return a.parse(string(v))
	default:
		return fmt.Errorf("StringArray: unsupported Scan type %T", src)
	}
}

func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	parts := make([]string, 0, len(a))
	for _, item := range a {
		parts = append(parts, quoteElement(item))
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Contains reports whether value is an element of the array.
func (a StringArray) Contains(value string) bool {
	for _, item := range a {
		if item == value {
			return true
		}
	}
	return false
}

func (a *StringArray) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		*a = StringArray{}
		return nil
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return fmt.Errorf("StringArray: malformed literal %q", s)
	}
	body := s[1 : len(s)-1]

	out := []string{}
	var (
		current strings.Builder
		quoted  bool
		escaped bool
		wasQuot bool
	)
	flush := func() {
		item := current.String()
		if !wasQuot {
			item = strings.TrimSpace(item)
		}
		out = append(out, item)
		current.Reset()
		wasQuot = false
	}
	for _, r := range body {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
			wasQuot = true
		case r == ',' && !quoted:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if quoted {
		return fmt.Errorf("StringArray: unterminated quote in %q", s)
	}
	flush()

	*a = StringArray(out)
	return nil
}

func quoteElement(item string) string {
	if item != "" && !strings.ContainsAny(item, `{}," \`) && !strings.EqualFold(item, "null") {
		return item
	}
	escaped := strings.ReplaceAll(item, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
