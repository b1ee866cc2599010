package aria

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// yamlSpecials are values that a YAML parser would read as booleans or null;
// they must be quoted to survive as strings.
var yamlSpecials = map[string]bool{
	"y": true, "n": true, "yes": true, "no": true,
	"true": true, "false": true, "on": true, "off": true,
	"null": true,
}

// NeedsQuoting reports whether s cannot appear as a bare YAML scalar.
func NeedsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	if strings.HasPrefix(s, "-") {
		return true
	}
	if strings.Contains(s, ": ") || strings.Contains(s, ":\n") || strings.HasSuffix(s, ":") {
		return true
	}
	if strings.Contains(s, " #") {
		return true
	}
	if strings.ContainsAny(s, "\n\r") {
		return true
	}
	switch s[0] {
	case '&', '*', ',', '?', '!', '>', '|', '@', '"', '\'', '#', '%', '[':
		return true
	}
	if strings.ContainsAny(s, `"\'`) {
		return true
	}
	if strings.ContainsAny(s, "{}`") {
		return true
	}
	if yamlSpecials[strings.ToLower(s)] {
		return true
	}
	// Numeric-looking strings must be quoted so a YAML reader keeps them as
	// strings. ParseFloat accepts more forms than most YAML readers (hex
	// floats like "0x1p4", underscore-grouped digits), so a few extra
	// strings get quoted; over-quoting never changes meaning.
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}

// EscapeKey quotes s for use as a YAML map key. Keys use single quotes;
// embedded single quotes are doubled.
func EscapeKey(s string) string {
	if !NeedsQuoting(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// EscapeValue quotes s for use as a YAML value. Values use double quotes
// with a full escape table; control characters outside the named escapes
// become \xHH.
func EscapeValue(s string) string {
	if !NeedsQuoting(s) {
		return s
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if unicode.IsControl(r) {
				fmt.Fprintf(&sb, `\x%02x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
