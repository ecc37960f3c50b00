package analysis

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"ouroboros/internal/ir"
	"ouroboros/internal/memory"
)

// EscapeUnprintable returns a string where printable Unicode runes are preserved.
// Control and unprintable runes are escaped as \uXXXX. Invalid UTF-8 is escaped as \xXX.
func EscapeUnprintable(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&sb, "\\x%02X", b[0])
		case r == '"' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case unicode.IsPrint(r):
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\t':
			sb.WriteString(`\t`)
		default:
			fmt.Fprintf(&sb, "\\u%04X", r)
		}
		b = b[size:]
	}
	return sb.String()
}

// ReadCString reads the NUL-terminated string at a inside a Data literal.
// Strings shorter than MinStringLength, unterminated within MaxStringLength,
// or holding bytes that are neither printable nor whitespace are rejected.
func ReadCString(space *memory.Space, a ir.Address) (string, bool) {
	raw, ok := space.ReadData(a, MaxStringLength)
	if !ok {
		return "", false
	}
	n := -1
	for i, b := range raw {
		if b == 0 {
			n = i
			break
		}
	}
	if n < MinStringLength {
		return "", false
	}
	s := raw[:n]
	for len(s) > 0 {
		r, size := utf8.DecodeRune(s)
		if r == utf8.RuneError || !(unicode.IsPrint(r) || unicode.IsSpace(r)) {
			return "", false
		}
		s = s[size:]
	}
	return string(raw[:n]), true
}

// StringAt returns the quoted, escaped string a constant points at.
func (s *Session) StringAt(a ir.Address) (string, bool) {
	str, ok := ReadCString(s.Space, a)
	if !ok {
		return "", false
	}
	return `"` + EscapeUnprintable([]byte(str)) + `"`, true
}
