// Package colorize highlights pseudo-code and listings for the terminal.
// Setting OUROBOROS_NO_COLOR disables it.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// EnvNoColor disables highlighting when set to any value.
const EnvNoColor = "OUROBOROS_NO_COLOR"

// Disabled reports whether highlighting is turned off.
func Disabled() bool {
	return os.Getenv(EnvNoColor) != ""
}

// getLexer returns the first available lexer among names.
func getLexer(names ...string) chroma.Lexer {
	for _, name := range names {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getStyle returns the ouroboros style with fallbacks
func getStyle() *chroma.Style {
	candidates := []string{StyleName, "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

func highlight(code string, lexer chroma.Lexer) (string, error) {
	if Disabled() || lexer == nil {
		return code, nil
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// Pseudo highlights decompiled pseudo-code with the C lexer.
func Pseudo(code string) (string, error) {
	return highlight(code, getLexer("c", "C", "cpp"))
}

// Assembly highlights x86 listing text with the nasm lexer.
func Assembly(code string) (string, error) {
	return highlight(code, getLexer("nasm", "gas"))
}

// Line highlights one listing row of the form "<hex address> <text>". The
// address is drawn in gray and the text with the nasm lexer. Rows that do
// not start with an address are highlighted whole.
func Line(line string) string {
	if Disabled() {
		return line
	}
	addr, rest, ok := strings.Cut(line, " ")
	if !ok || addr == "" || !isHex(addr) {
		out, _ := Assembly(line)
		return oneLine(out)
	}
	out, _ := Assembly(rest)
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m %s", addr, oneLine(out))
}

// oneLine drops the newline lexers append to unterminated input.
func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", "")
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isHexChar(s[i]) {
			return false
		}
	}
	return true
}

// isHexChar checks if a character is a hexadecimal digit
func isHexChar(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// StripANSI removes ANSI escape codes.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}

// VisibleWidth counts the runes of s outside ANSI escape sequences.
func VisibleWidth(s string) int {
	return len([]rune(StripANSI(s)))
}
