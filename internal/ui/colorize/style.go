package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// StyleName is the name OuroborosDark is registered under.
const StyleName = "ouroboros-dark"

// OuroborosDark covers both the C lexer used for pseudo-code and the nasm
// lexer used for listings.
var OuroborosDark = styles.Register(chroma.MustNewStyle(StyleName, chroma.StyleEntries{
	chroma.Text:           "#FFFFFF",
	chroma.Background:     "bg:#1e1e1e",
	chroma.Comment:        "#6A6A6A",
	chroma.CommentPreproc: "#6A6A6A",

	// Statements in pseudo-code, mnemonics in listings.
	chroma.Keyword:       "#C586C0",
	chroma.KeywordPseudo: "#FFFFFF",
	chroma.KeywordType:   "#4EC9B0",

	// Registers and variables
	chroma.Name:         "#7C9C9D",
	chroma.NameBuiltin:  "#7C9C9D",
	chroma.NameVariable: "#7C9C9D",

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberBin:     "#FF5F87",
	chroma.LiteralNumberOct:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",
	chroma.LiteralNumberFloat:   "#FF5F87",

	chroma.NameLabel:    "#FFD700",
	chroma.NameFunction: "#DCDCAA",

	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",

	chroma.String: "#EACD53",
}))
