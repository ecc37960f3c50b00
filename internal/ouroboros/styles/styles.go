// Package styles holds the terminal styles of the command line: the
// glamour markdown theme used for reports and the lipgloss styles of the
// browser.
package styles

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Palette shared by the markdown theme and the browser.
const (
	Foreground = "#D4D4D4"
	Heading    = "#569CD6"
	Function   = "#DCDCAA"
	InlineCode = "#EACD53"
	Comment    = "#6A9955"
	Background = "#1E1E1E"
	Muted      = "#4F4F4F"
)

// Helper functions for style pointers
func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
func uintPtr(u uint) *uint       { return &u }

// MarkdownRenderer returns a glamour renderer wrapping prose at width.
// Code blocks are preserved.
func MarkdownRenderer(width int) (*glamour.TermRenderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithStyles(MarkdownStyle()),
		glamour.WithWordWrap(width),
	)
}

// Render renders markdown at width, returning the input unchanged when the
// renderer fails.
func Render(markdown string, width int) string {
	r, err := MarkdownRenderer(width)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

// MarkdownStyle is the report theme.
func MarkdownStyle() ansi.StyleConfig {
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(Foreground),
			},
			Margin: uintPtr(1),
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(Heading),
				Bold:  boolPtr(true),
			},
		},
		H1: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix: "# ",
				Color:  stringPtr(Heading),
				Bold:   boolPtr(true),
			},
		},
		H2: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix: "## ",
				Color:  stringPtr(Heading),
			},
		},
		Strong: ansi.StylePrimitive{
			Bold: boolPtr(true),
		},
		Emph: ansi.StylePrimitive{
			Italic: boolPtr(true),
		},
		List: ansi.StyleList{
			LevelIndent: 2,
		},
		Item: ansi.StylePrimitive{
			BlockPrefix: "• ",
		},
		Link: ansi.StylePrimitive{
			Color:     stringPtr(charmtone.Malibu.Hex()),
			Underline: boolPtr(true),
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(InlineCode),
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(charmtone.Smoke.Hex()),
				},
				Margin: uintPtr(2),
			},
		},
		Table: ansi.StyleTable{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{},
			},
			CenterSeparator: stringPtr("┼"),
			ColumnSeparator: stringPtr("│"),
			RowSeparator:    stringPtr("─"),
		},
		Text: ansi.StylePrimitive{},
	}
}

// Browser styles
var (
	MenuBar = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)
	Title    = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).MarginLeft(2)
	Address  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	Selected = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	Name     = lipgloss.NewStyle().Foreground(lipgloss.Color(Function))
	Warning  = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Coral.Hex()))
	Spinner  = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
)
