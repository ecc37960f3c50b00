package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/x/term"

	"ouroboros/internal/analysis"
	"ouroboros/internal/ir"
	"ouroboros/internal/ouroboros/styles"
	"ouroboros/internal/ui/colorize"
	"ouroboros/internal/ui/pseudo"
)

// Output is the --json document.
type Output struct {
	Session   string           `json:"session"`
	File      string           `json:"file"`
	Arch      string           `json:"arch"`
	Frames    int              `json:"frames"`
	Functions []FunctionOutput `json:"functions"`
	Failed    []FailedOutput   `json:"failed,omitempty"`
}

type FunctionOutput struct {
	Entry   string `json:"entry"`
	Name    string `json:"name"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Blocks  int    `json:"blocks"`
	Loops   int    `json:"loops"`
	Ifs     int    `json:"ifs"`
	Gotos   int    `json:"gotos"`
	Residue int    `json:"residue"`
	Code    string `json:"code,omitempty"`
}

type FailedOutput struct {
	Entry string `json:"entry"`
	Error string `json:"error"`
}

func buildOutput(w *workspace, fns []*analysis.Function, withCode bool) Output {
	s := w.Session
	out := Output{
		Session:   s.ID.String(),
		File:      w.Path,
		Arch:      s.Arch,
		Frames:    s.Frames(),
		Functions: make([]FunctionOutput, 0, len(fns)),
	}
	for _, fn := range fns {
		f := FunctionOutput{
			Entry:   fn.High.Entry.String(),
			Name:    s.Symbols.Name(fn.High.Entry),
			Start:   fn.High.Span.Start.String(),
			End:     fn.High.Span.End.String(),
			Blocks:  fn.High.Blocks.Len(),
			Loops:   fn.Stats.Loops,
			Ifs:     fn.Stats.Ifs,
			Gotos:   fn.Stats.Gotos,
			Residue: fn.Stats.Residue,
		}
		if withCode {
			f.Code = pseudo.Render(s, fn)
		}
		out.Functions = append(out.Functions, f)
	}

	failed := s.Failed()
	addrs := make([]ir.Address, 0, len(failed))
	for a := range failed {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)
	for _, a := range addrs {
		out.Failed = append(out.Failed, FailedOutput{Entry: a.String(), Error: failed[a].Error()})
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writePseudo prints each function's pseudo-code, highlighted unless color
// is off.
func writePseudo(w io.Writer, ws *workspace, fns []*analysis.Function, color bool) error {
	for i, fn := range fns {
		code := pseudo.Render(ws.Session, fn)
		if color {
			if hl, err := colorize.Pseudo(code); err == nil {
				code = hl
			}
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		if _, err := io.WriteString(w, code); err != nil {
			return err
		}
	}
	return nil
}

// summaryMarkdown is the report printed by run.
func summaryMarkdown(out Output) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", out.File)
	fmt.Fprintf(&b, "Session `%s` on **%s**: %d functions in %d frames.\n\n",
		out.Session, out.Arch, len(out.Functions), out.Frames)

	if len(out.Functions) > 0 {
		b.WriteString("| entry | name | span | blocks | loops | ifs | gotos | residue |\n")
		b.WriteString("|---|---|---|---:|---:|---:|---:|---:|\n")
		for _, f := range out.Functions {
			fmt.Fprintf(&b, "| %s | %s | %s-%s | %d | %d | %d | %d | %d |\n",
				f.Entry, escapeCell(f.Name), f.Start, f.End, f.Blocks, f.Loops, f.Ifs, f.Gotos, f.Residue)
		}
		b.WriteString("\n")
	}

	if len(out.Failed) > 0 {
		b.WriteString("## Failed entries\n\n")
		for _, f := range out.Failed {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.Entry, f.Error)
		}
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func isTerminal() bool {
	return term.IsTerminal(os.Stdout.Fd())
}

func terminalWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 100
}

// useColor reports whether output to stdout should be highlighted.
func useColor(ws *workspace) bool {
	return !ws.Config.NoColor && !colorize.Disabled() && isTerminal()
}

func renderSummary(out Output, width int) string {
	return styles.Render(summaryMarkdown(out), width-2)
}
