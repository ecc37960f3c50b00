package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/textinput"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/spf13/cobra"

	"ouroboros/internal/analysis"
	"ouroboros/internal/disasm"
	"ouroboros/internal/ir"
	"ouroboros/internal/ouroboros/styles"
	"ouroboros/internal/ui/colorize"
	"ouroboros/internal/ui/pseudo"
)

var browseCmd = &cobra.Command{
	Use:   "browse [file]",
	Short: "Browse the decompiled functions interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}
		return runBrowser(cmd, args[0])
	},
}

func runBrowser(cmd *cobra.Command, file string) error {
	b := newBrowser(file, func() (*workspace, error) {
		return openWorkspace(cmd, file)
	})
	final, err := tea.NewProgram(b, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	if fb, ok := final.(browser); ok && fb.ws != nil {
		fb.ws.Close()
	}
	return err
}

type viewMode int

const (
	viewFunctions viewMode = iota
	viewCode
	viewListing
	viewSummary
	numViews
)

type promptKind int

const (
	promptNone promptKind = iota
	promptRename
	promptGoto
)

type loadedMsg struct {
	ws  *workspace
	err error
}

type functionItem struct {
	info analysis.FunctionInfo
}

func (i functionItem) Title() string {
	return fmt.Sprintf("%x  %s", uint64(i.info.Entry), i.info.Name)
}

func (i functionItem) Description() string {
	st := i.info.Stats
	span := i.info.Span.String()
	if n := len(i.info.Ranges); n > 1 {
		span += fmt.Sprintf(" in %d runs", n)
	}
	return fmt.Sprintf("%s  %d blocks, %d loops, %d ifs, %d gotos", span, i.info.Blocks, st.Loops, st.Ifs, st.Gotos)
}

func (i functionItem) FilterValue() string {
	return fmt.Sprintf("%x %s", uint64(i.info.Entry), i.info.Name)
}

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(functionItem)
	if !ok {
		return
	}

	indicator, addrStyle := " ", styles.Address
	if index == m.Index() {
		indicator, addrStyle = ">", styles.Selected
	}

	line := fmt.Sprintf(" %s  %s  %s", indicator, addrStyle.Render(fmt.Sprintf("%x", uint64(i.info.Entry))), styles.Name.Render(i.info.Name))
	if i.info.Stats.Gotos > 0 || i.info.Stats.Residue > 0 {
		line += "  " + styles.Warning.Render(fmt.Sprintf("(%d gotos)", i.info.Stats.Gotos+i.info.Stats.Residue))
	}
	fmt.Fprint(w, line)
}

// browser is the interactive model. The workspace is built by load off the
// UI goroutine; once loaded every signal is pushed and drained from Update.
type browser struct {
	file string
	load func() (*workspace, error)

	ws      *workspace
	listing *disasm.Listing

	functions list.Model
	code      viewport.Model
	rows      viewport.Model
	summary   viewport.Model
	input     textinput.Model
	spinner   spinner.Model

	prompt  promptKind
	loading bool
	err     error
	status  string
	mode    viewMode
	width   int
	height  int
}

func newBrowser(file string, load func() (*workspace, error)) browser {
	functions := list.New([]list.Item{}, itemDelegate{}, 80, 22)
	functions.SetShowStatusBar(false)
	functions.SetFilteringEnabled(true)
	functions.Title = "Functions"
	functions.Styles.Title = styles.Title

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	in := textinput.New()
	in.Prompt = "> "

	b := browser{
		file:      file,
		load:      load,
		functions: functions,
		code:      newViewport(),
		rows:      newViewport(),
		summary:   newViewport(),
		input:     in,
		spinner:   s,
		loading:   true,
		mode:      viewFunctions,
		width:     80,
		height:    24,
	}
	return b
}

func newViewport() viewport.Model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(22)
	return vp
}

func (b browser) Init() tea.Cmd {
	load := b.load
	return tea.Batch(
		func() tea.Msg {
			ws, err := load()
			return loadedMsg{ws: ws, err: err}
		},
		b.spinner.Tick,
	)
}

func (b browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case loadedMsg:
		b.loading = false
		b.err = msg.err
		if msg.ws != nil {
			b.ws = msg.ws
			b.listing = disasm.NewListing(msg.ws.Session.Space)
			b.refresh()
		}
		return b, nil

	case spinner.TickMsg:
		if !b.loading {
			return b, nil
		}
		b.spinner, cmd = b.spinner.Update(msg)
		return b, cmd

	case tea.WindowSizeMsg:
		b.resize(msg.Width, msg.Height)
		return b, nil

	case tea.KeyMsg:
		if b.prompt != promptNone {
			switch msg.String() {
			case "enter":
				b.submit(b.input.Value())
				return b, nil
			case "esc":
				b.closePrompt()
				return b, nil
			}
			b.input, cmd = b.input.Update(msg)
			return b, cmd
		}

		if b.mode == viewFunctions && b.functions.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return b, tea.Quit
			}
			break
		}

		b.status = ""
		switch msg.String() {
		case "q", "ctrl+c":
			return b, tea.Quit
		case "tab":
			b.mode = (b.mode + 1) % numViews
			return b, nil
		case "shift+tab":
			b.mode = (b.mode + numViews - 1) % numViews
			return b, nil
		case "enter":
			if b.mode == viewFunctions {
				if item, ok := b.functions.SelectedItem().(functionItem); ok {
					b.open(item.info.Entry)
				}
				return b, nil
			}
		case "n":
			if b.ws != nil {
				return b, b.openPrompt(promptRename, "new name, or var=name")
			}
		case "g":
			if b.ws != nil {
				return b, b.openPrompt(promptGoto, "address or symbol")
			}
		}
	}

	switch b.mode {
	case viewFunctions:
		b.functions, cmd = b.functions.Update(msg)
	case viewCode:
		b.code, cmd = b.code.Update(msg)
	case viewListing:
		b.rows, cmd = b.rows.Update(msg)
	case viewSummary:
		b.summary, cmd = b.summary.Update(msg)
	}
	return b, cmd
}

func (b *browser) resize(width, height int) {
	if width == b.width && height == b.height {
		return
	}
	b.width, b.height = width, height
	h := max(height-2, 1)
	b.functions.SetWidth(width)
	b.functions.SetHeight(h)
	for _, vp := range []*viewport.Model{&b.code, &b.rows, &b.summary} {
		vp.SetWidth(width)
		vp.SetHeight(h)
	}
	if b.ws != nil {
		b.refresh()
	}
}

func (b *browser) openPrompt(kind promptKind, placeholder string) tea.Cmd {
	b.prompt = kind
	b.input.Reset()
	b.input.Placeholder = placeholder
	return b.input.Focus()
}

func (b *browser) closePrompt() {
	b.prompt = promptNone
	b.input.Blur()
}

// submit applies the prompt's value. A rename without "=" renames the
// current function.
func (b *browser) submit(value string) {
	kind := b.prompt
	b.closePrompt()
	value = strings.TrimSpace(value)
	if value == "" || b.ws == nil {
		return
	}

	s := b.ws.Session
	switch kind {
	case promptRename:
		from, to, err := parseRename(value)
		if err != nil {
			fn, ok := s.Current()
			if !ok {
				b.status = "no function selected"
				return
			}
			from, to = fn.High.Entry.String(), value
		}
		s.Signals.Rename(from, to)
		b.status = fmt.Sprintf("renamed %s to %s", from, to)
		b.sync()
	case promptGoto:
		if fn, err := s.Lookup(value); err == nil {
			b.open(fn.High.Entry)
			return
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 64)
		if err != nil {
			b.status = fmt.Sprintf("unknown symbol %q", value)
			return
		}
		a := ir.Address(v)
		s.Signals.DefineFunction(a)
		b.open(a)
		if _, ok := s.Function(a); !ok {
			if ferr, bad := s.Failed()[a]; bad {
				b.status = fmt.Sprintf("%s: %v", a, ferr)
			}
		}
	}
}

// open makes the function at entry current and shows its code.
func (b *browser) open(entry ir.Address) {
	b.ws.Session.Signals.RequestPos(entry)
	b.sync()
	if fn, ok := b.ws.Session.Current(); ok && fn.High.Entry == entry {
		b.mode = viewCode
		b.code.GotoTop()
		b.scrollListing(entry)
	}
}

// sync drains the queued signals and reacts to the notifications they
// raised.
func (b *browser) sync() {
	s := b.ws.Session
	s.Drain()
	for _, n := range s.Notifications() {
		if n.Kind == analysis.RepopulateInstructionRows {
			b.listing.Invalidate()
		}
	}
	b.refresh()
}

func (b *browser) color() bool {
	return b.ws != nil && !b.ws.Config.NoColor && !colorize.Disabled()
}

func (b *browser) refresh() {
	s := b.ws.Session
	infos := s.Functions()
	items := make([]list.Item, 0, len(infos))
	for _, info := range infos {
		items = append(items, functionItem{info: info})
	}
	b.functions.SetItems(items)

	b.code.SetContent(b.codeContent())

	lines := b.listing.Rows().Lines(s.Symbols)
	if b.color() {
		for i, l := range lines {
			lines[i] = colorize.Line(l)
		}
	}
	b.rows.SetContent(strings.Join(lines, "\n"))

	fns, _ := selectFunctions(s, nil)
	out := buildOutput(b.ws, fns, false)
	if b.color() {
		b.summary.SetContent(renderSummary(out, b.width))
	} else {
		b.summary.SetContent(summaryMarkdown(out))
	}
}

func (b *browser) codeContent() string {
	fn, ok := b.ws.Session.Current()
	if !ok {
		return "; select a function"
	}
	code := pseudo.Render(b.ws.Session, fn)
	if b.color() {
		if hl, err := colorize.Pseudo(code); err == nil {
			code = hl
		}
	}
	return code
}

func (b *browser) scrollListing(entry ir.Address) {
	prefix := fmt.Sprintf("%x ", uint64(entry))
	for i, line := range b.listing.Rows().Lines(b.ws.Session.Symbols) {
		if strings.HasPrefix(line, prefix) {
			b.rows.SetYOffset(max(i-1, 0))
			return
		}
	}
}

func (b browser) View() string {
	var content string
	switch {
	case b.loading:
		content = fmt.Sprintf("\n  %s Analysing %s...", b.spinner.View(), b.file)
	case b.err != nil:
		content = "\n  " + styles.Warning.Render(b.err.Error())
	default:
		switch b.mode {
		case viewFunctions:
			content = b.functions.View()
		case viewCode:
			content = b.code.View()
		case viewListing:
			content = b.rows.View()
		case viewSummary:
			content = b.summary.View()
		}
	}

	var menu string
	switch {
	case b.prompt != promptNone:
		menu = b.input.View()
	case b.status != "":
		menu = " " + b.status + " • Tab: cycle • Q: quit "
	case b.mode == viewFunctions:
		menu = " Enter: open • /: filter • N: rename • G: goto • Tab: cycle • Q: quit "
	default:
		menu = " N: rename • G: goto • Tab: cycle • Q: quit "
	}
	return content + "\n" + styles.MenuBar.Width(b.width).Render(menu)
}
