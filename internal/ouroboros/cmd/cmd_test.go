package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ouroboros/internal/analysis"
	"ouroboros/internal/config"
	"ouroboros/internal/ir"
	"ouroboros/internal/logging"
	"ouroboros/internal/semantics"
	"ouroboros/internal/ui/colorize"
)

// code is a main at 0x1000 passing 5 to a helper at 0x1020:
//
//	1000: mov edi, 5
//	1005: call 0x1020
//	100a: ret
//	1020: mov eax, edi ; ret
func code() []byte {
	b := bytes.Repeat([]byte{0x90}, 0x30)
	copy(b, []byte{0xbf, 0x05, 0x00, 0x00, 0x00, 0xe8, 0x16, 0x00, 0x00, 0x00, 0xc3})
	copy(b[0x20:], []byte{0x89, 0xf8, 0xc3})
	return b
}

func testWorkspace(t *testing.T) *workspace {
	t.Helper()
	t.Setenv(colorize.EnvNoColor, "1")
	s, err := analysis.New(semantics.ArchX86_64, analysis.DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Space.AddSection(".text", 0x1000, code(), true))
	s.Signals.DefineFunction(0x1000)
	s.Drain()
	return &workspace{Path: "/tmp/a.out", Config: config.Default(), Session: s, logger: logging.Discard()}
}

func TestParseRename(t *testing.T) {
	tests := []struct {
		in       string
		from, to string
		err      bool
	}{
		{"sub_1000=main", "sub_1000", "main", false},
		{" arg0 = argc ", "arg0", "argc", false},
		{"main", "", "", true},
		{"=main", "", "", true},
		{"main=", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			from, to, err := parseRename(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrBadRename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestSelectFunctions(t *testing.T) {
	ws := testWorkspace(t)

	all, err := selectFunctions(ws.Session, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ir.Address(0x1000), all[0].High.Entry)

	some, err := selectFunctions(ws.Session, []string{"sub_1020", "0x1000"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, ir.Address(0x1020), some[0].High.Entry)

	_, err = selectFunctions(ws.Session, []string{"missing"})
	assert.ErrorIs(t, err, analysis.ErrNoFunction)
}

func TestOutput(t *testing.T) {
	ws := testWorkspace(t)
	fns, err := selectFunctions(ws.Session, nil)
	require.NoError(t, err)

	out := buildOutput(ws, fns, true)
	assert.Equal(t, ws.Session.ID.String(), out.Session)
	require.Len(t, out.Functions, 2)
	assert.Equal(t, "0x1000", out.Functions[0].Entry)
	assert.Equal(t, "sub_1020", out.Functions[1].Name)
	assert.Contains(t, out.Functions[0].Code, "sub_1020(")
	assert.Empty(t, out.Failed)

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, out))
	assert.Contains(t, buf.String(), `"entry": "0x1020"`)

	md := summaryMarkdown(buildOutput(ws, fns, false))
	assert.Contains(t, md, "| 0x1020 | sub_1020 | 0x1020-0x1023 |")
	assert.NotContains(t, md, "Failed entries")

	buf.Reset()
	require.NoError(t, writePseudo(&buf, ws, fns, false))
	assert.True(t, strings.HasPrefix(buf.String(), "// sub_1000 @ 0x1000\n"))
	assert.Contains(t, buf.String(), "\n\n// sub_1020 @ 0x1020\n")
}

func TestSummaryListsFailures(t *testing.T) {
	ws := testWorkspace(t)
	ws.Session.Signals.DefineFunction(0x1001)
	ws.Session.Drain()

	out := buildOutput(ws, nil, false)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "0x1001", out.Failed[0].Entry)
	assert.Contains(t, summaryMarkdown(out), "## Failed entries\n\n- `0x1001`:")
}

func TestBrowser(t *testing.T) {
	ws := testWorkspace(t)
	b := newBrowser("a.out", func() (*workspace, error) { return ws, nil })
	assert.Contains(t, b.View(), "Analysing a.out")

	m, _ := b.Update(loadedMsg{ws: ws})
	b = m.(browser)
	require.False(t, b.loading)
	assert.Len(t, b.functions.Items(), 2)

	b.open(0x1020)
	assert.Equal(t, viewCode, b.mode)
	assert.Contains(t, b.code.View(), "sub_1020")

	b.prompt = promptRename
	b.submit("helper")
	assert.Equal(t, "helper", ws.Session.Symbols.Name(0x1020))
	assert.Equal(t, promptNone, b.prompt)
	assert.Contains(t, b.code.View(), "helper")

	b.prompt = promptRename
	b.submit("arg0=value")
	assert.Contains(t, b.code.View(), "value")

	b.prompt = promptGoto
	b.submit("sub_1000")
	fn, ok := ws.Session.Current()
	require.True(t, ok)
	assert.Equal(t, ir.Address(0x1000), fn.High.Entry)

	b.prompt = promptGoto
	b.submit("0x1003")
	assert.Contains(t, b.status, "0x1003")
}

func TestSchemaCommand(t *testing.T) {
	var buf bytes.Buffer
	root := Root()
	root.SetOut(&buf)
	root.SetArgs([]string{"schema"})
	t.Cleanup(func() { root.SetArgs(nil); root.SetOut(nil) })

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "max_frames")
}

func TestResolveCwd(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cmd := Root()

	got, err := ResolveCwd(cmd)
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(dir)
	got, _ = filepath.EvalSymlinks(got)
	assert.Equal(t, want, got)

	_, err = openWorkspace(cmd, filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "file not found")
}
