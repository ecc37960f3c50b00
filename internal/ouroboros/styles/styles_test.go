package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	r, err := MarkdownRenderer(60)
	require.NoError(t, err)
	out, err := r.Render("# Summary\n\n| entry | name |\n|---|---|\n| 0x1000 | main |\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Summary")
	assert.Contains(t, out, "main")

	assert.Contains(t, Render("plain *text*", 40), "text")
}

func TestBrowserStyles(t *testing.T) {
	assert.Contains(t, MenuBar.Render("q: quit"), "q: quit")
	assert.Contains(t, Address.Render("401000"), "401000")
}
