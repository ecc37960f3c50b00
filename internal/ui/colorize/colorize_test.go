package colorize

import (
	"testing"

	"github.com/alecthomas/chroma/v2/styles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "int sub_1000(int arg0) {\n  if (arg0 > 0) {\n    return 0x10;\n  }\n}\n"

func TestDisabledReturnsInput(t *testing.T) {
	t.Setenv(EnvNoColor, "1")
	require.True(t, Disabled())

	got, err := Pseudo(sample)
	require.NoError(t, err)
	assert.Equal(t, sample, got)

	got, err = Assembly("mov eax, 1")
	require.NoError(t, err)
	assert.Equal(t, "mov eax, 1", got)
	assert.Equal(t, "401000 ret", Line("401000 ret"))
}

func TestHighlightKeepsText(t *testing.T) {
	t.Setenv(EnvNoColor, "")

	tests := []struct {
		name string
		fn   func(string) (string, error)
		in   string
	}{
		{"pseudo", Pseudo, sample},
		{"assembly", Assembly, "mov eax, dword ptr [rbp-0x8]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			require.NoError(t, err)
			assert.Contains(t, got, "\x1b[")
			assert.Equal(t, tt.in, StripANSI(got))
		})
	}
}

func TestLine(t *testing.T) {
	t.Setenv(EnvNoColor, "")

	got := Line("401000 xor eax, eax")
	assert.Equal(t, "401000 xor eax, eax", StripANSI(got))
	assert.Contains(t, got, "\033[38;2;79;79;79m401000\033[0m")

	got = Line("; comment only")
	assert.Equal(t, "; comment only", StripANSI(got))
}

func TestVisibleWidth(t *testing.T) {
	assert.Equal(t, 3, VisibleWidth("\x1b[31mabc\x1b[0m"))
	assert.Equal(t, 2, VisibleWidth("é1"))
}

func TestStyleRegistered(t *testing.T) {
	assert.Equal(t, OuroborosDark, styles.Get(StyleName))
}
