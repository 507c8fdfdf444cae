package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPrinter(t *testing.T) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var out, errOut bytes.Buffer
	return &Printer{Out: &out, Err: &errOut}, &out, &errOut
}

func TestMessages(t *testing.T) {
	p, out, errOut := newPrinter(t)

	p.Success("replayed %d events", 3)
	p.Info("plain")
	p.Warn("careful")
	p.Error("failed: %s", "boom")

	assert.Equal(t, "✓ replayed 3 events\nplain\n⚠ careful\n", out.String())
	assert.Equal(t, "✗ failed: boom\n", errOut.String())
}

func TestTable(t *testing.T) {
	p, out, _ := newPrinter(t)

	tbl := NewTable([]string{"ID", "RISK"})
	tbl.AddRow([]string{"inc-1", "80"})
	tbl.AddRow([]string{"incident-long"})
	tbl.Render(p)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID             RISK  ", lines[0])
	assert.Equal(t, "-------------  ----  ", lines[1])
	assert.Equal(t, "inc-1          80    ", lines[2])
	assert.Equal(t, "incident-long        ", lines[3])
	assert.Equal(t, 2, tbl.Len())
}

func TestStructured(t *testing.T) {
	v := struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}{"x", 2}

	p, out, _ := newPrinter(t)
	require.NoError(t, p.Structured(FormatJSON, v))
	assert.JSONEq(t, `{"id":"x","count":2}`, out.String())

	p, out, _ = newPrinter(t)
	require.NoError(t, p.Structured(FormatYAML, v))
	assert.Equal(t, "count: 2\nid: x\n", out.String())
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []string{FormatTable, FormatJSON, FormatYAML} {
		assert.NoError(t, ValidateFormat(f))
	}
	assert.Error(t, ValidateFormat("xml"))
}
