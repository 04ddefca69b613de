package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"version", "author", "content"},
		Rows: []map[string]string{
			{"version": "1", "author": "alice", "content": `{}`},
			{"version": "2", "author": "bob", "content": `{"title":"` + strings.Repeat("long ", 80) + `"}`},
		},
		Widths: []float64{1, 2, 6},
	}
}

func TestCSVExporterWritesHeaderAndRows(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "version,author,content", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "1,alice,"))
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(), "Revision history")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "")
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("docx")
	require.Error(t, err)
}
