package export

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Professor", "Subject"},
		Rows:    [][]string{{"Ana Cruz", "Math, Algebra"}},
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, utf8BOM))
	assert.Equal(t, "Professor,Subject\nAna Cruz,\"Math, Algebra\"\n", string(out[len(utf8BOM):]))
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"A", "B"},
		Rows:    [][]string{{"only-one"}},
	})
	require.Error(t, err)

	_, err = NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestZipArchiveDeduplicatesAndCleansNames(t *testing.T) {
	archive := NewZipArchive()
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, archive.AddFile("attendance.csv", []byte("a,b\n"), now))
	require.NoError(t, archive.AddFile("photos/start.jpg", []byte("one"), now))
	require.NoError(t, archive.AddFile("photos/start.jpg", []byte("two"), now))
	require.NoError(t, archive.AddFile("../../etc/passwd", []byte("x"), now))
	assert.Equal(t, 4, archive.Len())

	payload, err := archive.Bytes()
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	names := make([]string, 0, len(reader.File))
	contents := map[string]string{}
	for _, f := range reader.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close() //nolint:errcheck
		contents[f.Name] = string(data)
	}
	assert.Equal(t, []string{"attendance.csv", "photos/start.jpg", "photos/start_1.jpg", "etc/passwd"}, names)
	assert.Equal(t, "two", contents["photos/start_1.jpg"])

	require.Error(t, archive.AddFile("late.txt", nil, now))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render("Monthly Report 2025-06",
		Section{Heading: "Attendance", Data: Dataset{Headers: []string{"Professor", "Sessions"}, Rows: [][]string{{"Ana", "3"}}}},
		Section{Heading: "Assessments", Data: Dataset{Headers: []string{"Professor", "Average"}}},
	)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render("empty")
	require.Error(t, err)
}
