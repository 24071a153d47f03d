package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func writeWorkbook(t *testing.T, path string, sheets map[string][][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(name, cell, &r))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLoad_SingleRowWorkbook(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, filepath.Join(dir, "catalog.xlsx"), map[string][][]interface{}{
		"Catalog": {
			{"Query", "Assessment", "URL"},
			{"Sales exec test", "Verify Numerical", "http://x/1"},
		},
	})

	records, err := New(nil).Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "Sales exec test | Verify Numerical | http://x/1", r.Text)
	assert.Equal(t, "catalog.xlsx:Catalog:1", r.ID)
	assert.Equal(t, "catalog.xlsx", r.Source)
	assert.Equal(t, "Catalog", r.Sheet)
	assert.Equal(t, 1, r.Row)
	assert.Equal(t, []Field{
		{Name: "Query", Value: "Sales exec test"},
		{Name: "Assessment", Value: "Verify Numerical"},
		{Name: "URL", Value: "http://x/1"},
	}, r.Fields)
}

func TestLoad_EmptyCellsAndBlankRows(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, filepath.Join(dir, "a.xlsx"), map[string][][]interface{}{
		"S": {
			{"Name", "", "URL"},
			{"OPQ32", nil, "http://x/opq"},
			{nil, nil, nil},
			{"Verify G+"},
		},
	})

	records, err := New(nil).Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "OPQ32 |  | http://x/opq", records[0].Text)
	assert.Equal(t, "column_2", records[0].Fields[1].Name)
	assert.Equal(t, "Verify G+ |  | ", records[1].Text)
	assert.Equal(t, 3, records[1].Row, "row numbers count skipped blank rows")
}

func TestLoad_FileOrderAndCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"),
		[]byte("\ufeffName,URL\nMotivation Questionnaire,http://x/mq\n"), 0600))
	writeWorkbook(t, filepath.Join(dir, "a.xlsx"), map[string][][]interface{}{
		"S": {{"Name", "URL"}, {"Verify Numerical", "http://x/vn"}},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600))

	records, err := New(nil).Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Verify Numerical | http://x/vn", records[0].Text)
	assert.Equal(t, "Motivation Questionnaire | http://x/mq", records[1].Text)
	assert.Equal(t, "Name", records[1].Fields[0].Name)
}

func TestLoad_EmptyDirectory(t *testing.T) {
	records, err := New(nil).Load(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := New(nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrDirNotFound)
}

func TestLoad_PathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	_, err := New(nil).Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestLoad_CorruptWorkbook(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.xlsx"), []byte("not a zip"), 0600))

	core, logs := observer.New(zapcore.DebugLevel)
	_, err := New(zap.New(core)).Load(context.Background(), dir)
	assert.ErrorIs(t, err, ErrUnreadable)
	assert.Equal(t, 1, logs.FilterMessage("failed to read spreadsheet").Len())
}

func TestLoad_LegacyXLSIsParsed(t *testing.T) {
	assert.Contains(t, readers, ".xls")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.xls"), []byte{0xD0, 0xCF}, 0600))

	core, logs := observer.New(zapcore.DebugLevel)
	_, err := New(zap.New(core)).Load(context.Background(), dir)
	assert.ErrorIs(t, err, ErrUnreadable)
	assert.Contains(t, err.Error(), "old.xls")
	assert.Equal(t, 1, logs.FilterMessage("failed to read spreadsheet").Len())
}

func TestLoad_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("h\nv\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Load(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
