// Package loader reads catalog spreadsheets and turns every row into a Record.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// FieldSeparator joins cell values into a record's text.
const FieldSeparator = " | "

var (
	// ErrDirNotFound indicates the source directory does not exist.
	ErrDirNotFound = errors.New("source directory not found")

	// ErrNotDirectory indicates the source path exists but is a file.
	ErrNotDirectory = errors.New("source path is not a directory")

	// ErrUnreadable indicates a directory or spreadsheet could not be read.
	ErrUnreadable = errors.New("source unreadable")
)

// Field is one named cell of a row.
type Field struct {
	Name  string
	Value string
}

// Record is one spreadsheet row, materialized as text.
type Record struct {
	// ID identifies the row as "<file>:<sheet>:<row>".
	ID     string
	Source string
	Sheet  string
	// Row is the 1-based data row number, not counting the header.
	Row    int
	Fields []Field
	// Text is every value in column order joined with FieldSeparator.
	Text string
}

// Loader enumerates spreadsheets in a directory.
type Loader struct {
	logger *zap.Logger
}

// New creates a Loader. A nil logger disables logging.
func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

type sheetReader func(path string) ([]sheet, error)

type sheet struct {
	name string
	rows [][]string
}

var readers = map[string]sheetReader{
	".xlsx": readWorkbook,
	".xlsm": readWorkbook,
	".xls":  readLegacyWorkbook,
	".csv":  readCSV,
}

// Load reads every supported spreadsheet directly inside dir, in file name
// order, and returns one Record per non-empty data row. The first row of each
// sheet is the header. An existing directory with no spreadsheets yields an
// empty slice and no error.
func (l *Loader) Load(ctx context.Context, dir string) ([]Record, error) {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrDirNotFound, dir)
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, dir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, dir, err)
	}

	records := []Record{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		read, ok := readers[ext]
		if !ok {
			continue
		}

		sheets, err := read(filepath.Join(dir, name))
		if err != nil {
			l.logger.Error("failed to read spreadsheet", zap.String("file", name), zap.Error(err))
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
		}

		before := len(records)
		for _, sh := range sheets {
			records = append(records, rowsToRecords(name, sh)...)
		}
		l.logger.Debug("loaded spreadsheet",
			zap.String("file", name),
			zap.Int("sheets", len(sheets)),
			zap.Int("records", len(records)-before))
	}

	l.logger.Info("catalog loaded", zap.String("dir", dir), zap.Int("records", len(records)))
	return records, nil
}

// rowsToRecords treats rows[0] as the header. Short rows are padded with
// empty cells; rows with no non-blank cell are skipped.
func rowsToRecords(source string, sh sheet) []Record {
	if len(sh.rows) < 2 {
		return nil
	}
	header := sh.rows[0]
	out := make([]Record, 0, len(sh.rows)-1)

	for i, row := range sh.rows[1:] {
		if isBlank(row) {
			continue
		}
		width := max(len(header), len(row))
		fields := make([]Field, width)
		values := make([]string, width)
		for c := 0; c < width; c++ {
			var v string
			if c < len(row) {
				v = strings.TrimSpace(row[c])
			}
			fields[c] = Field{Name: columnName(header, c), Value: v}
			values[c] = v
		}
		rowNum := i + 1
		out = append(out, Record{
			ID:     source + ":" + sh.name + ":" + strconv.Itoa(rowNum),
			Source: source,
			Sheet:  sh.name,
			Row:    rowNum,
			Fields: fields,
			Text:   strings.Join(values, FieldSeparator),
		})
	}
	return out
}

func columnName(header []string, c int) string {
	if c < len(header) {
		if h := strings.TrimSpace(header[c]); h != "" {
			return h
		}
	}
	return "column_" + strconv.Itoa(c+1)
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func readWorkbook(path string) ([]sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sheets []sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		sheets = append(sheets, sheet{name: name, rows: rows})
	}
	return sheets, nil
}

// readLegacyWorkbook reads BIFF (.xls) workbooks. The parser panics on some
// malformed files, so a panic is reported as a read error.
func readLegacyWorkbook(path string) (_ []sheet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing legacy workbook: %v", r)
		}
	}()

	wb, closer, err := xls.OpenWithCloser(path, "utf-8")
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var sheets []sheet
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		rows := make([][]string, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, row.LastCol())
			for c := range cells {
				cells[c] = row.Col(c)
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, sheet{name: ws.Name, rows: rows})
	}
	return sheets, nil
}

// readCSV uses encoding/csv; ragged rows are allowed.
func readCSV(path string) ([]sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return []sheet{{name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), rows: rows}}, nil
}
