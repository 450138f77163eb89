package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers shared by every file the store reads or writes.
const (
	ColEmployeeName     = "Employee_Name"
	ColEmployeeEmail    = "Employee_EmailID"
	ColSecretChildName  = "Secret_Child_Name"
	ColSecretChildEmail = "Secret_Child_EmailID"
)

var assignmentColumns = []string{ColEmployeeName, ColEmployeeEmail, ColSecretChildName, ColSecretChildEmail}

type format string

const (
	formatCSV  format = "csv"
	formatXLSX format = "xlsx"
)

func formatFor(path string) format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return formatXLSX
	}
	return formatCSV
}

// table is a header-indexed view over data rows.
type table struct {
	columns map[string]int
	rows    [][]string
}

func (t table) cell(row []string, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func newTable(records [][]string) table {
	t := table{columns: map[string]int{}}
	if len(records) == 0 {
		return t
	}
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := t.columns[h]; !dup {
			t.columns[h] = i
		}
	}
	for _, r := range records[1:] {
		if len(r) == 0 {
			continue
		}
		t.rows = append(t.rows, r)
	}
	return t
}

func readTable(path string) (table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return table{}, &ValidationError{Source: path, Msg: fmt.Sprintf("the file '%s' was not found", path), Err: ErrFileNotFound}
		}
		return table{}, fmt.Errorf("stat %s: %w", path, err)
	}
	var (
		records [][]string
		err     error
	)
	switch formatFor(path) {
	case formatXLSX:
		records, err = readXLSX(path)
	default:
		records, err = readCSV(path)
	}
	if err != nil {
		return table{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return newTable(records), nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}

func writeCSV(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

func writeXLSX(w io.Writer, records [][]string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for r, record := range records {
		for c, v := range record {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

// defaultFileMode applies to result files that do not exist yet.
const defaultFileMode os.FileMode = 0o644

// writeAtomic writes into a temp file next to path and renames it into place.
// An existing destination keeps its permission bits.
func writeAtomic(path string, records [][]string) (err error) {
	mode := defaultFileMode
	if fi, statErr := os.Stat(path); statErr == nil {
		mode = fi.Mode().Perm()
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = tmp.Chmod(mode); err != nil {
		return err
	}
	switch formatFor(path) {
	case formatXLSX:
		err = writeXLSX(tmp, records)
	default:
		err = writeCSV(tmp, records)
	}
	if err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
