package importexport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromName picks the format from a file name extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xls":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported file type %q", filepath.Ext(name))
}

// ErrMissingColumns means the header row has no id or no lab column.
var ErrMissingColumns = errors.New("sheet has no id or lab column")

// Row is one device line of an imported sheet. Line is 1-based and counts
// the header.
type Row struct {
	Line      int
	ID        string
	Lab       string
	Site      string
	Brand     string
	Model     string
	Processor string
	RAM       string
	Storage   string
	Status    string
	LastCheck string
}

type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RowError) String() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Parse reads a sheet and returns its device rows. Rows without an id or
// a lab are reported as errors and left out.
func Parse(r io.Reader, format Format) ([]Row, []RowError, error) {
	var records [][]string
	var err error
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatXLSX:
		records, err = readXLSX(r)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, nil, err
	}
	return parseRecords(records)
}

func parseRecords(records [][]string) ([]Row, []RowError, error) {
	if len(records) == 0 {
		return nil, nil, ErrMissingColumns
	}

	cols := mapColumns(records[0])
	_, hasID := cols[fieldID]
	_, hasLab := cols[fieldLab]
	if !hasID && !hasLab {
		return nil, nil, ErrMissingColumns
	}

	rows := make([]Row, 0, len(records)-1)
	var rowErrs []RowError

	for i, rec := range records[1:] {
		line := i + 2
		if blank(rec) {
			continue
		}
		get := func(f field) string {
			idx, ok := cols[f]
			if !ok || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}

		row := Row{
			Line:      line,
			ID:        get(fieldID),
			Lab:       get(fieldLab),
			Site:      get(fieldSite),
			Brand:     get(fieldBrand),
			Model:     get(fieldModel),
			Processor: get(fieldProcessor),
			RAM:       get(fieldRAM),
			Storage:   get(fieldStorage),
			Status:    get(fieldStatus),
			LastCheck: get(fieldLastCheck),
		}
		switch {
		case row.ID == "" && row.Lab == "":
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "missing id and lab"})
		case row.ID == "":
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "missing id"})
		case row.Lab == "":
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "missing lab"})
		default:
			rows = append(rows, row)
		}
	}
	return rows, rowErrs, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// readCSV accepts comma or semicolon separated files, with or without a
// UTF-8 byte order mark.
func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	first, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	reader := csv.NewReader(bytes.NewReader(data))
	if strings.Count(first, ";") > strings.Count(first, ",") {
		reader.Comma = ';'
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse excel file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("excel file has no sheets")
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, nil
}
