package importexport

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Dispositivos"

var columnWidths = []float64{15, 25, 20, 15, 20, 20, 10, 18, 15, 20}

func deviceRecord(d types.Device) []string {
	return []string{
		d.ID,
		d.Lab,
		d.Site,
		d.Brand,
		d.Model,
		d.Processor,
		d.RAM,
		d.Storage,
		d.Status.Label(),
		d.LastCheck,
	}
}

// Export writes devices in the given format using ExportHeaders.
func Export(w io.Writer, format Format, devices []types.Device) error {
	records := make([][]string, 0, len(devices))
	for _, d := range devices {
		records = append(records, deviceRecord(d))
	}
	return write(w, format, ExportHeaders, records)
}

// Template writes an empty import sheet.
func Template(w io.Writer, format Format) error {
	return write(w, format, TemplateHeaders, nil)
}

func write(w io.Writer, format Format, headers []string, records [][]string) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, headers, records)
	case FormatXLSX:
		return writeXLSX(w, headers, records)
	}
	return fmt.Errorf("unsupported format %q", format)
}

// writeCSV prefixes a byte order mark so spreadsheet apps detect UTF-8.
func writeCSV(w io.Writer, headers []string, records [][]string) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, headers []string, records [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := setRow(f, 1, headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i := range headers {
		if i >= len(columnWidths) {
			break
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, rec := range records {
		if err := setRow(f, i+2, rec); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

// setRow writes values as text cells so ids like "007" keep their zeros.
func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
