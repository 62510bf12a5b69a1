package helper

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RecipientRow is one line of an imported recipient sheet. Message is empty
// when the sheet has no message column for that row.
type RecipientRow struct {
	Number  string
	Message string
}

var ErrUnsupportedSheet = errors.New("unsupported recipient file, use .xlsx or .csv")

// ParseRecipientSheet reads numbers from the first column and optional
// per-recipient messages from the second. A first row whose number cell has
// no digit is treated as a header.
func ParseRecipientSheet(filename string, r io.Reader) ([]RecipientRow, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(r)
	case ".csv", ".txt":
		rows, err = readCSV(r)
	default:
		return nil, ErrUnsupportedSheet
	}
	if err != nil {
		return nil, err
	}

	out := make([]RecipientRow, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		number := strings.TrimSpace(row[0])
		if i == 0 && !hasDigit(number) {
			continue
		}
		if number == "" {
			continue
		}
		rec := RecipientRow{Number: number}
		if len(row) > 1 {
			rec.Message = strings.TrimSpace(row[1])
		}
		out = append(out, rec)
	}
	return out, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// WriteSheet writes header and rows as an xlsx workbook or a csv file.
// Numbers stay in the first column so the file can be imported again as a
// recipient sheet.
func WriteSheet(w io.Writer, format, sheetName string, header []string, rows [][]string) error {
	switch format {
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	case "xlsx":
		return writeXLSX(w, sheetName, header, rows)
	}
	return ErrUnsupportedSheet
}

func writeXLSX(w io.Writer, sheetName string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheetName, "A1", last, headerStyle)
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := row
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheetName, "A", "A", 18)
	_ = f.SetColWidth(sheetName, "B", "B", 40)

	f.SetActiveSheet(index)
	if sheetName != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}
	return f.Write(w)
}
