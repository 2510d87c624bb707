// Package batch scores many ticker rows in one run: parse the uploaded
// sheet, prefetch live quotes, fan rows across a bounded worker pool and
// render one output row per input row.
package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/aestimo/internal/models"
)

// ParseUpload dispatches on the uploaded filename. Anything that is not an
// Excel workbook is read as CSV.
func ParseUpload(filename string, r io.Reader) ([]models.BatchRow, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return ParseXLSX(r)
	default:
		return ParseCSV(r)
	}
}

// ParseCSV reads (ticker, date, [model]) rows. A leading header row and
// blank lines are skipped.
func ParseCSV(r io.Reader) ([]models.BatchRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []models.BatchRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		appendRow(&rows, record)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows found")
	}
	return rows, nil
}

// ParseXLSX reads the same columns from the first sheet of a workbook.
func ParseXLSX(r io.Reader) ([]models.BatchRow, error) {
	workbook, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	records, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	var rows []models.BatchRow
	for _, record := range records {
		appendRow(&rows, record)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows found")
	}
	return rows, nil
}

func appendRow(rows *[]models.BatchRow, record []string) {
	get := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	ticker := get(0)
	if ticker == "" || strings.EqualFold(ticker, "ticker") {
		return
	}
	*rows = append(*rows, models.BatchRow{
		Index:  len(*rows),
		Ticker: ticker,
		Date:   get(1),
		Model:  get(2),
	})
}
