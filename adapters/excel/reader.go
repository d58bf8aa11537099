// Package excel reads survey observation tables exported as .xlsx or .csv
// files into the engine's in-memory frame.
package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "golmm/internal/errors"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV observation exports
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a reader for either format, chosen by extension
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadRows returns the header row and data rows
func (r *DataReader) ReadRows() ([]string, [][]string, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, nil, apperrors.DataSourceError(r.filePath, fmt.Errorf("file not found"))
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	case "xlsx":
		rows, err = r.readExcel()
	default:
		err = fmt.Errorf("unsupported file type: %s", r.fileType)
	}
	if err != nil {
		return nil, nil, apperrors.DataSourceError(r.filePath, err)
	}
	if len(rows) < 2 {
		return nil, nil, apperrors.DataSourceError(r.filePath,
			fmt.Errorf("need a header row and at least one data row"))
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	return header, rows[1:], nil
}

func (r *DataReader) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func (r *DataReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // ragged rows are padded during framing
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return records, nil
}
