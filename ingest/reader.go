package ingest

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

// ErrUnsupportedFile is returned for extensions other than .csv and .xlsx.
var ErrUnsupportedFile = errors.New("unsupported file type")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SupportedExtension reports whether name can be read by ReadTable.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// ReadTable parses a CSV or XLSX stream into a Table. The format is chosen
// by the extension of name.
func ReadTable(r io.Reader, name string) (Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ReadCSV(r, name)
	case ".xlsx":
		return ReadXLSX(r, name)
	}
	return Table{Source: name}, fmt.Errorf("%s: %w", name, ErrUnsupportedFile)
}

// ReadCSV reads a delimited export. The delimiter is sniffed from the
// header line among comma, semicolon and tab.
func ReadCSV(r io.Reader, name string) (Table, error) {
	table := Table{Source: name}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	// Peek returns what it has when the stream is shorter than asked
	sample, _ := br.Peek(4096)

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(sample)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return table, nil
	}
	if err != nil {
		return table, fmt.Errorf("failed to read CSV header: %w", err)
	}
	table.Headers = cleanHeaders(header)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			table.Malformed++
			continue
		}
		if blankRecord(record) {
			continue
		}
		table.Rows = append(table.Rows, rowFromRecord(table.Headers, fitRecord(record, len(table.Headers))))
	}

	return table, nil
}

// ReadXLSX reads the first sheet of a workbook. Cells are read raw, so date
// cells arrive as spreadsheet serial numbers. The first non-empty row is
// the header.
func ReadXLSX(r io.Reader, name string) (Table, error) {
	table := Table{Source: name}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return table, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return table, fmt.Errorf("%s: workbook has no sheets: %w", name, ErrEmptyInput)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return table, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	headerAt := -1
	for i, row := range rows {
		if !blankRecord(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return table, nil
	}
	table.Headers = cleanHeaders(rows[headerAt])

	for _, row := range rows[headerAt+1:] {
		if blankRecord(row) {
			continue
		}
		// trailing empty cells are trimmed by excelize
		table.Rows = append(table.Rows, rowFromRecord(table.Headers, fitRecord(row, len(table.Headers))))
	}

	return table, nil
}

func sniffDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		headers[i] = strings.TrimSpace(strings.Trim(h, "\ufeff"))
	}
	return headers
}

// fitRecord pads a short record with empty cells and cuts cells past the
// last header, so missing trailing values degrade to field defaults.
func fitRecord(record []string, width int) []string {
	out := make([]string, width)
	copy(out, record)
	return out
}

// rowFromRecord keeps the first value when a header repeats.
func rowFromRecord(headers, record []string) map[string]string {
	row := make(map[string]string, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		if _, seen := row[h]; seen {
			continue
		}
		row[h] = strings.TrimSpace(record[i])
	}
	return row
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
