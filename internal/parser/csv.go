package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/dgallion1/sitegest/internal/doctree"
)

// rowsPerNode keeps each CSV node to a size that chunks well.
const rowsPerNode = 20

// CSVParser renders each data row as "header: value" pairs, grouped into
// nodes of rowsPerNode rows.
type CSVParser struct{}

func (p *CSVParser) Parse(body []byte, name string) (*doctree.DocTree, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	b := doctree.NewBuilder(nameTitle(name))
	if len(records) == 0 {
		return b.Tree(), nil
	}

	headers, rows := records[0], records[1:]
	for start := 0; start < len(rows); start += rowsPerNode {
		end := min(start+rowsPerNode, len(rows))

		var text strings.Builder
		for _, row := range rows[start:end] {
			text.WriteString(csvRow(headers, row))
			text.WriteByte('\n')
		}
		// Line numbers are 1-based and count the header row.
		b.Leaf(&doctree.DocNode{
			Title: fmt.Sprintf("Rows %d-%d", start+2, end+1),
			Text:  text.String(),
			Page:  start + 2,
		})
	}
	return b.Tree(), nil
}

func csvRow(headers, row []string) string {
	cells := make([]string, len(row))
	for i, cell := range row {
		if i < len(headers) && headers[i] != "" {
			cells[i] = headers[i] + ": " + cell
		} else {
			cells[i] = cell
		}
	}
	return strings.Join(cells, ", ")
}
