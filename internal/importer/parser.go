package importer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is one exported transaction together with its receipt lines, as
// written by the receipt-scanning app: one JSON object per line
type Record struct {
	Account     string          `json:"account"`
	Date        string          `json:"date"`
	Merchant    string          `json:"merchant"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Items       []RecordItem    `json:"items"`
}

// RecordItem is a single line on an exported receipt
type RecordItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
}

// ParseFile reads a JSONL export file and returns its records
func ParseFile(filename string) ([]Record, error) {
	infile, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer infile.Close()

	return Parse(infile)
}

// Parse reads one record per line, skipping blank lines. Errors carry the
// line number so a bad export can be fixed by hand.
func Parse(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	// receipts with many items can exceed the default token size
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if record.Account == "" {
			return nil, fmt.Errorf("line %d: missing account", lineNo)
		}
		if record.Date == "" {
			return nil, fmt.Errorf("line %d: missing date", lineNo)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
