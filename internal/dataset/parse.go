package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ColumnType classifies a parsed column.
type ColumnType string

// Supported column types, inferred per column from the raw cells.
const (
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeBool    ColumnType = "boolean"
)

// Column is one typed column of a dataset.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Parse converts raw file content into typed columns and rows. The file
// extension selects the format: .csv, .xlsx, or .json (array of objects).
func Parse(name string, data []byte) ([]Column, []map[string]any, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return parseCSV(data)
	case ".xlsx":
		return parseXLSX(data)
	case ".json":
		return parseJSON(data)
	default:
		return nil, nil, fmt.Errorf("unsupported file type: %s", name)
	}
}

func parseCSV(data []byte) ([]Column, []map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv has no header row")
	}

	return typeRows(records[0], records[1:])
}

func parseXLSX(data []byte) ([]Column, []map[string]any, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("xlsx has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q has no header row", sheets[0])
	}

	// Short rows are padded so every record matches the header width.
	header := rows[0]
	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		for len(row) < len(header) {
			row = append(row, "")
		}
		records = append(records, row[:len(header)])
	}

	return typeRows(header, records)
}

func parseJSON(data []byte) ([]Column, []map[string]any, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}

	// Collect the union of keys in a stable order.
	seen := map[string]bool{}
	var names []string
	for _, rec := range raw {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)

	// Re-render values as strings and reuse the shared type inference so
	// all three formats produce identical column typing.
	records := make([][]string, 0, len(raw))
	for _, rec := range raw {
		row := make([]string, len(names))
		for i, name := range names {
			v, ok := rec[name]
			if !ok || v == nil {
				continue
			}
			switch t := v.(type) {
			case string:
				row[i] = t
			case bool:
				row[i] = strconv.FormatBool(t)
			case float64:
				row[i] = strconv.FormatFloat(t, 'f', -1, 64)
			default:
				b, _ := json.Marshal(t)
				row[i] = string(b)
			}
		}
		records = append(records, row)
	}

	return typeRows(names, records)
}

// typeRows infers a type per column and converts cells. A column is
// integer if every non-empty cell parses as an integer, float if every
// non-empty cell parses as a number, boolean if every non-empty cell is
// true/false, otherwise string. Empty cells become nil.
func typeRows(header []string, records [][]string) ([]Column, []map[string]any, error) {
	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = Column{Name: strings.TrimSpace(name), Type: inferType(records, i)}
	}

	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if i >= len(rec) {
				row[col.Name] = nil
				continue
			}
			row[col.Name] = convertCell(rec[i], col.Type)
		}
		rows = append(rows, row)
	}

	return cols, rows, nil
}

func inferType(records [][]string, col int) ColumnType {
	isInt, isFloat, isBool := true, true, true
	sawValue := false

	for _, rec := range records {
		if col >= len(rec) {
			continue
		}
		cell := strings.TrimSpace(rec[col])
		if cell == "" {
			continue
		}
		sawValue = true

		if isInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			lower := strings.ToLower(cell)
			if lower != "true" && lower != "false" {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			break
		}
	}

	switch {
	case !sawValue:
		return TypeString
	case isInt:
		return TypeInteger
	case isFloat:
		return TypeFloat
	case isBool:
		return TypeBool
	default:
		return TypeString
	}
}

func convertCell(cell string, t ColumnType) any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	switch t {
	case TypeInteger:
		v, _ := strconv.ParseInt(cell, 10, 64)
		return v
	case TypeFloat:
		v, _ := strconv.ParseFloat(cell, 64)
		return v
	case TypeBool:
		return strings.EqualFold(cell, "true")
	default:
		return cell
	}
}
