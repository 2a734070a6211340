package tools

import (
	"fmt"

	"github.com/cartlens/cartlens/internal/dataset"
)

// aggregate computes op over one column of the given rows. An empty
// column is allowed only for count, which then counts rows. Numeric ops
// on non-numeric columns are a QueryError, reported back to the caller
// rather than retried.
func aggregate(ds *dataset.Dataset, rows []map[string]any, colName, op string) (any, error) {
	if colName == "" {
		if op == "count" {
			return int64(len(rows)), nil
		}
		return nil, &QueryError{Detail: fmt.Sprintf("op %q requires a column", op)}
	}

	col, ok := ds.Column(colName)
	if !ok {
		return nil, &QueryError{Clause: colName, Detail: "unknown column"}
	}

	switch op {
	case "count":
		var n int64
		for _, row := range rows {
			if row[colName] != nil {
				n++
			}
		}
		return n, nil

	case "distinct_count":
		seen := make(map[string]bool)
		for _, row := range rows {
			if v := row[colName]; v != nil {
				seen[fmt.Sprintf("%v", v)] = true
			}
		}
		return int64(len(seen)), nil

	case "sum", "mean", "min", "max":
		if col.Type != dataset.TypeInteger && col.Type != dataset.TypeFloat {
			return nil, &QueryError{
				Clause: colName,
				Detail: fmt.Sprintf("op %q requires a numeric column, got %s", op, col.Type),
			}
		}
		return numericAggregate(rows, col, op)

	default:
		return nil, &QueryError{Detail: fmt.Sprintf("unsupported op %q", op)}
	}
}

func numericAggregate(rows []map[string]any, col dataset.Column, op string) (any, error) {
	var sum, min, max float64
	var n int64

	for _, row := range rows {
		v := row[col.Name]
		if v == nil {
			continue
		}
		f := toFloat(v)
		if n == 0 {
			min, max = f, f
		} else {
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
		sum += f
		n++
	}

	if n == 0 {
		if op == "mean" {
			return nil, &QueryError{Clause: col.Name, Detail: "mean of an empty column"}
		}
		return numericValue(0, col.Type), nil
	}

	switch op {
	case "sum":
		return numericValue(sum, col.Type), nil
	case "mean":
		return sum / float64(n), nil
	case "min":
		return numericValue(min, col.Type), nil
	case "max":
		return numericValue(max, col.Type), nil
	}
	return nil, &QueryError{Detail: fmt.Sprintf("unsupported op %q", op)}
}

// numericValue keeps integer columns integer in results; mean is the
// only op that always yields a float.
func numericValue(f float64, t dataset.ColumnType) any {
	if t == dataset.TypeInteger {
		return int64(f)
	}
	return f
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
