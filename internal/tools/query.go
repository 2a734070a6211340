package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cartlens/cartlens/internal/dataset"
)

const defaultRowLimit = 100

func (r *Registry) registerQueryTools() {
	r.Register(&Tool{
		Name: "query",
		Description: "Filter a dataset and optionally group and aggregate the result. " +
			"The filter is a boolean expression over column comparisons, e.g. " +
			"category == 'electronics' and amount > 10, or department in ['produce', 'dairy']. " +
			"An empty result is valid, not an error.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dataset_id": map[string]any{
					"type":        "string",
					"description": "The dataset to query (see list_datasets)",
				},
				"filter": map[string]any{
					"type":        "string",
					"description": "Boolean filter expression; omit to keep all rows. Operators: ==, !=, <, >, <=, >=, in [...], and, or, not",
				},
				"group_by": map[string]any{
					"type":        "string",
					"description": "Column to group by; groups are returned sorted by the aggregate value, descending",
				},
				"aggregate": map[string]any{
					"type": "object",
					"description": "Aggregate to apply after filtering: {\"op\": one of sum|mean|count|min|max|distinct_count, " +
						"\"column\": column name (optional for count)}",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum rows to return (default 100)",
				},
			},
			"required": []string{"dataset_id"},
		},
		Handler: r.handleQuery,
	})

	r.Register(&Tool{
		Name:        "statistic",
		Description: "Compute a single statistic over one column of a dataset.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dataset_id": map[string]any{
					"type":        "string",
					"description": "The dataset to read",
				},
				"column": map[string]any{
					"type":        "string",
					"description": "Column to aggregate",
				},
				"op": map[string]any{
					"type":        "string",
					"description": "Aggregation to apply",
					"enum":        []string{"sum", "mean", "count", "min", "max", "distinct_count"},
				},
			},
			"required": []string{"dataset_id", "column", "op"},
		},
		Handler: r.handleStatistic,
	})
}

func (r *Registry) handleQuery(ctx context.Context, args map[string]any) (any, error) {
	ds, err := r.provider.Load(ctx, stringArg(args, "dataset_id"))
	if err != nil {
		return nil, err
	}

	rows := ds.Rows
	if filter := stringArg(args, "filter"); filter != "" {
		rows, err = filterRows(ds, filter)
		if err != nil {
			return nil, err
		}
	}

	limit := intArg(args, "limit", defaultRowLimit)
	groupBy := stringArg(args, "group_by")
	aggSpec, _ := args["aggregate"].(map[string]any)

	switch {
	case groupBy != "":
		return groupedTable(ds, rows, groupBy, aggSpec, limit)
	case aggSpec != nil:
		op := stringArg(aggSpec, "op")
		col := stringArg(aggSpec, "column")
		value, err := aggregate(ds, rows, col, op)
		if err != nil {
			return nil, err
		}
		return &Table{Columns: []string{aggColumnName(op, col)}, Rows: [][]any{{value}}}, nil
	default:
		return rawTable(ds, rows, limit), nil
	}
}

func (r *Registry) handleStatistic(ctx context.Context, args map[string]any) (any, error) {
	ds, err := r.provider.Load(ctx, stringArg(args, "dataset_id"))
	if err != nil {
		return nil, err
	}

	column := stringArg(args, "column")
	op := stringArg(args, "op")

	value, err := aggregate(ds, ds.Rows, column, op)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"dataset_id": ds.ID,
		"column":     column,
		"op":         op,
		"value":      value,
		"rows":       len(ds.Rows),
	}, nil
}

// filterRows compiles the filter against the dataset's column
// environment and evaluates it per row. Compiling against the schema
// means an unknown column fails before any row is touched.
func filterRows(ds *dataset.Dataset, filter string) ([]map[string]any, error) {
	program, err := compileFilter(ds, filter)
	if err != nil {
		return nil, err
	}

	var kept []map[string]any
	for _, row := range ds.Rows {
		out, err := expr.Run(program, rowEnv(ds, row))
		if err != nil {
			return nil, &QueryError{Clause: filter, Detail: err.Error()}
		}
		if out.(bool) {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

func compileFilter(ds *dataset.Dataset, filter string) (*vm.Program, error) {
	env := make(map[string]any, len(ds.Columns))
	for _, c := range ds.Columns {
		env[c.Name] = zeroValue(c.Type)
	}

	program, err := expr.Compile(normalizeFilter(filter), expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, &QueryError{Clause: filter, Detail: err.Error()}
	}
	return program, nil
}

// rowEnv substitutes typed zero values for missing cells so comparisons
// never see nil.
func rowEnv(ds *dataset.Dataset, row map[string]any) map[string]any {
	env := make(map[string]any, len(ds.Columns))
	for _, c := range ds.Columns {
		if v := row[c.Name]; v != nil {
			env[c.Name] = v
		} else {
			env[c.Name] = zeroValue(c.Type)
		}
	}
	return env
}

func zeroValue(t dataset.ColumnType) any {
	switch t {
	case dataset.TypeInteger:
		return int64(0)
	case dataset.TypeFloat:
		return float64(0)
	case dataset.TypeBool:
		return false
	default:
		return ""
	}
}

// normalizeFilter rewrites a lone '=' (outside quotes) to '==' so the
// plain '=' equality form works alongside expression syntax.
func normalizeFilter(filter string) string {
	var b strings.Builder
	var quote rune
	runes := []rune(filter)

	for i, c := range runes {
		if quote != 0 {
			b.WriteRune(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteRune(c)
		case c == '=':
			prevIsOp := i > 0 && strings.ContainsRune("=!<>", runes[i-1])
			nextIsEq := i+1 < len(runes) && runes[i+1] == '='
			if prevIsOp || nextIsEq {
				b.WriteRune(c)
			} else {
				b.WriteString("==")
			}
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// rawTable projects rows into column order, capped at limit.
func rawTable(ds *dataset.Dataset, rows []map[string]any, limit int) *Table {
	columns := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		columns[i] = c.Name
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		rec := make([]any, len(columns))
		for i, name := range columns {
			rec[i] = row[name]
		}
		out = append(out, rec)
	}
	return &Table{Columns: columns, Rows: out}
}

// groupedTable groups rows by a column and applies the aggregate per
// group (count when no aggregate is given), sorted by aggregate value
// descending.
func groupedTable(ds *dataset.Dataset, rows []map[string]any, groupBy string, aggSpec map[string]any, limit int) (*Table, error) {
	if _, ok := ds.Column(groupBy); !ok {
		return nil, &QueryError{Clause: groupBy, Detail: "unknown column"}
	}

	op := "count"
	col := ""
	if aggSpec != nil {
		op = stringArg(aggSpec, "op")
		col = stringArg(aggSpec, "column")
	}

	groups := make(map[string][]map[string]any)
	var order []string
	for _, row := range rows {
		key := fmt.Sprintf("%v", row[groupBy])
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	type grouped struct {
		key   string
		value any
	}
	out := make([]grouped, 0, len(groups))
	for _, key := range order {
		value, err := aggregate(ds, groups[key], col, op)
		if err != nil {
			return nil, err
		}
		out = append(out, grouped{key: key, value: value})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return toFloat(out[i].value) > toFloat(out[j].value)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	table := &Table{Columns: []string{groupBy, aggColumnName(op, col)}}
	for _, g := range out {
		table.Rows = append(table.Rows, []any{g.key, g.value})
	}
	return table, nil
}

func aggColumnName(op, col string) string {
	if col == "" {
		return op
	}
	return op + "_" + col
}
