package tools

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
)

func (r *Registry) registerChartTool() {
	r.Register(&Tool{
		Name: "chart",
		Description: "Render a chart from tabular rows and return an artifact handle. " +
			"Rows are objects; x names the label/x-axis field and y the numeric value field. " +
			"Typically fed from a query result.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rows": map[string]any{
					"type":        "array",
					"description": "Rows to plot, each an object containing the x and y fields",
				},
				"chart_type": map[string]any{
					"type":        "string",
					"description": "Kind of chart to render",
					"enum":        []string{"bar", "line", "scatter", "pie"},
				},
				"x": map[string]any{
					"type":        "string",
					"description": "Field used for labels (bar, pie) or the x axis (line, scatter)",
				},
				"y": map[string]any{
					"type":        "string",
					"description": "Numeric field used for values",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "Chart title",
				},
			},
			"required": []string{"rows", "chart_type", "x", "y"},
		},
		Handler: r.handleChart,
	})
}

type point struct {
	label string
	x     float64
	xOK   bool
	y     float64
}

func (r *Registry) handleChart(ctx context.Context, args map[string]any) (any, error) {
	rows, _ := args["rows"].([]any)
	chartType := stringArg(args, "chart_type")
	xField := stringArg(args, "x")
	yField := stringArg(args, "y")
	title := stringArg(args, "title")

	points, err := extractPoints(rows, xField, yField)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch chartType {
	case "bar":
		err = renderBar(&buf, title, points)
	case "pie":
		err = renderPie(&buf, title, points)
	case "line":
		err = renderXY(&buf, title, points, false)
	case "scatter":
		err = renderXY(&buf, title, points, true)
	default:
		err = &RenderError{Detail: fmt.Sprintf("unsupported chart type %q", chartType)}
	}
	if err != nil {
		return nil, err
	}

	a, err := r.artifacts.Save(buf.Bytes(), "chart/png", title)
	if err != nil {
		return nil, err
	}

	r.logger.Info("chart rendered", "type", chartType, "points", len(points), "artifact", a.ID)
	return map[string]any{
		"artifact_id": a.ID,
		"kind":        a.Kind,
		"path":        a.Path,
		"chart_type":  chartType,
		"points":      len(points),
	}, nil
}

// extractPoints pulls (x, y) out of each row. A missing or non-numeric
// y is a RenderError; x is kept both as a label and, where it parses,
// as a numeric coordinate.
func extractPoints(rows []any, xField, yField string) ([]point, error) {
	if len(rows) == 0 {
		return nil, &RenderError{Detail: "no rows to plot"}
	}

	points := make([]point, 0, len(rows))
	for i, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			return nil, &RenderError{Detail: fmt.Sprintf("row %d is not an object", i)}
		}

		xv, ok := row[xField]
		if !ok {
			return nil, &RenderError{Detail: fmt.Sprintf("row %d has no field %q", i, xField)}
		}
		yv, ok := row[yField]
		if !ok {
			return nil, &RenderError{Detail: fmt.Sprintf("row %d has no field %q", i, yField)}
		}

		y, ok := asNumber(yv)
		if !ok {
			return nil, &RenderError{Detail: fmt.Sprintf("row %d: field %q is not numeric", i, yField)}
		}

		p := point{label: fmt.Sprintf("%v", xv), y: y}
		p.x, p.xOK = asNumber(xv)
		points = append(points, p)
	}
	return points, nil
}

func renderBar(buf *bytes.Buffer, title string, points []point) error {
	bars := make([]chart.Value, len(points))
	for i, p := range points {
		bars[i] = chart.Value{Label: p.label, Value: p.y}
	}

	c := chart.BarChart{
		Title:    title,
		Width:    1024,
		Height:   512,
		BarWidth: 40,
		Bars:     bars,
	}
	if err := c.Render(chart.PNG, buf); err != nil {
		return &RenderError{Detail: err.Error()}
	}
	return nil
}

func renderPie(buf *bytes.Buffer, title string, points []point) error {
	values := make([]chart.Value, len(points))
	for i, p := range points {
		if p.y < 0 {
			return &RenderError{Detail: fmt.Sprintf("pie slice %q has a negative value", p.label)}
		}
		values[i] = chart.Value{Label: p.label, Value: p.y}
	}

	c := chart.PieChart{
		Title:  title,
		Width:  768,
		Height: 768,
		Values: values,
	}
	if err := c.Render(chart.PNG, buf); err != nil {
		return &RenderError{Detail: err.Error()}
	}
	return nil
}

// renderXY draws line and scatter charts. When any x value is not
// numeric the points fall back to their row order on the x axis.
func renderXY(buf *bytes.Buffer, title string, points []point, scatter bool) error {
	ordinal := false
	for _, p := range points {
		if !p.xOK {
			ordinal = true
			break
		}
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		if ordinal {
			xs[i] = float64(i)
		} else {
			xs[i] = p.x
		}
		ys[i] = p.y
	}

	series := chart.ContinuousSeries{XValues: xs, YValues: ys}
	if scatter {
		series.Style = chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    5,
		}
	}

	c := chart.Chart{
		Title:  title,
		Width:  1024,
		Height: 512,
		Series: []chart.Series{series},
	}
	if err := c.Render(chart.PNG, buf); err != nil {
		return &RenderError{Detail: err.Error()}
	}
	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
