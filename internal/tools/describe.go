package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/cartlens/cartlens/internal/dataset"
)

const topValueCount = 5

func (r *Registry) registerDescribeTools() {
	r.Register(&Tool{
		Name:        "list_datasets",
		Description: "List the datasets available in the store.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: r.handleListDatasets,
	})

	r.Register(&Tool{
		Name: "describe_dataset",
		Description: "Profile a dataset: shape, per-column types, missing counts, " +
			"numeric summaries, and the most frequent values of text columns.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dataset_id": map[string]any{
					"type":        "string",
					"description": "The dataset to profile (see list_datasets)",
				},
			},
			"required": []string{"dataset_id"},
		},
		Handler: r.handleDescribeDataset,
	})
}

func (r *Registry) handleListDatasets(ctx context.Context, args map[string]any) (any, error) {
	entries, err := r.provider.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":    e.ID,
			"name":  e.Name,
			"bytes": e.Size,
		})
	}
	return map[string]any{"datasets": out, "count": len(out)}, nil
}

type columnProfile struct {
	Name      string           `json:"name"`
	Type      string           `json:"type"`
	Missing   int              `json:"missing"`
	Distinct  int              `json:"distinct"`
	Min       any              `json:"min,omitempty"`
	Max       any              `json:"max,omitempty"`
	Mean      any              `json:"mean,omitempty"`
	TopValues []valueFrequency `json:"top_values,omitempty"`
}

type valueFrequency struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

func (r *Registry) handleDescribeDataset(ctx context.Context, args map[string]any) (any, error) {
	ds, err := r.provider.Load(ctx, stringArg(args, "dataset_id"))
	if err != nil {
		return nil, err
	}

	profiles := make([]columnProfile, 0, len(ds.Columns))
	for _, col := range ds.Columns {
		profiles = append(profiles, profileColumn(ds, col))
	}

	return map[string]any{
		"dataset_id":  ds.ID,
		"rows":        len(ds.Rows),
		"columns":     profiles,
		"fingerprint": ds.Fingerprint,
		"loaded_at":   ds.LoadedAt,
	}, nil
}

func profileColumn(ds *dataset.Dataset, col dataset.Column) columnProfile {
	p := columnProfile{Name: col.Name, Type: string(col.Type)}

	counts := make(map[string]int)
	for _, row := range ds.Rows {
		v := row[col.Name]
		if v == nil {
			p.Missing++
			continue
		}
		counts[stringValue(v)]++
	}
	p.Distinct = len(counts)

	switch col.Type {
	case dataset.TypeInteger, dataset.TypeFloat:
		if min, err := aggregate(ds, ds.Rows, col.Name, "min"); err == nil {
			p.Min = min
		}
		if max, err := aggregate(ds, ds.Rows, col.Name, "max"); err == nil {
			p.Max = max
		}
		if mean, err := aggregate(ds, ds.Rows, col.Name, "mean"); err == nil {
			p.Mean = mean
		}
	case dataset.TypeString:
		p.TopValues = topValues(counts, topValueCount)
	}

	return p
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// topValues returns the n most frequent values, ties broken
// alphabetically so profiles are deterministic.
func topValues(counts map[string]int, n int) []valueFrequency {
	freqs := make([]valueFrequency, 0, len(counts))
	for v, c := range counts {
		freqs = append(freqs, valueFrequency{Value: v, Count: c})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].Count != freqs[j].Count {
			return freqs[i].Count > freqs[j].Count
		}
		return freqs[i].Value < freqs[j].Value
	})
	if len(freqs) > n {
		freqs = freqs[:n]
	}
	return freqs
}
