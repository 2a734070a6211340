package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cartlens/cartlens/internal/artifact"
	"github.com/cartlens/cartlens/internal/dataset"
)

// fakeSource serves fixed files from memory.
type fakeSource struct {
	files map[string][]byte
}

func (s *fakeSource) List(ctx context.Context) ([]dataset.FileInfo, error) {
	var out []dataset.FileInfo
	for name, data := range s.files {
		id := name[:strings.LastIndex(name, ".")]
		out = append(out, dataset.FileInfo{ID: id, Name: name, Size: int64(len(data))})
	}
	return out, nil
}

func (s *fakeSource) Fetch(ctx context.Context, id string) (string, []byte, error) {
	for name, data := range s.files {
		if strings.TrimSuffix(name, name[strings.LastIndex(name, "."):]) == id {
			return name, data, nil
		}
	}
	return "", nil, &dataset.NotFoundError{ID: id}
}

const ordersCSV = "order_id,category,amount,shipped\n" +
	"1,electronics,120.0,true\n" +
	"2,books,15.5,true\n" +
	"3,electronics,80.0,false\n" +
	"4,books,9.5,true\n" +
	"5,garden,42.0,false\n"

func newTestRegistry(t *testing.T, withArtifacts bool) *Registry {
	t.Helper()

	src := &fakeSource{files: map[string][]byte{"orders.csv": []byte(ordersCSV)}}
	provider := dataset.NewProvider(src, nil)

	var store *artifact.Store
	if withArtifacts {
		dir := t.TempDir()
		var err error
		store, err = artifact.NewStore(dir, dir+"/index.db", nil)
		if err != nil {
			t.Fatalf("artifact store: %v", err)
		}
		t.Cleanup(func() { store.Close() })
	}

	return NewRegistry(provider, store, nil)
}

func TestDeclarationsAreSortedAndComplete(t *testing.T) {
	r := newTestRegistry(t, true)

	decls := r.Declarations()
	want := []string{"chart", "describe_dataset", "list_datasets", "query", "statistic"}
	if len(decls) != len(want) {
		t.Fatalf("got %d declarations, want %d", len(decls), len(want))
	}
	for i, name := range want {
		if decls[i].Name != name {
			t.Errorf("declaration %d = %s, want %s", i, decls[i].Name, name)
		}
	}
}

func TestChartToolAbsentWithoutArtifactStore(t *testing.T) {
	r := newTestRegistry(t, false)
	if r.Get("chart") != nil {
		t.Error("chart must not be registered without an artifact store")
	}
}

func TestExecuteUnknownToolIsFailureResult(t *testing.T) {
	r := newTestRegistry(t, false)

	res := r.Execute(context.Background(), "drop_table", nil)
	if res.Status != "failure" {
		t.Fatalf("status = %s, want failure", res.Status)
	}
	if !strings.Contains(res.Error, "drop_table") {
		t.Errorf("error should name the tool: %s", res.Error)
	}
}

func TestExecuteRejectsUnknownParameter(t *testing.T) {
	r := newTestRegistry(t, false)

	res := r.Execute(context.Background(), "query", map[string]any{
		"dataset_id": "orders",
		"filterr":    "amount > 10",
	})
	if res.Status != "failure" {
		t.Fatalf("status = %s, want failure", res.Status)
	}
	if !strings.Contains(res.Error, "filterr") {
		t.Errorf("error should name the misspelled parameter: %s", res.Error)
	}
}

func TestResultContentIsJSON(t *testing.T) {
	res := Result{Tool: "query", Status: "success", Payload: &Table{Columns: []string{"a"}}}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(res.Content()), &decoded); err != nil {
		t.Fatalf("Content is not valid JSON: %v", err)
	}
	if decoded["status"] != "success" {
		t.Errorf("status = %v", decoded["status"])
	}
}
