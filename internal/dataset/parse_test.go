package dataset

import (
	"testing"
)

func TestParseCSVInfersColumnTypes(t *testing.T) {
	data := []byte("order_id,amount,shipped,category\n" +
		"1,9.99,true,electronics\n" +
		"2,15,false,books\n" +
		"3,,true,books\n")

	cols, rows, err := Parse("orders.csv", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := map[string]ColumnType{
		"order_id": TypeInteger,
		"amount":   TypeFloat,
		"shipped":  TypeBool,
		"category": TypeString,
	}
	if len(cols) != len(want) {
		t.Fatalf("got %d columns, want %d", len(cols), len(want))
	}
	for _, c := range cols {
		if want[c.Name] != c.Type {
			t.Errorf("column %s: type %s, want %s", c.Name, c.Type, want[c.Name])
		}
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0]["order_id"] != int64(1) {
		t.Errorf("order_id = %#v, want int64(1)", rows[0]["order_id"])
	}
	if rows[0]["amount"] != 9.99 {
		t.Errorf("amount = %#v, want 9.99", rows[0]["amount"])
	}
	if rows[1]["shipped"] != false {
		t.Errorf("shipped = %#v, want false", rows[1]["shipped"])
	}
	if rows[2]["amount"] != nil {
		t.Errorf("empty cell = %#v, want nil", rows[2]["amount"])
	}
}

func TestParseCSVIntegerColumnStaysIntegerOnlyWhenAllCellsAre(t *testing.T) {
	data := []byte("n\n1\n2.5\n")

	cols, _, err := Parse("mixed.csv", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cols[0].Type != TypeFloat {
		t.Errorf("type = %s, want float", cols[0].Type)
	}
}

func TestParseJSONArrayOfObjects(t *testing.T) {
	data := []byte(`[
		{"sku": "A1", "qty": 3},
		{"sku": "B2", "qty": 7, "note": "gift"}
	]`)

	cols, rows, err := Parse("inventory.json", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Union of keys, sorted.
	names := []string{"note", "qty", "sku"}
	for i, c := range cols {
		if c.Name != names[i] {
			t.Errorf("column %d = %s, want %s", i, c.Name, names[i])
		}
	}

	if rows[0]["note"] != nil {
		t.Errorf("missing key = %#v, want nil", rows[0]["note"])
	}
	if rows[1]["qty"] != int64(7) {
		t.Errorf("qty = %#v, want int64(7)", rows[1]["qty"])
	}
}

func TestParseJSONRejectsNonArray(t *testing.T) {
	if _, _, err := Parse("bad.json", []byte(`{"not": "an array"}`)); err == nil {
		t.Error("expected error for non-array JSON")
	}
}

func TestParseUnsupportedExtension(t *testing.T) {
	if _, _, err := Parse("report.pdf", []byte("x")); err == nil {
		t.Error("expected error for unsupported file type")
	}
}

func TestParseCSVEmptyColumnDefaultsToString(t *testing.T) {
	cols, _, err := Parse("sparse.csv", []byte("a,b\n1,\n2,\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cols[1].Type != TypeString {
		t.Errorf("all-empty column type = %s, want string", cols[1].Type)
	}
}
