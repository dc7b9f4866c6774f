package schema

import (
	"errors"
	"testing"
)

func testSchema() *Schema {
	return &Schema{
		BackendType: "postgresql",
		Database:    "app",
		Tables: []Table{
			{
				Name:       "users",
				PrimaryKey: "id",
				Columns: []Column{
					{Name: "id", DataType: "INT"},
					{Name: "city", DataType: "VARCHAR(64)", Nullable: true},
				},
			},
			{
				Name:       "runs",
				PrimaryKey: "id",
				Columns: []Column{
					{Name: "id", DataType: "INT"},
					{Name: "user_id", DataType: "INT"},
					{Name: "distance", DataType: "FLOAT"},
				},
				ForeignKeys: []ForeignKey{
					{FromTable: "runs", FromColumn: "user_id", ToTable: "users", ToColumn: "id"},
				},
			},
			{Name: "notes", Columns: []Column{{Name: "body", DataType: "TEXT"}}},
		},
	}
}

func TestTableLookup(t *testing.T) {
	s := testSchema()
	tbl, err := s.Table("users")
	if err != nil {
		t.Fatalf("Table(users) failed: %v", err)
	}
	if tbl.PrimaryKey != "id" {
		t.Errorf("primary key = %q, want id", tbl.PrimaryKey)
	}

	_, err = s.Table("orders")
	var unknown *UnknownTableError
	if !errors.As(err, &unknown) || unknown.Table != "orders" {
		t.Errorf("Table(orders) = %v, want UnknownTableError", err)
	}
}

func TestColumnLookup(t *testing.T) {
	s := testSchema()
	c, err := s.Column("users", "city")
	if err != nil {
		t.Fatalf("Column failed: %v", err)
	}
	if c.DataType != "VARCHAR(64)" || !c.Nullable {
		t.Errorf("column = %+v, want nullable VARCHAR(64)", c)
	}
	if got := c.Ref("users"); got != "users.city" {
		t.Errorf("Ref = %q, want users.city", got)
	}

	_, err = s.Column("users", "age")
	var unknown *UnknownColumnError
	if !errors.As(err, &unknown) {
		t.Errorf("Column(users, age) = %v, want UnknownColumnError", err)
	}
}

func TestPrimaryKeyOf(t *testing.T) {
	s := testSchema()
	pk, err := s.PrimaryKeyOf("users")
	if err != nil || pk != "id" {
		t.Fatalf("PrimaryKeyOf(users) = %q, %v", pk, err)
	}

	_, err = s.PrimaryKeyOf("notes")
	var nopk *NoPrimaryKeyError
	if !errors.As(err, &nopk) || nopk.Table != "notes" {
		t.Errorf("PrimaryKeyOf(notes) = %v, want NoPrimaryKeyError", err)
	}
}

func TestForeignKeyBetween(t *testing.T) {
	s := testSchema()
	col, err := s.ForeignKeyBetween("runs", "users")
	if err != nil || col != "user_id" {
		t.Fatalf("ForeignKeyBetween = %q, %v, want user_id", col, err)
	}

	_, err = s.ForeignKeyBetween("users", "runs")
	var norel *NoRelationError
	if !errors.As(err, &norel) {
		t.Errorf("reverse edge = %v, want NoRelationError", err)
	}
}

func TestTableNames(t *testing.T) {
	got := testSchema().TableNames()
	want := []string{"users", "runs", "notes"}
	if len(got) != len(want) {
		t.Fatalf("TableNames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TableNames[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCatalogSnapshotSwap(t *testing.T) {
	c := NewCatalog()
	if c.Loaded() {
		t.Fatal("empty catalog reports Loaded")
	}
	if _, err := c.Snapshot(); err == nil {
		t.Fatal("Snapshot on empty catalog did not fail")
	}

	c.Replace(testSchema())
	if !c.Loaded() {
		t.Fatal("catalog not Loaded after Replace")
	}
	snap, err := c.Snapshot()
	if err != nil || snap.Database != "app" {
		t.Fatalf("Snapshot = %v, %v", snap, err)
	}

	c.Invalidate()
	if c.Loaded() {
		t.Error("catalog still Loaded after Invalidate")
	}
}
