package property

import (
	"errors"
	"testing"
	"time"

	"github.com/veildb/veildb/internal/provider"
	"github.com/veildb/veildb/internal/schema"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		BackendType: "postgresql",
		Database:    "fitness",
		Tables: []schema.Table{
			{
				Name: "users",
				Columns: []schema.Column{
					{Name: "id", DataType: "INT"},
					{Name: "name", DataType: "VARCHAR(64)"},
					{Name: "birthday", DataType: "DATE"},
					{Name: "city", DataType: "VARCHAR(64)"},
				},
				PrimaryKey: "id",
			},
			{
				Name: "runs",
				Columns: []schema.Column{
					{Name: "id", DataType: "INT"},
					{Name: "user_id", DataType: "INT"},
					{Name: "distance", DataType: "INT"},
					{Name: "start_hour", DataType: "INT"},
				},
				PrimaryKey: "id",
				ForeignKeys: []schema.ForeignKey{
					{FromTable: "runs", FromColumn: "user_id", ToTable: "users", ToColumn: "id"},
				},
			},
		},
	}
}

func testRegistry() *provider.Registry {
	return provider.NewRegistry(func() time.Time {
		return time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	})
}

func TestParseProviderSourceRoundTrip(t *testing.T) {
	cases := []string{
		"^age_from_birthday(users.birthday)",
		"^part_of_day_from_hour(runs.start_hour)",
		"^noargs()",
	}
	for _, src := range cases {
		name, args, err := ParseProviderSource(src)
		if err != nil {
			t.Fatalf("ParseProviderSource(%q): %v", src, err)
		}
		if got := EncodeProviderSource(name, args); got != src {
			t.Errorf("round trip of %q = %q", src, got)
		}
	}
}

func TestParseProviderSourceMalformed(t *testing.T) {
	for _, src := range []string{"users.birthday", "^noparens", "^open(arg"} {
		if _, _, err := ParseProviderSource(src); err == nil {
			t.Errorf("ParseProviderSource(%q): expected error", src)
		}
	}
}

func TestResolveColumn(t *testing.T) {
	specs := []Spec{
		{Name: "city", Source: "users.city", Expose: true},
	}
	resolved, err := Resolve(specs, testSchema(), "users", testRegistry())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	r := resolved[0]
	if r.Kind != KindColumn {
		t.Errorf("Kind = %v, want KindColumn", r.Kind)
	}
	if r.Column.Joined() {
		t.Error("base-table column should not be joined")
	}
	if r.Type() != "VARCHAR(64)" {
		t.Errorf("Type = %q, want declared column type", r.Type())
	}
	if r.EncodeSource() != "users.city" {
		t.Errorf("EncodeSource = %q", r.EncodeSource())
	}
}

func TestResolveJoinedColumn(t *testing.T) {
	specs := []Spec{
		{Name: "run_distance", Source: "runs.distance", Expose: true},
	}
	resolved, err := Resolve(specs, testSchema(), "users", testRegistry())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	r := resolved[0]
	if !r.Column.Joined() {
		t.Fatal("related-table column should be joined")
	}
	if r.Column.JoinFK != "user_id" {
		t.Errorf("JoinFK = %q, want user_id", r.Column.JoinFK)
	}
	if r.Column.JoinTo != "id" {
		t.Errorf("JoinTo = %q, want id", r.Column.JoinTo)
	}
	if r.Spec.RelFK != "user_id" || r.Spec.RelTo != "id" {
		t.Errorf("join not persisted on spec: rel_fk=%q rel_to=%q", r.Spec.RelFK, r.Spec.RelTo)
	}
}

func TestResolveAggregateForcesFloat(t *testing.T) {
	specs := []Spec{
		{Name: "avg_distance", Source: "runs.distance", Aggregate: "avg", Expose: true},
	}
	resolved, err := Resolve(specs, testSchema(), "users", testRegistry())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	r := resolved[0]
	if r.Kind != KindAggregate {
		t.Errorf("Kind = %v, want KindAggregate", r.Kind)
	}
	if r.Type() != "FLOAT" {
		t.Errorf("Type = %q, want FLOAT", r.Type())
	}
}

func TestResolveProvider(t *testing.T) {
	specs := []Spec{
		{Name: "age", Source: "^age_from_birthday(users.birthday)", Expose: true},
	}
	resolved, err := Resolve(specs, testSchema(), "users", testRegistry())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	r := resolved[0]
	if r.Kind != KindProvider {
		t.Fatalf("Kind = %v, want KindProvider", r.Kind)
	}
	if r.Provider.Name != "age_from_birthday" {
		t.Errorf("Provider = %q", r.Provider.Name)
	}
	if r.Type() != "INT" {
		t.Errorf("Type = %q, want provider return type INT", r.Type())
	}
	if r.EncodeSource() != specs[0].Source {
		t.Errorf("EncodeSource = %q, want %q", r.EncodeSource(), specs[0].Source)
	}
}

func TestResolveErrors(t *testing.T) {
	s := testSchema()
	reg := testRegistry()

	cases := []struct {
		name  string
		specs []Spec
		check func(error) bool
	}{
		{
			"unknown provider",
			[]Spec{{Name: "x", Source: "^bogus(users.id)"}},
			func(err error) bool {
				var e *UnknownProviderError
				return errors.As(err, &e)
			},
		},
		{
			"argument count mismatch",
			[]Spec{{Name: "x", Source: "^age_from_birthday(users.birthday,users.city)"}},
			func(err error) bool {
				var e *ArgumentMismatchError
				return errors.As(err, &e) && e.Want == 1 && e.Got == 2
			},
		},
		{
			"unknown column",
			[]Spec{{Name: "x", Source: "users.nope"}},
			func(err error) bool {
				var e *schema.UnknownColumnError
				return errors.As(err, &e)
			},
		},
		{
			"unknown table",
			[]Spec{{Name: "x", Source: "ghosts.id"}},
			func(err error) bool {
				var e *schema.UnknownTableError
				return errors.As(err, &e)
			},
		},
		{
			"duplicate name",
			[]Spec{
				{Name: "x", Source: "users.city"},
				{Name: "x", Source: "users.name"},
			},
			func(err error) bool {
				var e *DuplicateNameError
				return errors.As(err, &e)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.specs, s, "users", reg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !tc.check(err) {
				t.Errorf("wrong error type: %v", err)
			}
		})
	}
}

func TestSuggestUsersTable(t *testing.T) {
	got := SuggestUsersTable([]string{"orders", "app_users", "runs", "Users"})
	want := []string{"app_users", "Users", "orders", "runs"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSuggestDefaults(t *testing.T) {
	s := testSchema()
	tbl, err := s.Table("users")
	if err != nil {
		t.Fatal(err)
	}

	specs := SuggestDefaults(tbl)
	if len(specs) != 3 {
		t.Fatalf("got %d specs, want 3 (primary key excluded)", len(specs))
	}
	for _, sp := range specs {
		if sp.Name == "id" {
			t.Error("primary key must not be suggested")
		}
		if !sp.Expose {
			t.Errorf("spec %q should default to exposed", sp.Name)
		}
	}
}
