package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/veildb/veildb/internal/property"
	"github.com/veildb/veildb/internal/provider"
	"github.com/veildb/veildb/internal/schema"
	"github.com/veildb/veildb/internal/source"
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
				},
				PrimaryKey: "id",
				ForeignKeys: []schema.ForeignKey{
					{FromTable: "runs", FromColumn: "user_id", ToTable: "users", ToColumn: "id"},
				},
			},
		},
	}
}

// testProps resolves a property list mixing a plain column, a provider and
// an aggregate.
func testProps(t *testing.T, specs []property.Spec) []*property.Resolved {
	t.Helper()
	reg := provider.NewRegistry(func() time.Time {
		return time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	})
	resolved, err := property.Resolve(specs, testSchema(), "users", reg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return resolved
}

func defaultSpecs() []property.Spec {
	return []property.Spec{
		{Name: "city", Source: "users.city", Expose: true},
		{Name: "age", Source: "^age_from_birthday(users.birthday)", Expose: true},
	}
}

func testManager(t *testing.T, mock *source.MockAdapter, specs []property.Spec) *Manager {
	t.Helper()
	m, err := NewManager(mock, testSchema(), testProps(t, specs), "users", nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

// mockRows builds raw fetch rows as the backend would return them: the id
// alias, column aliases and provider argument aliases.
func mockRows() []map[string]interface{} {
	return []map[string]interface{}{
		{IDKey: int64(1), "city": "Boston", "__arg_age_0": "1990-06-10"},
		{IDKey: int64(2), "city": "Denver", "__arg_age_0": "2004-06-20"},
		{IDKey: int64(3), "city": "Boston", "__arg_age_0": "1970-01-01"},
	}
}

func TestAllProjectsAndComputesProviders(t *testing.T) {
	mock := &source.MockAdapter{QueryResult: mockRows()}
	m := testManager(t, mock, defaultSpecs())

	rows, err := m.All(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	if rows[0]["city"] != "Boston" {
		t.Errorf("city = %v", rows[0]["city"])
	}
	if rows[0]["age"] != 34 {
		t.Errorf("age = %v, want 34", rows[0]["age"])
	}
	if _, ok := rows[0][IDKey]; ok {
		t.Error("true id must not leak into projected rows")
	}
	if _, ok := rows[0]["__arg_age_0"]; ok {
		t.Error("provider argument alias must not leak into projected rows")
	}
}

func TestAllPushesWindowIntoQuery(t *testing.T) {
	mock := &source.MockAdapter{QueryResult: nil}
	m := testManager(t, mock, defaultSpecs())

	start, end := 10, 20
	if _, err := m.All(context.Background(), &start, &end); err != nil {
		t.Fatalf("All: %v", err)
	}
	if !strings.Contains(mock.LastQuery, "LIMIT 10 OFFSET 10") {
		t.Errorf("window not pushed into backend query: %q", mock.LastQuery)
	}
}

func TestFilterPushesColumnComparison(t *testing.T) {
	mock := &source.MockAdapter{QueryResult: mockRows()[:1]}
	m := testManager(t, mock, defaultSpecs())

	rows, err := m.Filter(context.Background(), "city=Boston", nil, nil)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if !strings.Contains(mock.LastQuery, `WHERE "users"."city" = ?`) {
		t.Errorf("column comparison not pushed: %q", mock.LastQuery)
	}
	if len(mock.LastArgs) != 1 || mock.LastArgs[0] != "Boston" {
		t.Errorf("args = %v", mock.LastArgs)
	}
}

func TestFilterPostFiltersProviderComparison(t *testing.T) {
	mock := &source.MockAdapter{QueryResult: mockRows()}
	m := testManager(t, mock, defaultSpecs())

	rows, err := m.Filter(context.Background(), "age>30", nil, nil)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	// ages at the fixed clock: 34, 19, 54
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if strings.Contains(mock.LastQuery, "WHERE") {
		t.Errorf("provider comparison must not be pushed: %q", mock.LastQuery)
	}
}

func TestFilterWindowsTheFilteredSet(t *testing.T) {
	mock := &source.MockAdapter{QueryResult: mockRows()}
	m := testManager(t, mock, defaultSpecs())

	start, end := 1, 2
	rows, err := m.Filter(context.Background(), "age>30", &start, &end, WithTrueID())
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	// the second match of ages {34, 54} is user 3
	if rows[0][IDKey] != int64(3) {
		t.Errorf("windowed the raw fetch instead of the filtered set: id = %v", rows[0][IDKey])
	}
	if strings.Contains(mock.LastQuery, "LIMIT") {
		t.Errorf("filter window must not reach the backend: %q", mock.LastQuery)
	}
}

func TestCountMatchesFilterLength(t *testing.T) {
	for _, expr := range []string{"", "age>30", "city=Boston", "age>30 or city=Denver"} {
		mock := &source.MockAdapter{QueryResult: mockRows()}
		m := testManager(t, mock, defaultSpecs())

		rows, err := m.Filter(context.Background(), expr, nil, nil)
		if err != nil {
			t.Fatalf("Filter(%q): %v", expr, err)
		}

		mock2 := &source.MockAdapter{QueryResult: mockRows()}
		m2 := testManager(t, mock2, defaultSpecs())
		n, err := m2.Count(context.Background(), expr)
		if err != nil {
			t.Fatalf("Count(%q): %v", expr, err)
		}
		if n != len(rows) {
			t.Errorf("Count(%q) = %d, len(Filter) = %d", expr, n, len(rows))
		}
	}
}

func TestFilterUnknownProperty(t *testing.T) {
	mock := &source.MockAdapter{}
	m := testManager(t, mock, defaultSpecs())

	_, err := m.Filter(context.Background(), "shoe_size>44", nil, nil)
	var unknown *UnknownPropertyError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownPropertyError, got %v", err)
	}
	if unknown.Name != "shoe_size" {
		t.Errorf("error should name the property: %v", err)
	}
}

func TestBuildQueryJoinsRelatedTable(t *testing.T) {
	specs := append(defaultSpecs(),
		property.Spec{Name: "avg_distance", Source: "runs.distance", Aggregate: "avg", Expose: true})
	mock := &source.MockAdapter{}
	m := testManager(t, mock, specs)

	if _, err := m.All(context.Background(), nil, nil); err != nil {
		t.Fatalf("All: %v", err)
	}
	q := mock.LastQuery
	if !strings.Contains(q, `LEFT JOIN "runs" ON "runs"."user_id" = "users"."id"`) {
		t.Errorf("missing join: %q", q)
	}
	if !strings.Contains(q, `AVG("runs"."distance") AS "avg_distance"`) {
		t.Errorf("missing aggregate select: %q", q)
	}
	if !strings.Contains(q, "GROUP BY") {
		t.Errorf("aggregate query must group: %q", q)
	}
	if !strings.Contains(q, `ORDER BY "users"."id"`) {
		t.Errorf("query must order by the base primary key: %q", q)
	}
}

func TestSliceWindowClamps(t *testing.T) {
	rows := []Row{{"a": 1}, {"a": 2}, {"a": 3}}

	if got := sliceWindow(rows, intp(1), intp(10)); len(got) != 2 {
		t.Errorf("end beyond size: got %d rows, want 2", len(got))
	}
	if got := sliceWindow(rows, intp(5), intp(9)); len(got) != 0 {
		t.Errorf("start beyond size: got %d rows, want 0", len(got))
	}
	if got := sliceWindow(rows, nil, nil); len(got) != 3 {
		t.Errorf("unbounded: got %d rows, want 3", len(got))
	}
}

func TestListFiltersProviderOptions(t *testing.T) {
	specs := []property.Spec{
		{Name: "part", Source: "^part_of_day_from_hour(runs.distance)", Expose: true},
	}
	mock := &source.MockAdapter{}
	m := testManager(t, mock, specs)

	infos, err := m.ListFilters(context.Background())
	if err != nil {
		t.Fatalf("ListFilters: %v", err)
	}
	if len(infos) != 1 || !infos[0].HasOptions {
		t.Fatalf("got %+v", infos)
	}
	want := []string{"Night", "Morning", "Noon", "Afternoon", "Evening"}
	if len(infos[0].Options) != len(want) {
		t.Errorf("options = %v", infos[0].Options)
	}
}

func TestListFiltersAutoOptions(t *testing.T) {
	specs := []property.Spec{
		{Name: "city", Source: "users.city", Expose: true, OptionsAuto: true},
	}
	mock := &source.MockAdapter{QueryResult: []map[string]interface{}{
		{"value": "Boston"},
		{"value": "Denver"},
	}}
	m := testManager(t, mock, specs)

	infos, err := m.ListFilters(context.Background())
	if err != nil {
		t.Fatalf("ListFilters: %v", err)
	}
	if !infos[0].HasOptions || len(infos[0].Options) != 2 {
		t.Fatalf("got %+v", infos[0])
	}
	if !strings.Contains(mock.LastQuery, "SELECT DISTINCT") {
		t.Errorf("auto options should enumerate distinct values: %q", mock.LastQuery)
	}
}

func TestHelpListsCommandsAndProperties(t *testing.T) {
	mock := &source.MockAdapter{}
	m := testManager(t, mock, defaultSpecs())

	text, err := m.Help(context.Background())
	if err != nil {
		t.Fatalf("Help: %v", err)
	}
	for _, want := range []string{"all()", "filter(some_filter)", "count(some_filter)", "properties", "age", "city"} {
		if !strings.Contains(text, want) {
			t.Errorf("help text missing %q", want)
		}
	}
}
