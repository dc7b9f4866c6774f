package schema

import "fmt"

// Schema represents the introspected schema of one configured connection.
type Schema struct {
	BackendType string  `yaml:"backend_type"` // postgresql, mysql, sqlite3 or oracle
	Database    string  `yaml:"database"`
	Tables      []Table `yaml:"tables"`
}

// Table represents a database table.
type Table struct {
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  string       `yaml:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
}

// Column represents a table column.
type Column struct {
	Name     string `yaml:"name"`
	DataType string `yaml:"data_type"`
	Nullable bool   `yaml:"nullable"`
}

// Ref returns the qualified "table.column" reference of a column.
func (c Column) Ref(table string) string {
	return table + "." + c.Name
}

// ForeignKey represents a directed edge table.column -> table.column.
type ForeignKey struct {
	FromTable  string `yaml:"from_table"`
	FromColumn string `yaml:"from_column"`
	ToTable    string `yaml:"to_table"`
	ToColumn   string `yaml:"to_column"`
}

// UnknownTableError is returned when a table is not present in the schema.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q", e.Table)
}

// UnknownColumnError is returned when a column is not present on a table.
type UnknownColumnError struct {
	Table  string
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q on table %q", e.Column, e.Table)
}

// NoRelationError is returned when two tables share no single direct
// foreign-key edge. Multi-hop relations are not traversed.
type NoRelationError struct {
	From string
	To   string
}

func (e *NoRelationError) Error() string {
	return fmt.Sprintf("no direct relation between %q and %q", e.From, e.To)
}

// NoPrimaryKeyError is returned when a table has no usable single-column
// primary key. Composite primary keys are unsupported.
type NoPrimaryKeyError struct {
	Table string
}

func (e *NoPrimaryKeyError) Error() string {
	return fmt.Sprintf("table %q has no single-column primary key", e.Table)
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, error) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], nil
		}
	}
	return nil, &UnknownTableError{Table: name}
}

// TableNames returns the ordered table names of the schema.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Column returns the named column of the named table.
func (s *Schema) Column(table, column string) (*Column, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	for i := range t.Columns {
		if t.Columns[i].Name == column {
			return &t.Columns[i], nil
		}
	}
	return nil, &UnknownColumnError{Table: table, Column: column}
}

// PrimaryKeyOf returns the single primary-key column of a table.
func (s *Schema) PrimaryKeyOf(table string) (string, error) {
	t, err := s.Table(table)
	if err != nil {
		return "", err
	}
	if t.PrimaryKey == "" {
		return "", &NoPrimaryKeyError{Table: table}
	}
	return t.PrimaryKey, nil
}

// ForeignKeysOf returns the foreign-key edges leaving a table.
func (s *Schema) ForeignKeysOf(table string) ([]ForeignKey, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	return t.ForeignKeys, nil
}

// ForeignKeyBetween returns the column on `from` referencing `to`'s primary
// key. It fails with NoRelationError if no direct edge exists.
func (s *Schema) ForeignKeyBetween(from, to string) (string, error) {
	fks, err := s.ForeignKeysOf(from)
	if err != nil {
		return "", err
	}
	for _, fk := range fks {
		if fk.ToTable == to {
			return fk.FromColumn, nil
		}
	}
	return "", &NoRelationError{From: from, To: to}
}
