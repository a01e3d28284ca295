// Package schema describes database tables and reflects them from a live
// database.
//
// A Table can be declared in Go or loaded with Inspect, which reads
// information_schema on PostgreSQL and the table pragmas on SQLite.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Schema package errors.
var (
	// ErrTableNotFound indicates the table does not exist in the database.
	ErrTableNotFound = errors.New("schema: table not found")

	// ErrNoPrimaryKey indicates a table without a single-column primary key.
	ErrNoPrimaryKey = errors.New("schema: table has no primary key")
)

// ColumnType classifies a column for value coercion and rendering.
type ColumnType string

// Supported column types.
const (
	Integer     ColumnType = "integer"
	BigInt      ColumnType = "bigint"
	Serial      ColumnType = "serial"
	Float       ColumnType = "float"
	Numeric     ColumnType = "numeric"
	Boolean     ColumnType = "boolean"
	Varchar     ColumnType = "varchar"
	Text        ColumnType = "text"
	Email       ColumnType = "email"
	Date        ColumnType = "date"
	Time        ColumnType = "time"
	Timestamp   ColumnType = "timestamp"
	Timestamptz ColumnType = "timestamptz"
	Interval    ColumnType = "interval"
	UUID        ColumnType = "uuid"
	JSON        ColumnType = "json"
	JSONB       ColumnType = "jsonb"
	Bytea       ColumnType = "bytea"
	Array       ColumnType = "array"
)

// IsInteger reports whether values are whole numbers.
func (t ColumnType) IsInteger() bool {
	return t == Integer || t == BigInt || t == Serial
}

// IsNumber reports whether values are numeric.
func (t ColumnType) IsNumber() bool {
	return t.IsInteger() || t == Float || t == Numeric
}

// IsText reports whether values are strings.
func (t ColumnType) IsText() bool {
	return t == Varchar || t == Text || t == Email
}

// IsTemporal reports whether values are dates or times.
func (t ColumnType) IsTemporal() bool {
	return t == Date || t == Time || t == Timestamp || t == Timestamptz
}

// IsJSON reports whether values are JSON documents.
func (t ColumnType) IsJSON() bool {
	return t == JSON || t == JSONB
}

// ParseColumnType maps a database type name to a ColumnType.
// Unknown types are treated as text.
func ParseColumnType(dbType string) ColumnType {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if strings.HasSuffix(t, "[]") || t == "array" {
		return Array
	}
	switch t {
	case "int", "int2", "int4", "integer", "smallint", "tinyint", "mediumint":
		return Integer
	case "int8", "bigint":
		return BigInt
	case "serial", "serial4", "bigserial", "serial8", "smallserial":
		return Serial
	case "real", "float", "float4", "float8", "double", "double precision":
		return Float
	case "numeric", "decimal", "money":
		return Numeric
	case "bool", "boolean":
		return Boolean
	case "varchar", "character varying", "char", "character", "nvarchar", "nchar", "bpchar", "citext":
		return Varchar
	case "text", "clob", "string":
		return Text
	case "email":
		return Email
	case "date":
		return Date
	case "time", "time without time zone", "time with time zone", "timetz":
		return Time
	case "timestamp", "timestamp without time zone", "datetime":
		return Timestamp
	case "timestamptz", "timestamp with time zone":
		return Timestamptz
	case "interval":
		return Interval
	case "uuid":
		return UUID
	case "json":
		return JSON
	case "jsonb":
		return JSONB
	case "bytea", "blob":
		return Bytea
	}
	return Text
}

// OnDelete is the referential action of a foreign key.
type OnDelete string

// Referential actions.
const (
	NoAction   OnDelete = "NO ACTION"
	Restrict   OnDelete = "RESTRICT"
	Cascade    OnDelete = "CASCADE"
	SetNull    OnDelete = "SET NULL"
	SetDefault OnDelete = "SET DEFAULT"
)

// ParseOnDelete normalizes a referential action name.
func ParseOnDelete(s string) OnDelete {
	switch OnDelete(strings.ToUpper(strings.TrimSpace(s))) {
	case Restrict:
		return Restrict
	case Cascade:
		return Cascade
	case SetNull:
		return SetNull
	case SetDefault:
		return SetDefault
	}
	return NoAction
}

// ForeignKey describes a reference from a column to another table's column.
type ForeignKey struct {
	Table    string   `json:"table" yaml:"table"`
	Column   string   `json:"column" yaml:"column"`
	OnDelete OnDelete `json:"on_delete" yaml:"on_delete"`
}

// Choice is one allowed value of a column with a fixed set of values.
type Choice struct {
	Value any    `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Column describes a table column.
type Column struct {
	Name        string      `json:"name" yaml:"name"`
	Type        ColumnType  `json:"type" yaml:"type"`
	ElementType ColumnType  `json:"element_type,omitempty" yaml:"element_type"`
	Nullable    bool        `json:"nullable" yaml:"nullable"`
	PrimaryKey  bool        `json:"primary_key" yaml:"primary_key"`
	HasDefault  bool        `json:"has_default" yaml:"has_default"`
	Unique      bool        `json:"unique" yaml:"unique"`
	Secret      bool        `json:"secret" yaml:"secret"`
	Choices     []Choice    `json:"choices,omitempty" yaml:"choices"`
	VerboseName string      `json:"verbose_name,omitempty" yaml:"verbose_name"`
	HelpText    string      `json:"help_text,omitempty" yaml:"help_text"`
	ForeignKey  *ForeignKey `json:"foreign_key,omitempty" yaml:"foreign_key"`
}

// Label returns the human readable name of the column.
func (c *Column) Label() string {
	if c.VerboseName != "" {
		return c.VerboseName
	}
	return VerboseName(c.Name)
}

// Generated reports whether the database assigns the value on insert.
func (c *Column) Generated() bool {
	return c.Type == Serial || (c.PrimaryKey && c.HasDefault)
}

// Table describes a database table.
type Table struct {
	Name        string    `json:"name" yaml:"name"`
	VerboseName string    `json:"verbose_name,omitempty" yaml:"verbose_name"`
	HelpText    string    `json:"help_text,omitempty" yaml:"help_text"`
	Columns     []*Column `json:"columns" yaml:"columns"`
}

// Label returns the human readable name of the table.
func (t *Table) Label() string {
	if t.VerboseName != "" {
		return t.VerboseName
	}
	return VerboseName(t.Name)
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// PrimaryKey returns the primary key column or nil.
func (t *Table) PrimaryKey() *Column {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ForeignKeys returns the columns that reference other tables.
func (t *Table) ForeignKeys() []*Column {
	var fks []*Column
	for _, c := range t.Columns {
		if c.ForeignKey != nil {
			fks = append(fks, c)
		}
	}
	return fks
}

// Validate checks that the table is usable by the admin.
func (t *Table) Validate() error {
	if t.Name == "" {
		return errors.New("schema: table name is required")
	}
	seen := make(map[string]bool, len(t.Columns))
	pks := 0
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema: table %q has a column without a name", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("schema: table %q has duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		if c.PrimaryKey {
			pks++
		}
	}
	if pks != 1 {
		return fmt.Errorf("%w: %s", ErrNoPrimaryKey, t.Name)
	}
	return nil
}

// VerboseName turns an identifier such as "release_date" into "Release Date".
func VerboseName(name string) string {
	// Casers are stateful and must not be shared between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}

// ResolveReferences fills in foreign keys that omit the referenced column
// with the primary key of the referenced table, when that table is known.
func ResolveReferences(tables []*Table) {
	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	for _, t := range tables {
		for _, c := range t.Columns {
			if c.ForeignKey == nil || c.ForeignKey.Column != "" {
				continue
			}
			if ref, ok := byName[c.ForeignKey.Table]; ok {
				if pk := ref.PrimaryKey(); pk != nil {
					c.ForeignKey.Column = pk.Name
				}
			}
		}
	}
}
