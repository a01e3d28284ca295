package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/youssefsiam38/tableadmin/driver"
)

// ListTables returns the names of all base tables visible to exec.
func ListTables(ctx context.Context, exec driver.Executor, dialect driver.Dialect) ([]string, error) {
	var query string
	switch dialect.Name() {
	case "sqlite":
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	default:
		query = `
			SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			ORDER BY table_name`
	}

	rows, err := exec.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Inspect reflects the named tables from the database.
func Inspect(ctx context.Context, exec driver.Executor, dialect driver.Dialect, names ...string) ([]*Table, error) {
	tables := make([]*Table, 0, len(names))
	for _, name := range names {
		var (
			t   *Table
			err error
		)
		switch dialect.Name() {
		case "sqlite":
			t, err = inspectSQLite(ctx, exec, name)
		default:
			t, err = inspectPostgres(ctx, exec, name)
		}
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func inspectPostgres(ctx context.Context, exec driver.Executor, name string) (*Table, error) {
	rows, err := exec.Query(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable, column_default, is_identity
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, name)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", name, err)
	}
	t := &Table{Name: name}
	for rows.Next() {
		var (
			colName, dataType, udtName, nullable string
			def, identity                        *string
		)
		if err := rows.Scan(&colName, &dataType, &udtName, &nullable, &def, &identity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("inspect %s: %w", name, err)
		}
		col := &Column{
			Name:       colName,
			Nullable:   nullable == "YES",
			HasDefault: def != nil || (identity != nil && *identity == "YES"),
		}
		switch {
		case dataType == "ARRAY":
			col.Type = Array
			col.ElementType = ParseColumnType(strings.TrimPrefix(udtName, "_"))
		case dataType == "USER-DEFINED":
			col.Type = ParseColumnType(udtName)
		default:
			col.Type = ParseColumnType(dataType)
		}
		if col.Type.IsInteger() && ((def != nil && strings.HasPrefix(*def, "nextval(")) || (identity != nil && *identity == "YES")) {
			col.Type = Serial
		}
		t.Columns = append(t.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect %s: %w", name, err)
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	constraints, err := exec.Query(ctx, `
		SELECT tc.constraint_type, tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		WHERE tc.table_schema = current_schema() AND tc.table_name = $1
		  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')`, name)
	if err != nil {
		return nil, fmt.Errorf("inspect %s constraints: %w", name, err)
	}
	uniqueCols := make(map[string][]string)
	for constraints.Next() {
		var kind, constraint, column string
		if err := constraints.Scan(&kind, &constraint, &column); err != nil {
			constraints.Close()
			return nil, fmt.Errorf("inspect %s constraints: %w", name, err)
		}
		if kind == "PRIMARY KEY" {
			if c := t.Column(column); c != nil {
				c.PrimaryKey = true
			}
			continue
		}
		uniqueCols[constraint] = append(uniqueCols[constraint], column)
	}
	constraints.Close()
	if err := constraints.Err(); err != nil {
		return nil, fmt.Errorf("inspect %s constraints: %w", name, err)
	}
	markUnique(t, uniqueCols)

	fks, err := exec.Query(ctx, `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name, rc.delete_rule
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = rc.constraint_name AND kcu.constraint_schema = rc.constraint_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = rc.unique_constraint_name AND ccu.constraint_schema = rc.unique_constraint_schema
		WHERE kcu.table_schema = current_schema() AND kcu.table_name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("inspect %s foreign keys: %w", name, err)
	}
	defer fks.Close()
	for fks.Next() {
		var column, refTable, refColumn, rule string
		if err := fks.Scan(&column, &refTable, &refColumn, &rule); err != nil {
			return nil, fmt.Errorf("inspect %s foreign keys: %w", name, err)
		}
		if c := t.Column(column); c != nil {
			c.ForeignKey = &ForeignKey{Table: refTable, Column: refColumn, OnDelete: ParseOnDelete(rule)}
		}
	}
	if err := fks.Err(); err != nil {
		return nil, fmt.Errorf("inspect %s foreign keys: %w", name, err)
	}
	return t, nil
}

func inspectSQLite(ctx context.Context, exec driver.Executor, name string) (*Table, error) {
	rows, err := exec.Query(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?1)`, name)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", name, err)
	}
	t := &Table{Name: name}
	for rows.Next() {
		var (
			colName, colType string
			notNull, pk      int
			def              *string
		)
		if err := rows.Scan(&colName, &colType, &notNull, &def, &pk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("inspect %s: %w", name, err)
		}
		col := &Column{
			Name:       colName,
			Type:       ParseColumnType(colType),
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
			HasDefault: def != nil,
		}
		// INTEGER PRIMARY KEY aliases the rowid and is assigned on insert.
		if col.PrimaryKey && strings.EqualFold(strings.TrimSpace(colType), "integer") {
			col.Type = Serial
			col.HasDefault = true
		}
		t.Columns = append(t.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect %s: %w", name, err)
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	indexes, err := exec.Query(ctx, `
		SELECT il.name, ii.name
		FROM pragma_index_list(?1) il, pragma_index_info(il.name) ii
		WHERE il."unique" = 1 AND il.origin <> 'pk'`, name)
	if err != nil {
		return nil, fmt.Errorf("inspect %s indexes: %w", name, err)
	}
	uniqueCols := make(map[string][]string)
	for indexes.Next() {
		var index, column string
		if err := indexes.Scan(&index, &column); err != nil {
			indexes.Close()
			return nil, fmt.Errorf("inspect %s indexes: %w", name, err)
		}
		uniqueCols[index] = append(uniqueCols[index], column)
	}
	indexes.Close()
	if err := indexes.Err(); err != nil {
		return nil, fmt.Errorf("inspect %s indexes: %w", name, err)
	}
	markUnique(t, uniqueCols)

	fks, err := exec.Query(ctx, `SELECT "from", "table", "to", on_delete FROM pragma_foreign_key_list(?1)`, name)
	if err != nil {
		return nil, fmt.Errorf("inspect %s foreign keys: %w", name, err)
	}
	defer fks.Close()
	for fks.Next() {
		var (
			column, refTable, rule string
			refColumn              *string
		)
		if err := fks.Scan(&column, &refTable, &refColumn, &rule); err != nil {
			return nil, fmt.Errorf("inspect %s foreign keys: %w", name, err)
		}
		fk := &ForeignKey{Table: refTable, OnDelete: ParseOnDelete(rule)}
		if refColumn != nil {
			fk.Column = *refColumn
		}
		if c := t.Column(column); c != nil {
			c.ForeignKey = fk
		}
	}
	return t, fks.Err()
}

// markUnique flags columns covered by single-column unique constraints.
func markUnique(t *Table, constraints map[string][]string) {
	for _, cols := range constraints {
		if len(cols) != 1 {
			continue
		}
		if c := t.Column(cols[0]); c != nil {
			c.Unique = true
		}
	}
}
