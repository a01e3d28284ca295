package crud

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/schema"
)

// ParseID coerces a primary key from its string form.
func (s *Service) ParseID(table, id string) (any, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return nil, err
	}
	pk := spec.Table.PrimaryKey()
	v, err := coerceType(pk.Type, pk.ElementType, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, id, err)
	}
	return v, nil
}

// Get returns the row with the given primary key. With readable set,
// foreign keys get <fk>_readable values.
func (s *Service) Get(ctx context.Context, table string, id any, readable bool) (map[string]any, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return nil, err
	}
	pk := spec.Table.PrimaryKey()
	idArg, err := s.bind(pk, id)
	if err != nil {
		return nil, err
	}

	var a args
	sel := s.selectList(selectColumns(spec.Table, nil), readable, &a)
	sql := fmt.Sprintf("SELECT %s FROM %s t WHERE t.%s = %s",
		sel, s.quote(spec.Table.Name), s.quote(pk.Name), a.add(idArg))
	rows, err := s.query(ctx, sql, a...)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, table, id)
	}
	return normalizeRow(spec.Table, rows[0]), nil
}

// Defaults returns a template for a new row: configured defaults, and zero
// values for required columns the database does not fill in.
func (s *Service) Defaults(table string) (map[string]any, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(spec.Table.Columns))
	for _, c := range spec.Table.Columns {
		if c.Generated() || c.Secret {
			continue
		}
		if v, ok := spec.Defaults[c.Name]; ok {
			out[c.Name] = v
			continue
		}
		if c.Nullable || c.HasDefault || c.ForeignKey != nil {
			out[c.Name] = nil
			continue
		}
		switch t := c.Type; {
		case t.IsNumber():
			out[c.Name] = 0
		case t == schema.Boolean:
			out[c.Name] = false
		case t.IsText():
			out[c.Name] = ""
		case t == schema.Array:
			out[c.Name] = []any{}
		default:
			out[c.Name] = nil
		}
	}
	return out, nil
}

// prepare validates and coerces submitted values. Generated primary keys
// are dropped on insert; the primary key can never be changed on update.
func (s *Service) prepare(t *schema.Table, values map[string]any, insert bool) (map[string]any, error) {
	problems := map[string]string{}
	out := make(map[string]any, len(values))
	for name, raw := range values {
		c := t.Column(name)
		if c == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		if c.PrimaryKey {
			if insert && c.Generated() {
				continue
			}
			if !insert {
				problems[name] = "the primary key cannot be changed"
				continue
			}
		}
		// HTML forms submit empty strings for cleared inputs.
		if str, ok := raw.(string); ok && str == "" && !c.Type.IsText() {
			raw = nil
		}
		if raw == nil && !c.Nullable {
			if insert && c.HasDefault {
				continue
			}
			problems[name] = "this field cannot be null"
			continue
		}
		v, err := Coerce(c, raw)
		if err != nil {
			problems[name] = err.Error()
			continue
		}
		out[name] = v
	}

	if insert {
		for _, c := range t.Columns {
			if _, ok := out[c.Name]; ok || c.Generated() || c.Nullable || c.HasDefault {
				continue
			}
			if _, reported := problems[c.Name]; !reported {
				problems[c.Name] = "this field is required"
			}
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Create inserts a row and returns it as stored.
func (s *Service) Create(ctx context.Context, table string, values map[string]any) (map[string]any, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return nil, err
	}
	row, err := s.prepare(spec.Table, values, true)
	if err != nil {
		return nil, err
	}

	var created map[string]any
	err = driver.InTx(ctx, s.conn, func(ctx context.Context) error {
		for _, hook := range spec.Hooks.PreSave {
			if row, err = hook(ctx, row); err != nil {
				return err
			}
		}

		pk := spec.Table.PrimaryKey()
		var a args
		cols := sortedKeys(row)
		names := make([]string, len(cols))
		placeholders := make([]string, len(cols))
		for i, name := range cols {
			c := spec.Table.Column(name)
			if c == nil {
				return fmt.Errorf("%w: %q", ErrUnknownColumn, name)
			}
			arg, err := s.bind(c, row[name])
			if err != nil {
				return err
			}
			names[i] = s.quote(name)
			placeholders[i] = a.add(arg)
		}

		var sql string
		if len(cols) == 0 {
			sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", s.quote(spec.Table.Name), s.quote(pk.Name))
		} else {
			sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s", s.quote(spec.Table.Name),
				strings.Join(names, ", "), strings.Join(placeholders, ", "), s.quote(pk.Name))
		}
		rows, err := s.query(ctx, sql, a...)
		if err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("create %s: no row returned", table)
		}
		created, err = s.Get(ctx, table, normalize(pk, rows[0][pk.Name]), false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update changes the given columns of a row (PATCH semantics) and returns
// the updated row.
func (s *Service) Update(ctx context.Context, table string, id any, values map[string]any) (map[string]any, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return nil, err
	}
	vals, err := s.prepare(spec.Table, values, false)
	if err != nil {
		return nil, err
	}

	var updated map[string]any
	err = driver.InTx(ctx, s.conn, func(ctx context.Context) error {
		for _, hook := range spec.Hooks.PrePatch {
			if vals, err = hook(ctx, id, vals); err != nil {
				return err
			}
		}
		if len(vals) == 0 {
			updated, err = s.Get(ctx, table, id, false)
			return err
		}

		pk := spec.Table.PrimaryKey()
		var a args
		var sets []string
		for _, name := range sortedKeys(vals) {
			c := spec.Table.Column(name)
			if c == nil {
				return fmt.Errorf("%w: %q", ErrUnknownColumn, name)
			}
			arg, err := s.bind(c, vals[name])
			if err != nil {
				return err
			}
			sets = append(sets, fmt.Sprintf("%s = %s", s.quote(name), a.add(arg)))
		}
		idArg, err := s.bind(pk, id)
		if err != nil {
			return err
		}
		sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", s.quote(spec.Table.Name),
			strings.Join(sets, ", "), s.quote(pk.Name), a.add(idArg))
		n, err := s.exec(ctx).Exec(ctx, driver.Rebind(s.Dialect(), sql), a...)
		if err != nil {
			return fmt.Errorf("update %s: %w", table, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s %v", ErrNotFound, table, id)
		}
		updated, err = s.Get(ctx, table, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a row.
func (s *Service) Delete(ctx context.Context, table string, id any) error {
	n, err := s.DeleteMany(ctx, table, []any{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %v", ErrNotFound, table, id)
	}
	return nil
}

// DeleteMany removes the rows with the given primary keys and returns how
// many were deleted.
func (s *Service) DeleteMany(ctx context.Context, table string, ids []any) (int64, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err = driver.InTx(ctx, s.conn, func(ctx context.Context) error {
		for _, id := range ids {
			for _, hook := range spec.Hooks.PreDelete {
				if err := hook(ctx, id); err != nil {
					return err
				}
			}
		}

		pk := spec.Table.PrimaryKey()
		var a args
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			arg, err := s.bind(pk, id)
			if err != nil {
				return err
			}
			placeholders[i] = a.add(arg)
		}
		sql := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", s.quote(spec.Table.Name),
			s.quote(pk.Name), strings.Join(placeholders, ", "))
		n, err := s.exec(ctx).Exec(ctx, driver.Rebind(s.Dialect(), sql), a...)
		if err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
		deleted = n
		return nil
	})
	return deleted, err
}

// ReferenceCount counts rows of table whose column equals value. The table
// does not need to be registered.
func (s *Service) ReferenceCount(ctx context.Context, table, column string, value any) (int64, error) {
	var a args
	sql := fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s = %s", s.quote(table), s.quote(column), a.add(value))
	return s.count(ctx, sql, a...)
}

// ReferencingIDs returns the primary keys of rows in table whose column
// equals value.
func (s *Service) ReferencingIDs(ctx context.Context, table, pkColumn, column string, value any) ([]any, error) {
	var a args
	sql := fmt.Sprintf("SELECT %s AS id FROM %s WHERE %s = %s ORDER BY %s", s.quote(pkColumn), s.quote(table),
		s.quote(column), a.add(value), s.quote(pkColumn))
	rows, err := s.query(ctx, sql, a...)
	if err != nil {
		return nil, fmt.Errorf("referencing %s: %w", table, err)
	}
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row["id"]
	}
	return ids, nil
}

// ColumnValues returns the distinct non-null values stored in column.
// Array values are returned as []any.
func (s *Service) ColumnValues(ctx context.Context, table, column string) ([]any, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return nil, err
	}
	col := spec.Table.Column(column)
	if col == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
	}
	sql := fmt.Sprintf("SELECT DISTINCT %s AS v FROM %s WHERE %s IS NOT NULL",
		s.quote(column), s.quote(table), s.quote(column))
	rows, err := s.query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("values of %s.%s: %w", table, column, err)
	}
	values := make([]any, len(rows))
	for i, row := range rows {
		values[i] = normalize(col, row["v"])
	}
	return values, nil
}
