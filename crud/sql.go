package crud

import (
	"fmt"
	"strings"

	"github.com/youssefsiam38/tableadmin/schema"
)

// ReadableSuffix is appended to a foreign key column name for its readable value.
const ReadableSuffix = "_readable"

// readableExpr returns an SQL expression rendering the readable of table
// rows aliased as alias. Template literals are bound as arguments.
func (s *Service) readableExpr(table *schema.Table, alias string, a *args) string {
	col := func(name string) string {
		return fmt.Sprintf("COALESCE(CAST(%s.%s AS TEXT), '')", alias, s.quote(name))
	}

	spec, ok := s.tables[table.Name]
	if !ok || len(spec.Readable.Columns) == 0 {
		return fmt.Sprintf("CAST(%s.%s AS TEXT)", alias, s.quote(table.PrimaryKey().Name))
	}
	r := spec.Readable

	var parts []string
	if r.Template == "" {
		for i, name := range r.Columns {
			if i > 0 {
				parts = append(parts, "' '")
			}
			parts = append(parts, col(name))
		}
	} else {
		literals := strings.Split(r.Template, "%s")
		for i, lit := range literals {
			if lit != "" {
				parts = append(parts, fmt.Sprintf("CAST(%s AS TEXT)", a.add(lit)))
			}
			if i < len(r.Columns) {
				parts = append(parts, col(r.Columns[i]))
			}
		}
	}
	if len(parts) == 0 {
		return "''"
	}
	return "(" + strings.Join(parts, " || ") + ")"
}

// fkReadableExpr returns a scalar subquery with the readable of the row
// referenced by fk from the main table alias "t".
func (s *Service) fkReadableExpr(fk *schema.Column, a *args) string {
	spec, ok := s.tables[fk.ForeignKey.Table]
	if !ok {
		return fmt.Sprintf("CAST(t.%s AS TEXT)", s.quote(fk.Name))
	}
	target := spec.Table
	refCol := fk.ForeignKey.Column
	if refCol == "" {
		refCol = target.PrimaryKey().Name
	}
	return fmt.Sprintf("(SELECT %s FROM %s r WHERE r.%s = t.%s)",
		s.readableExpr(target, "r", a), s.quote(target.Name), s.quote(refCol), s.quote(fk.Name))
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// where renders the filters of q as a WHERE clause, or "" when there are none.
func (s *Service) where(table *schema.Table, filters []Filter, a *args) (string, error) {
	var conds []string
	for _, f := range filters {
		c := table.Column(f.Column)
		if c == nil || c.Secret {
			return "", fmt.Errorf("%w: %q", ErrUnknownColumn, f.Column)
		}
		cond, err := s.condition(c, f, a)
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}

func (s *Service) condition(c *schema.Column, f Filter, a *args) (string, error) {
	ident := "t." + s.quote(c.Name)
	op := f.Operator
	if op == "" {
		op = Equal
	}

	switch op {
	case IsNull:
		return ident + " IS NULL", nil
	case NotNull:
		return ident + " IS NOT NULL", nil
	}
	if len(f.Values) == 0 {
		return "", fmt.Errorf("%w: %s: filter without value", ErrInvalidQuery, c.Name)
	}

	if c.Type.IsText() && (op == Equal || op == NotEqual) && f.Match != Exact {
		match := f.Match
		if match == "" {
			match = Contains
		}
		var ors []string
		for _, v := range f.Values {
			pattern := escapeLike(fmt.Sprint(v))
			switch match {
			case Contains:
				pattern = "%" + pattern + "%"
			case Starts:
				pattern = pattern + "%"
			case Ends:
				pattern = "%" + pattern
			}
			ors = append(ors, fmt.Sprintf(`%s %s %s ESCAPE '\'`, ident, s.Dialect().ILike(), a.add(pattern)))
		}
		cond := strings.Join(ors, " OR ")
		if len(ors) > 1 {
			cond = "(" + cond + ")"
		}
		if op == NotEqual {
			cond = "NOT " + cond
		}
		return cond, nil
	}

	bound := make([]string, len(f.Values))
	for i, v := range f.Values {
		arg, err := s.bind(c, v)
		if err != nil {
			return "", err
		}
		bound[i] = a.add(arg)
	}
	if len(bound) > 1 {
		switch op {
		case Equal:
			return fmt.Sprintf("%s IN (%s)", ident, strings.Join(bound, ", ")), nil
		case NotEqual:
			return fmt.Sprintf("%s NOT IN (%s)", ident, strings.Join(bound, ", ")), nil
		default:
			return "", fmt.Errorf("%w: %s: operator %s takes one value", ErrInvalidQuery, c.Name, op)
		}
	}
	return fmt.Sprintf("%s %s %s", ident, operatorSQL[op], bound[0]), nil
}

// orderBy renders ORDER BY, falling back to the table default and always
// ending with the primary key so pagination is stable.
func (s *Service) orderBy(spec *TableSpec, order []Order) string {
	if len(order) == 0 {
		order = spec.DefaultOrder
	}
	pk := spec.Table.PrimaryKey().Name
	var parts []string
	hasPK := false
	for _, o := range order {
		dir := "ASC"
		if !o.Ascending {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("t.%s %s", s.quote(o.Column), dir))
		if o.Column == pk {
			hasPK = true
		}
	}
	if !hasPK {
		parts = append(parts, fmt.Sprintf("t.%s ASC", s.quote(pk)))
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// selectColumns returns the columns to select: the visible fields (or every
// non secret column) with the primary key first.
func selectColumns(table *schema.Table, visible []string) []*schema.Column {
	pk := table.PrimaryKey()
	cols := []*schema.Column{pk}
	if len(visible) == 0 {
		for _, c := range table.Columns {
			if c != pk && !c.Secret {
				cols = append(cols, c)
			}
		}
		return cols
	}
	for _, name := range visible {
		c := table.Column(name)
		if c == nil || c == pk || c.Secret {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func (s *Service) selectList(cols []*schema.Column, readable bool, a *args) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, "t."+s.quote(c.Name))
	}
	if readable {
		for _, c := range cols {
			if c.ForeignKey != nil {
				parts = append(parts, s.fkReadableExpr(c, a)+" AS "+s.quote(c.Name+ReadableSuffix))
			}
		}
	}
	return strings.Join(parts, ", ")
}

// normalizeRow converts scanned values using the column types of table.
// Readable and other computed columns are kept as strings.
func normalizeRow(table *schema.Table, row map[string]any) map[string]any {
	for k, v := range row {
		if c := table.Column(k); c != nil {
			row[k] = normalize(c, v)
		} else if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}
