package crud

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/youssefsiam38/tableadmin/schema"
)

// Operator compares a column with a filter value.
type Operator string

// Filter operators.
const (
	Equal          Operator = "e"
	NotEqual       Operator = "ne"
	LessThan       Operator = "lt"
	LessOrEqual    Operator = "lte"
	GreaterThan    Operator = "gt"
	GreaterOrEqual Operator = "gte"
	IsNull         Operator = "is_null"
	NotNull        Operator = "not_null"
)

func (o Operator) valid() bool {
	switch o {
	case Equal, NotEqual, LessThan, LessOrEqual, GreaterThan, GreaterOrEqual, IsNull, NotNull:
		return true
	}
	return false
}

var operatorSQL = map[Operator]string{
	Equal:          "=",
	NotEqual:       "<>",
	LessThan:       "<",
	LessOrEqual:    "<=",
	GreaterThan:    ">",
	GreaterOrEqual: ">=",
}

// Match selects how text filters compare.
type Match string

// Text match modes.
const (
	Contains Match = "contains"
	Exact    Match = "exact"
	Starts   Match = "starts"
	Ends     Match = "ends"
)

func (m Match) valid() bool {
	switch m {
	case Contains, Exact, Starts, Ends:
		return true
	}
	return false
}

// Filter restricts a list to rows whose column matches Values. Several
// values are combined with IN (or NOT IN for NotEqual).
type Filter struct {
	Column   string
	Operator Operator
	Match    Match
	Values   []any
}

// Order sorts a list by a column.
type Order struct {
	Column    string `json:"column" yaml:"column"`
	Ascending bool   `json:"ascending" yaml:"ascending"`
}

// Query selects rows for List, Count and ExportCSV.
type Query struct {
	Filters       []Filter
	Order         []Order
	Page          int
	PageSize      int
	VisibleFields []string
	Readable      bool
}

// Reserved query string keys.
const (
	ParamOrder         = "__order"
	ParamPage          = "__page"
	ParamPageSize      = "__page_size"
	ParamVisibleFields = "__visible_fields"
	ParamReadable      = "__readable"

	operatorSuffix = "__operator"
	matchSuffix    = "__match"
)

// ParseQuery reads list parameters from a query string. Filter values are
// coerced to the column type.
func ParseQuery(t *schema.Table, values url.Values) (Query, error) {
	var q Query
	operators := map[string]Operator{}
	matches := map[string]Match{}

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch {
		case key == ParamOrder:
			order, err := parseOrder(t, v)
			if err != nil {
				return q, err
			}
			q.Order = order
		case key == ParamPage:
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return q, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidQuery, key)
			}
			q.Page = n
		case key == ParamPageSize:
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return q, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidQuery, key)
			}
			q.PageSize = n
		case key == ParamVisibleFields:
			for _, name := range strings.Split(v, ",") {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				if c := t.Column(name); c == nil || c.Secret {
					return q, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
				}
				q.VisibleFields = append(q.VisibleFields, name)
			}
		case key == ParamReadable:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return q, fmt.Errorf("%w: %s must be true or false", ErrInvalidQuery, key)
			}
			q.Readable = b
		case strings.HasSuffix(key, operatorSuffix):
			col := strings.TrimSuffix(key, operatorSuffix)
			op := Operator(v)
			if !op.valid() {
				return q, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, v)
			}
			operators[col] = op
		case strings.HasSuffix(key, matchSuffix):
			col := strings.TrimSuffix(key, matchSuffix)
			m := Match(v)
			if !m.valid() {
				return q, fmt.Errorf("%w: unknown match %q", ErrInvalidQuery, v)
			}
			matches[col] = m
		case strings.HasPrefix(key, "__"):
			return q, fmt.Errorf("%w: unknown parameter %q", ErrInvalidQuery, key)
		}
	}

	// Filters are built in column order so generated SQL is stable.
	for _, c := range t.Columns {
		vals, hasValue := values[c.Name]
		op, hasOp := operators[c.Name]
		_, hasMatch := matches[c.Name]
		if !hasValue && !hasOp && !hasMatch {
			continue
		}
		if c.Secret {
			return q, fmt.Errorf("%w: %q", ErrUnknownColumn, c.Name)
		}
		delete(operators, c.Name)
		delete(matches, c.Name)
		if op == "" {
			op = Equal
		}

		f := Filter{Column: c.Name, Operator: op, Match: matches[c.Name]}
		if c.Type.IsText() && f.Match == "" {
			f.Match = Contains
		}
		if op != IsNull && op != NotNull {
			if !hasValue {
				continue
			}
			for _, raw := range vals {
				if raw == "" && !c.Type.IsText() {
					continue
				}
				v, err := coerceFilterValue(c, raw)
				if err != nil {
					return q, fmt.Errorf("%w: %s: %v", ErrInvalidQuery, c.Name, err)
				}
				f.Values = append(f.Values, v)
			}
			if len(f.Values) == 0 {
				continue
			}
		}
		q.Filters = append(q.Filters, f)
	}
	for col := range operators {
		return q, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
	}
	for col := range matches {
		return q, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
	}
	for key := range values {
		if strings.HasPrefix(key, "__") || strings.HasSuffix(key, operatorSuffix) || strings.HasSuffix(key, matchSuffix) {
			continue
		}
		if t.Column(key) == nil {
			return q, fmt.Errorf("%w: %q", ErrUnknownColumn, key)
		}
	}
	return q, nil
}

// coerceFilterValue coerces a query string value. Choice membership is not
// enforced for text so partial matches still work.
func coerceFilterValue(c *schema.Column, raw string) (any, error) {
	if c.Type.IsText() {
		return raw, nil
	}
	return coerceType(c.Type, c.ElementType, raw)
}

func parseOrder(t *schema.Table, v string) ([]Order, error) {
	var out []Order
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		o := Order{Column: part, Ascending: true}
		if strings.HasPrefix(part, "-") {
			o = Order{Column: part[1:], Ascending: false}
		}
		if c := t.Column(o.Column); c == nil || c.Secret {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, o.Column)
		}
		out = append(out, o)
	}
	return out, nil
}

// Encode returns the query string form of q, the inverse of ParseQuery.
func (q Query) Encode() url.Values {
	v := url.Values{}
	for _, f := range q.Filters {
		for _, val := range f.Values {
			v.Add(f.Column, formatValue(val))
		}
		if f.Operator != "" && f.Operator != Equal {
			v.Set(f.Column+operatorSuffix, string(f.Operator))
		}
		if f.Match != "" && f.Match != Contains {
			v.Set(f.Column+matchSuffix, string(f.Match))
		}
	}
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			parts[i] = o.Column
			if !o.Ascending {
				parts[i] = "-" + o.Column
			}
		}
		v.Set(ParamOrder, strings.Join(parts, ","))
	}
	if q.Page > 0 {
		v.Set(ParamPage, strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set(ParamPageSize, strconv.Itoa(q.PageSize))
	}
	if len(q.VisibleFields) > 0 {
		v.Set(ParamVisibleFields, strings.Join(q.VisibleFields, ","))
	}
	if q.Readable {
		v.Set(ParamReadable, "true")
	}
	return v
}
