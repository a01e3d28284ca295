package crud

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/youssefsiam38/tableadmin/schema"
)

// Accepted layouts for submitted timestamps. datetime-local inputs send
// the minute precision variants.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04",
	time.DateOnly,
}

// sqliteTimestamp is the storage format for timestamps in SQLite. It sorts
// lexically and is parsed back by the driver.
const sqliteTimestamp = "2006-01-02 15:04:05"

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Coerce converts a submitted value, typically decoded JSON or a query
// string value, to the Go value stored in col. nil stays nil.
func Coerce(col *schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	out, err := coerceType(col.Type, col.ElementType, v)
	if err != nil {
		return nil, err
	}
	if len(col.Choices) > 0 {
		s := fmt.Sprint(out)
		for _, c := range col.Choices {
			if fmt.Sprint(c.Value) == s {
				return out, nil
			}
		}
		return nil, fmt.Errorf("%q is not a valid choice", s)
	}
	return out, nil
}

func coerceType(t, elem schema.ColumnType, v any) (any, error) {
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}

	switch {
	case t.IsInteger():
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, errors.New("expected a whole number")
			}
			return int64(n), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil, errors.New("expected a whole number")
			}
			return i, nil
		}
		return nil, fmt.Errorf("expected a whole number, got %T", v)

	case t == schema.Float || t == schema.Numeric:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, errors.New("expected a number")
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected a number, got %T", v)

	case t == schema.Boolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "t", "on", "1", "yes":
				return true, nil
			case "false", "f", "off", "0", "no", "":
				return false, nil
			}
		case float64:
			return b != 0, nil
		case int64:
			return b != 0, nil
		}
		return nil, errors.New("expected true or false")

	case t == schema.Email:
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("expected a string")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return s, nil
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return nil, errors.New("enter a valid email address")
		}
		return s, nil

	case t.IsText():
		switch s := v.(type) {
		case string:
			return s, nil
		case float64, int64, int, bool:
			return fmt.Sprint(s), nil
		}
		return nil, fmt.Errorf("expected a string, got %T", v)

	case t == schema.Date:
		switch d := v.(type) {
		case time.Time:
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		case string:
			s := strings.TrimSpace(d)
			if len(s) > len(time.DateOnly) {
				s = s[:len(time.DateOnly)]
			}
			parsed, err := time.Parse(time.DateOnly, s)
			if err != nil {
				return nil, errors.New("expected a date as YYYY-MM-DD")
			}
			return parsed, nil
		}
		return nil, errors.New("expected a date as YYYY-MM-DD")

	case t == schema.Timestamp || t == schema.Timestamptz:
		switch ts := v.(type) {
		case time.Time:
			return ts.UTC(), nil
		case string:
			parsed, err := parseTimestamp(ts)
			if err != nil {
				return nil, errors.New("expected a timestamp such as 2006-01-02T15:04:05Z")
			}
			return parsed.UTC(), nil
		}
		return nil, errors.New("expected a timestamp")

	case t == schema.Time:
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("expected a time as HH:MM[:SS]")
		}
		s = strings.TrimSpace(s)
		for _, layout := range []string{"15:04:05.999999999", "15:04"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.Format("15:04:05"), nil
			}
		}
		return nil, errors.New("expected a time as HH:MM[:SS]")

	case t == schema.Interval:
		switch d := v.(type) {
		case float64:
			return strconv.FormatFloat(d, 'f', -1, 64) + " seconds", nil
		case int64:
			return strconv.FormatInt(d, 10) + " seconds", nil
		case string:
			if secs, err := strconv.ParseFloat(strings.TrimSpace(d), 64); err == nil {
				return strconv.FormatFloat(secs, 'f', -1, 64) + " seconds", nil
			}
			return d, nil
		}
		return nil, errors.New("expected an interval")

	case t == schema.UUID:
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("expected a uuid")
		}
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, errors.New("expected a uuid")
		}
		return id.String(), nil

	case t.IsJSON():
		if s, ok := v.(string); ok {
			if !json.Valid([]byte(s)) {
				return nil, errors.New("expected valid JSON")
			}
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.New("expected valid JSON")
		}
		return string(b), nil

	case t == schema.Bytea:
		switch b := v.(type) {
		case string:
			return []byte(b), nil
		case []byte:
			return b, nil
		}
		return nil, errors.New("expected binary data")

	case t == schema.Array:
		return coerceArray(elem, v)
	}
	return v, nil
}

// coerceArray accepts a JSON array, or a string holding one, or a comma
// separated list, and returns a slice typed by the element type.
func coerceArray(elem schema.ColumnType, v any) (any, error) {
	if elem == "" {
		elem = schema.Text
	}
	var items []any
	switch a := v.(type) {
	case []any:
		items = a
	case []string:
		for _, s := range a {
			items = append(items, s)
		}
	case string:
		s := strings.TrimSpace(a)
		switch {
		case s == "":
		case strings.HasPrefix(s, "["):
			if err := json.Unmarshal([]byte(s), &items); err != nil {
				return nil, errors.New("expected a JSON array")
			}
		default:
			for _, part := range strings.Split(s, ",") {
				items = append(items, strings.TrimSpace(part))
			}
		}
	default:
		return nil, fmt.Errorf("expected an array, got %T", v)
	}

	switch {
	case elem.IsInteger():
		out := make([]int64, 0, len(items))
		for i, item := range items {
			c, err := coerceType(elem, "", item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, c.(int64))
		}
		return out, nil
	case elem == schema.Float || elem == schema.Numeric:
		out := make([]float64, 0, len(items))
		for i, item := range items {
			c, err := coerceType(elem, "", item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, c.(float64))
		}
		return out, nil
	case elem == schema.Boolean:
		out := make([]bool, 0, len(items))
		for i, item := range items {
			c, err := coerceType(elem, "", item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, c.(bool))
		}
		return out, nil
	default:
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	}
}

// bind converts a coerced value to a query argument for the dialect.
func (s *Service) bind(col *schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	sqlite := s.conn.Dialect().Name() == "sqlite"
	switch val := v.(type) {
	case time.Time:
		if !sqlite {
			return val, nil
		}
		if col.Type == schema.Date {
			return val.Format(time.DateOnly), nil
		}
		return val.UTC().Format(sqliteTimestamp), nil
	case []string, []int64, []float64, []bool:
		if sqlite {
			b, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}
		return pq.Array(val), nil
	}
	return v, nil
}

// normalize converts a scanned value to its canonical output form.
func normalize(col *schema.Column, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok && col.Type != schema.Bytea {
		v = string(b)
	}

	switch t := col.Type; {
	case t.IsInteger():
		switch n := v.(type) {
		case int64:
			return n
		case int32:
			return int64(n)
		case int:
			return int64(n)
		case float64:
			return int64(n)
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i
			}
		}
	case t == schema.Float || t == schema.Numeric:
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int64:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	case t == schema.Boolean:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		case string:
			switch strings.ToLower(b) {
			case "t", "true", "1":
				return true
			case "f", "false", "0":
				return false
			}
		}
	case t == schema.Date:
		switch d := v.(type) {
		case time.Time:
			return d.Format(time.DateOnly)
		case string:
			if len(d) >= len(time.DateOnly) {
				return d[:len(time.DateOnly)]
			}
		}
	case t == schema.Timestamp || t == schema.Timestamptz:
		if s, ok := v.(string); ok {
			if ts, err := parseTimestamp(s); err == nil {
				return ts
			}
		}
	case t.IsJSON():
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	case t == schema.Array:
		return normalizeArray(col, v)
	}
	return v
}

func normalizeArray(col *schema.Column, v any) any {
	var items []any
	switch a := v.(type) {
	case []any:
		items = a
	case string:
		s := strings.TrimSpace(a)
		switch {
		case strings.HasPrefix(s, "["):
			if err := json.Unmarshal([]byte(s), &items); err != nil {
				return v
			}
		case strings.HasPrefix(s, "{"):
			var arr pq.StringArray
			if err := arr.Scan(s); err != nil {
				return v
			}
			for _, item := range arr {
				items = append(items, item)
			}
		default:
			return v
		}
	default:
		return v
	}

	elem := &schema.Column{Name: col.Name, Type: col.ElementType}
	if elem.Type == "" {
		elem.Type = schema.Text
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = normalize(elem, item)
	}
	return out
}
