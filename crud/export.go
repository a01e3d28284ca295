package crud

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/youssefsiam38/tableadmin/schema"
)

// CSVOptions configures ExportCSV.
type CSVOptions struct {
	// Delimiter defaults to a comma.
	Delimiter rune

	// Readable replaces foreign key values with their readables.
	Readable bool

	// VerboseHeaders uses column labels instead of names in the header row.
	VerboseHeaders bool
}

// exportBatch is the number of rows fetched per query while exporting.
const exportBatch = 500

// ExportCSV writes every row matching q as CSV. Pagination in q is ignored.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, table string, q Query, opts CSVOptions) error {
	spec, err := s.Spec(table)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if opts.Delimiter != 0 {
		cw.Comma = opts.Delimiter
	}

	cols := selectColumns(spec.Table, q.VisibleFields)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
		if opts.VerboseHeaders {
			header[i] = c.Label()
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	q.Readable = opts.Readable
	q.PageSize = exportBatch
	for page := 1; ; page++ {
		q.Page = page
		res, err := s.listPage(ctx, spec, q)
		if err != nil {
			return fmt.Errorf("export %s: %w", table, err)
		}
		for _, row := range res {
			record := make([]string, len(cols))
			for i, c := range cols {
				v := row[c.Name]
				if opts.Readable && c.ForeignKey != nil && v != nil {
					v = row[c.Name+ReadableSuffix]
				}
				record[i] = FormatCell(c, v)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		if len(res) < exportBatch {
			return nil
		}
	}
}

// listPage returns one page of normalized rows without counting.
func (s *Service) listPage(ctx context.Context, spec *TableSpec, q Query) ([]map[string]any, error) {
	var a args
	sel := s.selectList(selectColumns(spec.Table, q.VisibleFields), q.Readable, &a)
	where, err := s.where(spec.Table, q.Filters, &a)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s t%s%s LIMIT %d OFFSET %d",
		sel, s.quote(spec.Table.Name), where, s.orderBy(spec, q.Order), q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := s.query(ctx, sql, a...)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		normalizeRow(spec.Table, row)
	}
	return rows, nil
}

// FormatCell renders a normalized value of c as text. JSON and array values
// are encoded as JSON.
func FormatCell(c *schema.Column, v any) string {
	if v == nil {
		return ""
	}
	if c.Type.IsJSON() || c.Type == schema.Array {
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return formatValue(v)
}

// formatValue renders a normalized value as text.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	}
	return fmt.Sprint(v)
}
