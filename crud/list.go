package crud

import (
	"context"
	"fmt"
	"strings"
)

// ListResult is one page of rows.
type ListResult struct {
	Rows     []map[string]any `json:"rows"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// Pages returns the number of pages.
func (r *ListResult) Pages() int {
	if r.PageSize <= 0 || r.Total == 0 {
		return 1
	}
	return int((r.Total + int64(r.PageSize) - 1) / int64(r.PageSize))
}

// List returns one page of rows matching q and the total number of matches.
func (s *Service) List(ctx context.Context, table string, q Query) (*ListResult, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return nil, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = s.pageSize(spec)
	}
	if size > s.cfg.MaxPageSize {
		size = s.cfg.MaxPageSize
	}

	q.Page, q.PageSize = page, size
	rows, err := s.listPage(ctx, spec, q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	total, err := s.Count(ctx, table, q.Filters)
	if err != nil {
		return nil, err
	}
	return &ListResult{Rows: rows, Total: total, Page: page, PageSize: size}, nil
}

// Count returns the number of rows matching filters.
func (s *Service) Count(ctx context.Context, table string, filters []Filter) (int64, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return 0, err
	}
	var a args
	where, err := s.where(spec.Table, filters, &a)
	if err != nil {
		return 0, err
	}
	return s.count(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s t%s", s.quote(spec.Table.Name), where), a...)
}

func (s *Service) count(ctx context.Context, sql string, a ...any) (int64, error) {
	rows, err := s.query(ctx, sql, a...)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch n := rows[0]["n"].(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("count: unexpected result %T", rows[0]["n"])
}

// IDReadable pairs a primary key with the readable of its row.
type IDReadable struct {
	ID       any    `json:"id"`
	Readable string `json:"readable"`
}

// IDsQuery selects rows for IDs.
type IDsQuery struct {
	// Search matches the readable, case insensitively.
	Search string
	Limit  int
	Offset int
}

// IDs returns primary keys with readables, ordered by readable. It backs
// foreign key pickers.
func (s *Service) IDs(ctx context.Context, table string, q IDsQuery) ([]IDReadable, error) {
	spec, err := s.Spec(table)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var a args
	pk := spec.Table.PrimaryKey()
	readable := s.readableExpr(spec.Table, "t", &a)
	where := ""
	if search := strings.TrimSpace(q.Search); search != "" {
		where = fmt.Sprintf(` WHERE %s %s %s ESCAPE '\'`, readable, s.Dialect().ILike(), a.add("%"+escapeLike(search)+"%"))
	}
	sql := fmt.Sprintf("SELECT t.%s AS id, %s AS readable FROM %s t%s ORDER BY readable, t.%s LIMIT %d OFFSET %d",
		s.quote(pk.Name), readable, s.quote(spec.Table.Name), where, s.quote(pk.Name), limit, offset)

	rows, err := s.query(ctx, sql, a...)
	if err != nil {
		return nil, fmt.Errorf("ids %s: %w", table, err)
	}
	out := make([]IDReadable, len(rows))
	for i, row := range rows {
		out[i] = IDReadable{ID: normalize(pk, row["id"]), Readable: fmt.Sprint(row["readable"])}
	}
	return out, nil
}
