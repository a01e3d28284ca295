package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/crud"
	"github.com/youssefsiam38/tableadmin/schema"
)

// CSV export parameters, removed before the list query is parsed.
const (
	paramDelimiter      = "__delimiter"
	paramVerboseHeaders = "__verbose_headers"
)

// table looks up the table of the request and runs its validators for op.
// On failure the error has been written.
func (rt *router) table(w http.ResponseWriter, r *http.Request, op tableadmin.Operation) (*tableadmin.ResolvedTable, bool) {
	t, err := rt.admin.Table(r.PathValue("table"))
	if err == nil {
		err = t.Validate(r.Context(), op)
	}
	if err != nil {
		rt.writeServiceError(w, r, err)
		return nil, false
	}
	return t, true
}

// parseID reads the {id} path value of the request.
func (rt *router) parseID(w http.ResponseWriter, r *http.Request, t *tableadmin.ResolvedTable) (any, bool) {
	id, err := rt.admin.CRUD().ParseID(t.Name(), r.PathValue("id"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return nil, false
	}
	return id, true
}

func (rt *router) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.admin.Registry().Names())
}

func (rt *router) handleGroupedTables(w http.ResponseWriter, r *http.Request) {
	groups := rt.admin.Registry().Grouped()
	ungrouped := groups[""]
	delete(groups, "")
	if ungrouped == nil {
		ungrouped = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"grouped":   groups,
		"ungrouped": ungrouped,
	})
}

func (rt *router) handleListRows(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpList)
	if !ok {
		return
	}
	q, err := crud.ParseQuery(t.Table, r.URL.Query())
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	res, err := rt.admin.CRUD().List(r.Context(), t.Name(), q)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSONWithMeta(w, http.StatusOK, res.Rows, &Meta{
		TotalCount: res.Total,
		Page:       res.Page,
		PageSize:   res.PageSize,
		Pages:      res.Pages(),
		HasMore:    res.Page < res.Pages(),
	})
}

func (rt *router) handleCreateRow(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpCreate)
	if !ok {
		return
	}
	var values map[string]any
	if err := decodeBody(r, &values); err != nil {
		rt.bodyError(w, r, err)
		return
	}
	row, err := rt.admin.CRUD().Create(r.Context(), t.Name(), values)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	rt.config.Logger.Info("row created", "table", t.Name(), "id", row[t.Table.PrimaryKey().Name])
	writeJSON(w, http.StatusCreated, row)
}

func (rt *router) handleGetRow(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpGet)
	if !ok {
		return
	}
	id, ok := rt.parseID(w, r, t)
	if !ok {
		return
	}
	readable := r.URL.Query().Get(crud.ParamReadable) == "true"
	row, err := rt.admin.CRUD().Get(r.Context(), t.Name(), id, readable)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (rt *router) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpUpdate)
	if !ok {
		return
	}
	id, ok := rt.parseID(w, r, t)
	if !ok {
		return
	}
	var values map[string]any
	if err := decodeBody(r, &values); err != nil {
		rt.bodyError(w, r, err)
		return
	}
	row, err := rt.admin.CRUD().Update(r.Context(), t.Name(), id, values)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	rt.config.Logger.Info("row updated", "table", t.Name(), "id", id)
	writeJSON(w, http.StatusOK, row)
}

func (rt *router) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpDelete)
	if !ok {
		return
	}
	id, ok := rt.parseID(w, r, t)
	if !ok {
		return
	}
	if err := rt.admin.CRUD().Delete(r.Context(), t.Name(), id); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	rt.config.Logger.Info("row deleted", "table", t.Name(), "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteRows deletes the rows listed in repeated or comma separated
// id query parameters.
func (rt *router) handleDeleteRows(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpDelete)
	if !ok {
		return
	}
	ids, err := rt.parseIDs(t, r.URL.Query()["id"])
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "missing_param", "id query parameter is required")
		return
	}
	n, err := rt.admin.CRUD().DeleteMany(r.Context(), t.Name(), ids)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	rt.config.Logger.Info("rows deleted", "table", t.Name(), "count", n)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (rt *router) parseIDs(t *tableadmin.ResolvedTable, raw []string) ([]any, error) {
	var ids []any
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := rt.admin.CRUD().ParseID(t.Name(), part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// columnSchema describes a column to clients.
type columnSchema struct {
	*schema.Column
	Label          string   `json:"label"`
	Visible        bool     `json:"visible"`
	Filterable     bool     `json:"filterable"`
	RichText       bool     `json:"rich_text,omitempty"`
	Media          bool     `json:"media,omitempty"`
	Extensions     []string `json:"allowed_extensions,omitempty"`
	TimeResolution int      `json:"time_resolution,omitempty"`
}

func (rt *router) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpGet)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describeTable(t))
}

func describeTable(t *tableadmin.ResolvedTable) map[string]any {
	cols := make([]columnSchema, 0, len(t.Table.Columns))
	for _, c := range t.Table.Columns {
		if c.Secret {
			continue
		}
		cs := columnSchema{
			Column:         c,
			Label:          c.Label(),
			Visible:        contains(t.VisibleColumns, c.Name),
			Filterable:     contains(t.VisibleFilters, c.Name),
			RichText:       t.IsRichText(c.Name),
			TimeResolution: t.TimeResolution[c.Name],
		}
		if s, ok := t.MediaStorage(c.Name); ok {
			cs.Media = true
			cs.Extensions = s.AllowedExtensions()
		}
		cols = append(cols, cs)
	}
	actions := make([]string, len(t.Config.Actions))
	for i, a := range t.Config.Actions {
		actions[i] = a.Name
	}
	return map[string]any{
		"name":            t.Name(),
		"label":           t.Table.Label(),
		"help_text":       t.Table.HelpText,
		"primary_key":     t.Table.PrimaryKey().Name,
		"link_column":     t.LinkColumn,
		"columns":         cols,
		"visible_columns": t.VisibleColumns,
		"visible_filters": t.VisibleFilters,
		"order":           t.Order,
		"read_only":       t.ReadOnly,
		"actions":         actions,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (rt *router) handleIDs(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpList)
	if !ok {
		return
	}
	q := crud.IDsQuery{
		Search: r.URL.Query().Get("search"),
		Limit:  parseInt(r, "limit", 0),
		Offset: parseInt(r, "offset", 0),
	}
	ids, err := rt.admin.CRUD().IDs(r.Context(), t.Name(), q)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	if ids == nil {
		ids = []crud.IDReadable{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (rt *router) handleCount(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpList)
	if !ok {
		return
	}
	q, err := crud.ParseQuery(t.Table, r.URL.Query())
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	n, err := rt.admin.CRUD().Count(r.Context(), t.Name(), q.Filters)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (rt *router) handleNewRow(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpGet)
	if !ok {
		return
	}
	row, err := rt.admin.CRUD().Defaults(t.Name())
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (rt *router) handleReferences(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpGet)
	if !ok {
		return
	}
	refs := rt.admin.Graph().ReferencedBy(t.Name())
	if refs == nil {
		refs = []tableadmin.Reference{}
	}
	writeJSON(w, http.StatusOK, refs)
}

func (rt *router) handleDeletePreview(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpGet)
	if !ok {
		return
	}
	id, ok := rt.parseID(w, r, t)
	if !ok {
		return
	}
	if _, err := rt.admin.CRUD().Get(r.Context(), t.Name(), id, false); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	impacts, err := rt.admin.DeletePreview(r.Context(), t.Name(), id)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, impacts)
}

func (rt *router) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpExport)
	if !ok {
		return
	}

	values := r.URL.Query()
	opts, err := csvOptions(values)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	values.Del(paramDelimiter)
	values.Del(paramVerboseHeaders)

	q, err := crud.ParseQuery(t.Table, values)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	opts.Readable = q.Readable

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, t.Name()))
	if err := rt.admin.CRUD().ExportCSV(r.Context(), w, t.Name(), q, opts); err != nil {
		// Headers are sent once the first batch is written.
		rt.config.Logger.Error("csv export failed", "table", t.Name(), "error", err)
	}
}

func csvOptions(values url.Values) (crud.CSVOptions, error) {
	opts := crud.CSVOptions{Delimiter: ','}
	if d := values.Get(paramDelimiter); d != "" {
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
			return opts, fmt.Errorf("%w: invalid delimiter %q", crud.ErrInvalidQuery, d)
		}
		opts.Delimiter = r
	}
	opts.VerboseHeaders = values.Get(paramVerboseHeaders) == "true"
	return opts, nil
}

func (rt *router) handleListActions(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpList)
	if !ok {
		return
	}
	names := make([]string, len(t.Config.Actions))
	for i, a := range t.Config.Actions {
		names[i] = a.Name
	}
	writeJSON(w, http.StatusOK, names)
}

type actionRequest struct {
	IDs []any `json:"ids"`
}

func (rt *router) handleRunAction(w http.ResponseWriter, r *http.Request) {
	t, err := rt.admin.Table(r.PathValue("table"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		rt.bodyError(w, r, err)
		return
	}
	raw := make([]string, len(req.IDs))
	for i, id := range req.IDs {
		raw[i] = fmt.Sprint(id)
	}
	ids, err := rt.parseIDs(t, raw)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	msg, err := rt.admin.RunAction(r.Context(), t.Name(), r.PathValue("name"), ids)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// bodyError reports an undecodable request body.
func (rt *router) bodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		rt.writeServiceError(w, r, err)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
}
