package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/crud"
	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/media"
	"github.com/youssefsiam38/tableadmin/schema"
	"github.com/youssefsiam38/tableadmin/ui/api"
)

const (
	// fileSuffix names the file input of a media column.
	fileSuffix = "__file"

	// deleteAction is the bulk action deleting the selected rows.
	deleteAction = "__delete"

	// maxCellLength is the number of characters shown per list cell.
	maxCellLength = 80
)

// table looks up the table of the request and runs its validators for op.
// On failure the error page has been written.
func (rt *router) table(w http.ResponseWriter, r *http.Request, op tableadmin.Operation) (*tableadmin.ResolvedTable, bool) {
	t, err := rt.admin.Table(r.PathValue("table"))
	if err == nil {
		err = t.Validate(r.Context(), op)
	}
	if err != nil {
		rt.handleError(w, r, err)
		return nil, false
	}
	return t, true
}

func (rt *router) parseID(w http.ResponseWriter, r *http.Request, t *tableadmin.ResolvedTable) (any, bool) {
	id, err := rt.admin.CRUD().ParseID(t.Name(), r.PathValue("id"))
	if err != nil {
		rt.handleError(w, r, err)
		return nil, false
	}
	return id, true
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

// Row list

type listColumn struct {
	Name      string
	Label     string
	SortURL   string
	Sorted    bool
	Ascending bool
}

type listCell struct {
	Text string
	URL  string
}

type listRow struct {
	ID    string
	Cells []listCell
}

type filterField struct {
	Name    string
	Label   string
	Value   string
	Options []option
}

type listView struct {
	Name      string
	Label     string
	HelpText  string
	ReadOnly  bool
	Columns   []listColumn
	Rows      []listRow
	Filters   []filterField
	Filtered  bool
	Total     int64
	Page      int
	Pages     int
	PrevURL   string
	NextURL   string
	ExportURL string
	NewURL    string
	BulkURL   string
	ClearURL  string
	Query     string
	Actions   []string
}

func (rt *router) handleList(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpList)
	if !ok {
		return
	}

	values := r.URL.Query()
	values.Del("lang")
	q, err := crud.ParseQuery(t.Table, values)
	if err != nil {
		rt.handleError(w, r, err)
		return
	}
	q.VisibleFields = t.VisibleColumns
	q.Readable = true

	res, err := rt.admin.CRUD().List(r.Context(), t.Name(), q)
	if err != nil {
		rt.handleError(w, r, err)
		return
	}

	order := q.Order
	if len(order) == 0 {
		order = t.Order
	}
	view := listView{
		Name:      t.Name(),
		Label:     t.Table.Label(),
		HelpText:  t.Table.HelpText,
		ReadOnly:  t.ReadOnly,
		Filtered:  len(q.Filters) > 0,
		Total:     res.Total,
		Page:      res.Page,
		Pages:     res.Pages(),
		NewURL:    rt.path("tables", t.Name(), "new"),
		BulkURL:   rt.path("tables", t.Name(), "bulk"),
		ClearURL:  rt.path("tables", t.Name()),
		ExportURL: rt.path("api", "tables", t.Name(), "export.csv") + "?" + withParam(values, crud.ParamReadable, "true").Encode(),
		Query:     values.Encode(),
	}
	for _, a := range t.Config.Actions {
		view.Actions = append(view.Actions, a.Name)
	}
	if res.Page > 1 {
		view.PrevURL = "?" + withParam(values, crud.ParamPage, strconv.Itoa(res.Page-1)).Encode()
	}
	if res.Page < res.Pages() {
		view.NextURL = "?" + withParam(values, crud.ParamPage, strconv.Itoa(res.Page+1)).Encode()
	}

	for _, name := range t.VisibleColumns {
		c := t.Table.Column(name)
		lc := listColumn{Name: name, Label: c.Label()}
		if len(order) > 0 && order[0].Column == name {
			lc.Sorted, lc.Ascending = true, order[0].Ascending
		}
		sortKey := name
		if lc.Sorted && lc.Ascending {
			sortKey = "-" + name
		}
		sorted := withParam(values, crud.ParamOrder, sortKey)
		sorted.Del(crud.ParamPage)
		lc.SortURL = "?" + sorted.Encode()
		view.Columns = append(view.Columns, lc)
	}

	pk := t.Table.PrimaryKey()
	for _, row := range res.Rows {
		id := crud.FormatCell(pk, row[pk.Name])
		lr := listRow{ID: id}
		for _, name := range t.VisibleColumns {
			cell := rt.cell(r, t, t.Table.Column(name), row)
			if name == t.LinkColumn {
				cell.URL = rt.path("tables", t.Name(), id)
				if cell.Text == "" {
					cell.Text = id
				}
			}
			lr.Cells = append(lr.Cells, cell)
		}
		view.Rows = append(view.Rows, lr)
	}

	for _, name := range t.VisibleFilters {
		c := t.Table.Column(name)
		f := filterField{Name: name, Label: c.Label(), Value: values.Get(name)}
		switch {
		case c.Type == schema.Boolean:
			f.Options = []option{
				{Value: "", Label: rt.t(r, "common.all")},
				{Value: "true", Label: rt.t(r, "common.yes")},
				{Value: "false", Label: rt.t(r, "common.no")},
			}
		case len(c.Choices) > 0:
			f.Options = append(f.Options, option{Value: "", Label: rt.t(r, "common.all")})
			for _, ch := range c.Choices {
				f.Options = append(f.Options, option{Value: fmt.Sprint(ch.Value), Label: ch.Label})
			}
		}
		for i := range f.Options {
			f.Options[i].Selected = f.Options[i].Value == f.Value
		}
		view.Filters = append(view.Filters, f)
	}

	rt.page(w, r, http.StatusOK, "list.html", view.Label, view)
}

// withParam returns a copy of values with key set to v.
func withParam(values url.Values, key, v string) url.Values {
	out := make(url.Values, len(values)+1)
	for k, vs := range values {
		out[k] = append([]string(nil), vs...)
	}
	out.Set(key, v)
	return out
}

// cell renders one value of a list row.
func (rt *router) cell(r *http.Request, t *tableadmin.ResolvedTable, c *schema.Column, row map[string]any) listCell {
	v := row[c.Name]
	if v == nil {
		return listCell{}
	}
	switch {
	case c.Type == schema.Boolean:
		if b, _ := v.(bool); b {
			return listCell{Text: rt.t(r, "common.yes")}
		}
		return listCell{Text: rt.t(r, "common.no")}
	case c.ForeignKey != nil:
		text := crud.FormatCell(c, v)
		if readable, ok := row[c.Name+crud.ReadableSuffix]; ok && readable != nil {
			text = fmt.Sprint(readable)
		}
		cell := listCell{Text: truncate(maxCellLength, text)}
		if target, err := rt.admin.Table(c.ForeignKey.Table); err == nil && target.Table.PrimaryKey().Name == c.ForeignKey.Column {
			cell.URL = rt.path("tables", target.Name(), crud.FormatCell(target.Table.PrimaryKey(), v))
		}
		return cell
	}

	text := crud.FormatCell(c, v)
	for _, ch := range c.Choices {
		if fmt.Sprint(ch.Value) == text {
			text = ch.Label
			break
		}
	}
	cell := listCell{Text: truncate(maxCellLength, text)}
	if key, ok := v.(string); ok && key != "" {
		cell.URL = rt.mediaURL(r.Context(), t, c.Name, key)
	}
	return cell
}

// mediaURL returns the URL of a stored file, or "" when column has no
// storage.
func (rt *router) mediaURL(ctx context.Context, t *tableadmin.ResolvedTable, column, key string) string {
	s, ok := t.MediaStorage(column)
	if !ok {
		return ""
	}
	u, err := s.GenerateFileURL(ctx, key, rt.config.BasePath+api.MediaPath(t.Name(), column))
	if err != nil {
		rt.config.Logger.Warn("media url", "table", t.Name(), "column", column, "error", err)
		return ""
	}
	return u
}

// handleBulk runs a bulk action on the rows selected in the list.
func (rt *router) handleBulk(w http.ResponseWriter, r *http.Request) {
	action := r.PostFormValue("action")
	op := tableadmin.OpAction
	if action == deleteAction {
		op = tableadmin.OpDelete
	}
	t, ok := rt.table(w, r, op)
	if !ok {
		return
	}

	back := rt.path("tables", t.Name())
	if query, err := url.ParseQuery(r.PostFormValue("query")); err == nil && len(query) > 0 {
		back += "?" + query.Encode()
	}

	var ids []any
	for _, raw := range r.PostForm["id"] {
		id, err := rt.admin.CRUD().ParseID(t.Name(), raw)
		if err != nil {
			rt.handleError(w, r, err)
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		rt.renderer.setFlash(w, "error", rt.t(r, "table.none_selected"))
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	var (
		msg string
		err error
	)
	if action == deleteAction {
		var n int64
		n, err = rt.admin.CRUD().DeleteMany(r.Context(), t.Name(), ids)
		msg = fmt.Sprintf("%s (%s)", rt.t(r, "table.deleted"), humanize.Comma(n))
		if err == nil {
			rt.config.Logger.Info("rows deleted", "table", t.Name(), "count", n)
		}
	} else {
		msg, err = rt.admin.RunAction(r.Context(), t.Name(), action, ids)
		if msg == "" {
			msg = rt.t(r, "table.saved")
		}
	}
	if err != nil {
		if serviceStatus(err) == http.StatusInternalServerError {
			rt.handleError(w, r, err)
			return
		}
		rt.renderer.setFlash(w, "error", err.Error())
	} else {
		rt.renderer.setFlash(w, "success", msg)
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// Row edit

type field struct {
	Name       string
	Label      string
	HelpText   string
	Input      string
	Value      string
	Checked    bool
	Options    []option
	Step       string
	Required   bool
	Disabled   bool
	RichText   bool
	Media      bool
	MediaURL   string
	Accept     string
	Error      string
	References string
}

type editView struct {
	Name      string
	Label     string
	IsNew     bool
	ID        string
	ReadOnly  bool
	Fields    []field
	Action    string
	ListURL   string
	DeleteURL string
	Error     string
}

func (rt *router) handleNew(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpCreate)
	if !ok {
		return
	}
	defaults, err := rt.admin.CRUD().Defaults(t.Name())
	if err != nil {
		rt.handleError(w, r, err)
		return
	}
	rt.renderEdit(w, r, http.StatusOK, t, nil, defaults, nil, "")
}

func (rt *router) handleCreate(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpCreate)
	if !ok {
		return
	}
	if err := parseForm(r); err != nil {
		rt.handleError(w, r, err)
		return
	}

	values, err := rt.readRow(r, t, true)
	var row map[string]any
	if err == nil {
		row, err = rt.admin.CRUD().Create(r.Context(), t.Name(), values)
	}
	if rt.formError(w, r, t, nil, err) {
		return
	}

	pk := t.Table.PrimaryKey()
	id := crud.FormatCell(pk, row[pk.Name])
	rt.config.Logger.Info("row created", "table", t.Name(), "id", id)
	rt.renderer.setFlash(w, "success", rt.t(r, "table.saved"))
	rt.redirectAfterSave(w, r, t, id)
}

func (rt *router) handleEdit(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpGet)
	if !ok {
		return
	}
	id, ok := rt.parseID(w, r, t)
	if !ok {
		return
	}
	row, err := rt.admin.CRUD().Get(r.Context(), t.Name(), id, false)
	if err != nil {
		rt.handleError(w, r, err)
		return
	}
	rt.renderEdit(w, r, http.StatusOK, t, id, row, nil, "")
}

func (rt *router) handleUpdate(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpUpdate)
	if !ok {
		return
	}
	id, ok := rt.parseID(w, r, t)
	if !ok {
		return
	}
	if err := parseForm(r); err != nil {
		rt.handleError(w, r, err)
		return
	}

	values, err := rt.readRow(r, t, false)
	if err == nil {
		_, err = rt.admin.CRUD().Update(r.Context(), t.Name(), id, values)
	}
	if rt.formError(w, r, t, id, err) {
		return
	}

	rt.config.Logger.Info("row updated", "table", t.Name(), "id", id)
	rt.renderer.setFlash(w, "success", rt.t(r, "table.saved"))
	rt.redirectAfterSave(w, r, t, crud.FormatCell(t.Table.PrimaryKey(), id))
}

// formError writes the response for a failed save. Invalid values
// re-render the form with the submitted data. It reports whether err was
// handled.
func (rt *router) formError(w http.ResponseWriter, r *http.Request, t *tableadmin.ResolvedTable, id any, err error) bool {
	if err == nil {
		return false
	}
	submitted := make(map[string]any, len(r.PostForm))
	for key := range r.PostForm {
		v, _ := lastValue(r.PostForm, key)
		submitted[key] = v
	}

	var verr *crud.ValidationError
	switch {
	case errors.As(err, &verr):
		rt.renderEdit(w, r, http.StatusBadRequest, t, id, submitted, verr.Fields, "")
	case driver.IsConstraintError(err):
		rt.renderEdit(w, r, http.StatusConflict, t, id, submitted, nil, err.Error())
	default:
		rt.handleError(w, r, err)
	}
	return true
}

func (rt *router) redirectAfterSave(w http.ResponseWriter, r *http.Request, t *tableadmin.ResolvedTable, id string) {
	if r.PostFormValue("_continue") != "" {
		http.Redirect(w, r, rt.path("tables", t.Name(), id), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, rt.path("tables", t.Name()), http.StatusSeeOther)
}

// readRow collects the submitted values of the editable columns and
// stores uploaded files.
func (rt *router) readRow(r *http.Request, t *tableadmin.ResolvedTable, insert bool) (map[string]any, error) {
	values := make(map[string]any)
	for _, c := range t.Table.Columns {
		if c.Secret || (c.PrimaryKey && (!insert || c.Generated())) {
			continue
		}
		raw, present := lastValue(r.PostForm, c.Name)

		if c.Type == schema.Boolean && len(c.Choices) == 0 {
			values[c.Name] = raw == "true"
			continue
		}

		if s, ok := t.MediaStorage(c.Name); ok {
			key, err := rt.storeUpload(r, s, c.Name)
			if err != nil {
				return nil, err
			}
			if key != "" {
				if c.Type == schema.Array {
					values[c.Name] = append(splitKeys(raw), key)
				} else {
					values[c.Name] = key
				}
				continue
			}
		}

		if present {
			values[c.Name] = raw
		}
	}
	return values, nil
}

// splitKeys parses the text form of an array column.
func splitKeys(raw string) []any {
	raw = strings.TrimSpace(raw)
	var items []any
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return items
		}
	}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// storeUpload stores the file submitted for column and returns its key,
// or "" when no file was sent.
func (rt *router) storeUpload(r *http.Request, s media.Storage, column string) (string, error) {
	if r.MultipartForm == nil {
		return "", nil
	}
	files := r.MultipartForm.File[column+fileSuffix]
	if len(files) == 0 || files[0].Filename == "" {
		return "", nil
	}
	header := files[0]
	if limit := rt.admin.Config().MaxUploadSize; header.Size > limit {
		return "", &crud.ValidationError{Fields: map[string]string{
			column: fmt.Sprintf("file is larger than %s", humanize.IBytes(uint64(limit))),
		}}
	}
	f, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	key, err := s.StoreFile(r.Context(), header.Filename, f)
	switch {
	case errors.Is(err, media.ErrExtensionNotAllowed), errors.Is(err, media.ErrNoExtension):
		return "", &crud.ValidationError{Fields: map[string]string{column: err.Error()}}
	case err != nil:
		return "", err
	}
	rt.config.Logger.Info("file uploaded", "table", s.Table(), "column", column, "key", key)
	return key, nil
}

// renderEdit renders the create form when id is nil and the edit form
// otherwise.
func (rt *router) renderEdit(w http.ResponseWriter, r *http.Request, status int, t *tableadmin.ResolvedTable, id any, row map[string]any, errs map[string]string, msg string) {
	view := editView{
		Name:     t.Name(),
		Label:    t.Table.Label(),
		IsNew:    id == nil,
		ReadOnly: t.ReadOnly,
		ListURL:  rt.path("tables", t.Name()),
		Error:    msg,
	}
	title := rt.t(r, "table.new_title")
	if view.IsNew {
		view.Action = rt.path("tables", t.Name(), "new")
	} else {
		view.ID = crud.FormatCell(t.Table.PrimaryKey(), id)
		view.Action = rt.path("tables", t.Name(), view.ID)
		view.DeleteURL = rt.path("tables", t.Name(), view.ID, "delete")
		title = rt.t(r, "table.edit_title")
	}

	for _, c := range t.Table.Columns {
		if c.Secret || (c.PrimaryKey && view.IsNew && c.Generated()) {
			continue
		}
		view.Fields = append(view.Fields, rt.field(r, t, c, row[c.Name], errs[c.Name], view.IsNew))
	}
	rt.page(w, r, status, "edit.html", title+" · "+view.Label, view)
}

// field describes the input of column c holding v.
func (rt *router) field(r *http.Request, t *tableadmin.ResolvedTable, c *schema.Column, v any, errMsg string, isNew bool) field {
	f := field{
		Name:     c.Name,
		Label:    c.Label(),
		HelpText: c.HelpText,
		Input:    "text",
		Value:    inputValue(c, v),
		Required: !c.Nullable && !c.HasDefault && !c.Generated() && c.Type != schema.Boolean,
		Disabled: t.ReadOnly || (c.PrimaryKey && !isNew),
		Error:    errMsg,
	}

	switch {
	case len(c.Choices) > 0:
		f.Input = "select"
		if c.Nullable {
			f.Options = append(f.Options, option{Label: rt.t(r, "common.none")})
		}
		for _, ch := range c.Choices {
			f.Options = append(f.Options, option{Value: fmt.Sprint(ch.Value), Label: ch.Label})
		}
	case c.ForeignKey != nil:
		f.References = c.ForeignKey.Table
		if opts, ok := rt.foreignKeyOptions(r.Context(), c); ok {
			f.Input = "select"
			f.Options = opts
		}
	case c.Type == schema.Boolean:
		f.Input = "checkbox"
		f.Checked = f.Value == "true"
	case c.Type.IsInteger():
		f.Input, f.Step = "number", "1"
	case c.Type.IsNumber():
		f.Input, f.Step = "number", "any"
	case c.Type == schema.Date:
		f.Input = "date"
	case c.Type == schema.Time:
		f.Input, f.Step = "time", "1"
	case c.Type == schema.Timestamp || c.Type == schema.Timestamptz:
		f.Input, f.Step = "datetime-local", "1"
	case c.Type == schema.Email:
		f.Input = "email"
	case c.Type == schema.Text || c.Type.IsJSON() || c.Type == schema.Array:
		f.Input = "textarea"
	}
	if step, ok := t.TimeResolution[c.Name]; ok {
		f.Step = strconv.Itoa(step)
	}
	f.RichText = t.IsRichText(c.Name)
	if f.RichText {
		f.Input = "textarea"
	}

	if s, ok := t.MediaStorage(c.Name); ok {
		f.Media = true
		exts := make([]string, len(s.AllowedExtensions()))
		for i, ext := range s.AllowedExtensions() {
			exts[i] = "." + ext
		}
		f.Accept = strings.Join(exts, ",")
		if c.Type != schema.Array && f.Value != "" {
			f.MediaURL = rt.mediaURL(r.Context(), t, c.Name, f.Value)
		}
	}

	for i := range f.Options {
		f.Options[i].Selected = f.Options[i].Value == f.Value
	}
	return f
}

// foreignKeyOptions lists the rows the foreign key c may point at. ok is
// false when the target table is not managed by the admin.
func (rt *router) foreignKeyOptions(ctx context.Context, c *schema.Column) ([]option, bool) {
	target, err := rt.admin.Table(c.ForeignKey.Table)
	if err != nil || target.Table.PrimaryKey().Name != c.ForeignKey.Column {
		return nil, false
	}
	ids, err := rt.admin.CRUD().IDs(ctx, target.Name(), crud.IDsQuery{})
	if err != nil {
		rt.config.Logger.Warn("list foreign key options", "table", target.Name(), "error", err)
		return nil, false
	}
	opts := make([]option, 0, len(ids)+1)
	if c.Nullable {
		opts = append(opts, option{Label: "-"})
	}
	for _, id := range ids {
		opts = append(opts, option{Value: crud.FormatCell(target.Table.PrimaryKey(), id.ID), Label: id.Readable})
	}
	return opts, true
}

// inputValue formats v for an HTML input of column c.
func inputValue(c *schema.Column, v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		switch c.Type {
		case schema.Date:
			return val.Format(time.DateOnly)
		case schema.Time:
			return val.Format(time.TimeOnly)
		}
		return val.Format("2006-01-02T15:04:05")
	}
	return crud.FormatCell(c, v)
}

// Delete

type deleteView struct {
	Name      string
	Label     string
	ID        string
	Impacts   []tableadmin.DeleteImpact
	Action    string
	CancelURL string
}

func (rt *router) handleDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpDelete)
	if !ok {
		return
	}
	id, ok := rt.parseID(w, r, t)
	if !ok {
		return
	}
	if _, err := rt.admin.CRUD().Get(r.Context(), t.Name(), id, false); err != nil {
		rt.handleError(w, r, err)
		return
	}
	impacts, err := rt.admin.DeletePreview(r.Context(), t.Name(), id)
	if err != nil {
		rt.handleError(w, r, err)
		return
	}

	idText := crud.FormatCell(t.Table.PrimaryKey(), id)
	view := deleteView{
		Name:      t.Name(),
		Label:     t.Table.Label(),
		ID:        idText,
		Impacts:   impacts,
		Action:    rt.path("tables", t.Name(), idText, "delete"),
		CancelURL: rt.path("tables", t.Name(), idText),
	}
	rt.page(w, r, http.StatusOK, "delete.html", rt.t(r, "table.delete")+" · "+view.Label, view)
}

func (rt *router) handleDelete(w http.ResponseWriter, r *http.Request) {
	t, ok := rt.table(w, r, tableadmin.OpDelete)
	if !ok {
		return
	}
	id, ok := rt.parseID(w, r, t)
	if !ok {
		return
	}
	if err := rt.admin.CRUD().Delete(r.Context(), t.Name(), id); err != nil {
		rt.handleError(w, r, err)
		return
	}
	rt.config.Logger.Info("row deleted", "table", t.Name(), "id", id)
	rt.renderer.setFlash(w, "success", rt.t(r, "table.deleted"))
	http.Redirect(w, r, rt.path("tables", t.Name()), http.StatusSeeOther)
}
