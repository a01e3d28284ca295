package api

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/forms"
)

type formSummary struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}

type formDetail struct {
	formSummary
	Fields   []forms.Field  `json:"fields"`
	Defaults map[string]any `json:"defaults"`
}

func summarize(f *forms.Form) formSummary {
	return formSummary{Name: f.Name, Slug: f.Slug, Description: f.Description}
}

func (rt *router) handleListForms(w http.ResponseWriter, r *http.Request) {
	list := rt.admin.Forms().Forms()
	out := make([]formSummary, len(list))
	for i, f := range list {
		out[i] = summarize(f)
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *router) handleGetForm(w http.ResponseWriter, r *http.Request) {
	f, err := rt.admin.Forms().Get(r.PathValue("slug"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formDetail{
		formSummary: summarize(f),
		Fields:      f.Fields,
		Defaults:    f.Defaults(),
	})
}

// handleSubmitForm validates the JSON body against the form and runs its
// handler. File results are sent as attachments.
func (rt *router) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	if rt.admin.Config().ReadOnly {
		rt.writeServiceError(w, r, tableadmin.NewAdminError("submit form", tableadmin.ErrReadOnly))
		return
	}
	f, err := rt.admin.Forms().Get(r.PathValue("slug"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}

	data := make(map[string]any)
	if err := decodeBody(r, &data); err != nil {
		rt.bodyError(w, r, err)
		return
	}

	res, err := f.Submit(r.Context(), data)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	rt.config.Logger.Info("form submitted", "form", f.Slug)

	if !res.IsFile() {
		writeJSON(w, http.StatusOK, map[string]string{"message": res.Message})
		return
	}
	contentType := res.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Body); err != nil {
		rt.config.Logger.Warn("write form result", "form", f.Slug, "error", fmt.Sprint(err))
	}
}
