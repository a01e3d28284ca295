package frontend

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/forms"
)

type formField struct {
	forms.Field
	Value   string
	Checked bool
	Options []option
	Error   string
}

type formView struct {
	Name        string
	Description string
	Action      string
	Fields      []formField
}

func (rt *router) handleForm(w http.ResponseWriter, r *http.Request) {
	f, err := rt.admin.Forms().Get(r.PathValue("slug"))
	if err != nil {
		rt.handleError(w, r, err)
		return
	}
	values := make(map[string]string)
	for name, v := range f.Defaults() {
		values[name] = fmt.Sprint(v)
	}
	rt.renderForm(w, r, http.StatusOK, f, values, nil)
}

func (rt *router) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	if rt.admin.Config().ReadOnly {
		rt.handleError(w, r, tableadmin.NewAdminError("submit form", tableadmin.ErrReadOnly))
		return
	}
	f, err := rt.admin.Forms().Get(r.PathValue("slug"))
	if err != nil {
		rt.handleError(w, r, err)
		return
	}
	if err := parseForm(r); err != nil {
		rt.handleError(w, r, err)
		return
	}

	data := make(map[string]any, len(f.Fields))
	submitted := make(map[string]string, len(f.Fields))
	for _, field := range f.Fields {
		raw, present := lastValue(r.PostForm, field.Name)
		submitted[field.Name] = raw
		switch {
		case field.Type == forms.Boolean:
			data[field.Name] = raw == "true"
		case present:
			data[field.Name] = raw
		}
	}

	res, err := f.Submit(r.Context(), data)
	var verr *forms.ValidationError
	switch {
	case errors.As(err, &verr):
		rt.renderForm(w, r, http.StatusBadRequest, f, submitted, verr.Fields)
		return
	case err != nil:
		rt.handleError(w, r, err)
		return
	}
	rt.config.Logger.Info("form submitted", "form", f.Slug)

	if res.IsFile() {
		contentType := res.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.FileName}))
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
		_, _ = w.Write(res.Body)
		return
	}

	msg := res.Message
	if msg == "" {
		msg = rt.t(r, "form.done")
	}
	rt.renderer.setFlash(w, "success", msg)
	http.Redirect(w, r, rt.path("forms", f.Slug), http.StatusSeeOther)
}

func (rt *router) renderForm(w http.ResponseWriter, r *http.Request, status int, f *forms.Form, values, errs map[string]string) {
	view := formView{
		Name:        f.Name,
		Description: f.Description,
		Action:      rt.path("forms", f.Slug),
	}
	for _, field := range f.Fields {
		ff := formField{Field: field, Value: values[field.Name], Error: errs[field.Name]}
		if field.Type == forms.Boolean {
			ff.Checked = ff.Value == "true"
		}
		if field.Type == forms.Choice {
			if !field.Required {
				ff.Options = append(ff.Options, option{Label: rt.t(r, "common.none")})
			}
			for _, c := range field.Choices {
				ff.Options = append(ff.Options, option{Value: c.Value, Label: c.Label, Selected: c.Value == ff.Value})
			}
		}
		view.Fields = append(view.Fields, ff)
	}
	rt.page(w, r, status, "form.html", f.Name, view)
}

// Password

type passwordView struct {
	Errors map[string]string
}

func (rt *router) handlePasswordPage(w http.ResponseWriter, r *http.Request) {
	rt.page(w, r, http.StatusOK, "password.html", rt.t(r, "nav.change_password"), passwordView{})
}

func (rt *router) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	current := r.PostFormValue("current_password")
	password := r.PostFormValue("new_password")
	if password != r.PostFormValue("confirm_password") {
		rt.passwordError(w, r, "confirm_password", rt.t(r, "password.mismatch"))
		return
	}

	svc := rt.admin.Auth()
	u := auth.UserFromContext(r.Context())
	err := svc.ChangePassword(r.Context(), u.ID, current, password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		rt.passwordError(w, r, "current_password", rt.t(r, "login.failed"))
		return
	case errors.Is(err, auth.ErrWeakPassword):
		rt.passwordError(w, r, "new_password", err.Error())
		return
	case err != nil:
		rt.handleError(w, r, err)
		return
	}

	// Every session of the user is gone, including this one.
	svc.ClearSessionCookie(w)
	rt.config.Logger.Info("password changed", "user", u.Username)
	rt.renderer.setFlash(w, "success", rt.t(r, "password.changed"))
	http.Redirect(w, r, rt.path("login"), http.StatusSeeOther)
}

func (rt *router) passwordError(w http.ResponseWriter, r *http.Request, field, msg string) {
	rt.page(w, r, http.StatusBadRequest, "password.html", rt.t(r, "nav.change_password"),
		passwordView{Errors: map[string]string{field: msg}})
}
