package frontend

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/crud"
	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/forms"
	"github.com/youssefsiam38/tableadmin/media"
)

// multipartMemory is kept in memory while parsing forms, the rest spills
// to temporary files.
const multipartMemory = 8 << 20

// path joins escaped path elements under the base path.
func (rt *router) path(parts ...string) string {
	var b strings.Builder
	b.WriteString(rt.config.BasePath)
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	if len(parts) == 0 {
		b.WriteByte('/')
	}
	return b.String()
}

// t translates key into the language of the request.
func (rt *router) t(r *http.Request, key string) string {
	return rt.admin.Translations().Translate(languageFromContext(r.Context()), key)
}

// page renders a full page, falling back to a plain error when the
// template fails.
func (rt *router) page(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := rt.renderer.render(w, r, status, name, title, data); err != nil {
		rt.config.Logger.Error("render failed", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// serviceStatus maps an error to an HTTP status.
func serviceStatus(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, tableadmin.ErrTableNotFound), errors.Is(err, crud.ErrTableNotFound),
		errors.Is(err, crud.ErrNotFound), errors.Is(err, forms.ErrFormNotFound),
		errors.Is(err, tableadmin.ErrActionNotFound), errors.Is(err, media.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, tableadmin.ErrReadOnly), errors.Is(err, tableadmin.ErrRejected),
		errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrCSRF):
		return http.StatusForbidden
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, crud.ErrValidation), errors.Is(err, forms.ErrValidation),
		errors.Is(err, crud.ErrUnknownColumn), errors.Is(err, crud.ErrInvalidQuery),
		errors.Is(err, tableadmin.ErrMediaNotConfigured), errors.Is(err, media.ErrExtensionNotAllowed),
		errors.Is(err, media.ErrNoExtension), errors.Is(err, media.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrFileExists), driver.IsConstraintError(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// handleError renders the error page for err. Unexpected errors are logged
// and their details hidden.
func (rt *router) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := serviceStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		rt.config.Logger.Error("request failed", "error", err, "path", r.URL.Path)
		detail = ""
	}
	rt.renderError(w, r, status, detail)
}

type errorView struct {
	Status  int
	Message string
	Detail  string
}

func (rt *router) renderError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	view := errorView{Status: status, Detail: detail}
	switch {
	case status == http.StatusNotFound:
		view.Message = rt.t(r, "error.not_found")
	case status == http.StatusForbidden:
		view.Message = rt.t(r, "error.forbidden")
	case status >= http.StatusInternalServerError:
		view.Message = rt.t(r, "error.internal")
	}
	rt.page(w, r, status, "error.html", http.StatusText(status), view)
}

// authError is passed to the auth middleware. Anonymous users are sent to
// the login page.
func (rt *router) authError(w http.ResponseWriter, r *http.Request, err error) {
	switch auth.StatusCode(err) {
	case http.StatusUnauthorized:
		target := rt.path("login")
		if r.Method == http.MethodGet {
			target += "?next=" + url.QueryEscape(rt.config.BasePath+r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	case http.StatusForbidden:
		rt.renderError(w, r, http.StatusForbidden, "")
	default:
		rt.handleError(w, r, err)
	}
}

// parseForm parses urlencoded and multipart bodies.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	return err
}

// lastValue returns the last submitted value of key. A checkbox preceded by
// a hidden input submits both.
func lastValue(values url.Values, key string) (string, bool) {
	vals, ok := values[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// safeNext returns next when it points inside the admin.
func (rt *router) safeNext(next string) string {
	prefix := rt.config.BasePath + "/"
	if strings.HasPrefix(next, prefix) && !strings.HasPrefix(next, "//") && !strings.ContainsAny(next, "\\\r\n") {
		return next
	}
	return rt.path()
}

// Session pages

type loginView struct {
	Username string
	Next     string
	Error    string
}

func (rt *router) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if u, _, err := rt.admin.Auth().AuthenticateRequest(r); err == nil && u.CanAccessAdmin() {
		http.Redirect(w, r, rt.safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
		return
	}
	rt.page(w, r, http.StatusOK, "login.html", rt.t(r, "login.title"), loginView{Next: r.URL.Query().Get("next")})
}

func (rt *router) handleLogin(w http.ResponseWriter, r *http.Request) {
	svc := rt.admin.Auth()
	if err := auth.CheckCSRF(r); err != nil {
		rt.renderError(w, r, http.StatusForbidden, err.Error())
		return
	}
	view := loginView{Username: r.PostFormValue("username"), Next: r.PostFormValue("next")}
	if !svc.CheckLoginRate(r) {
		view.Error = rt.t(r, "login.rate_limited")
		rt.page(w, r, http.StatusTooManyRequests, "login.html", rt.t(r, "login.title"), view)
		return
	}

	u, sess, err := svc.Login(r.Context(), view.Username, r.PostFormValue("password"))
	if err == nil && !u.CanAccessAdmin() {
		_ = svc.DeleteSession(r.Context(), sess.Token)
		err = auth.ErrForbidden
	}
	if err != nil {
		if auth.StatusCode(err) == http.StatusInternalServerError {
			rt.handleError(w, r, err)
			return
		}
		view.Error = rt.t(r, "login.failed")
		rt.page(w, r, http.StatusUnauthorized, "login.html", rt.t(r, "login.title"), view)
		return
	}

	svc.ResetLoginRate(r)
	svc.SetSessionCookie(w, sess)
	rt.config.Logger.Info("user logged in", "user", u.Username)
	http.Redirect(w, r, rt.safeNext(view.Next), http.StatusSeeOther)
}

func (rt *router) handleLogout(w http.ResponseWriter, r *http.Request) {
	svc := rt.admin.Auth()
	if c, err := r.Cookie(svc.Config().CookieName); err == nil && c.Value != "" {
		if err := auth.CheckCSRF(r); err != nil {
			rt.renderError(w, r, http.StatusForbidden, err.Error())
			return
		}
		if err := svc.DeleteSession(r.Context(), c.Value); err != nil {
			rt.handleError(w, r, err)
			return
		}
	}
	svc.ClearSessionCookie(w)
	http.Redirect(w, r, rt.path("login"), http.StatusSeeOther)
}

// Index

type indexTable struct {
	Name     string
	Label    string
	HelpText string
	Count    int64
	URL      string
}

type indexGroup struct {
	Name   string
	Tables []indexTable
}

func (rt *router) handleIndex(w http.ResponseWriter, r *http.Request) {
	var groups []indexGroup
	for _, g := range rt.renderer.nav() {
		ig := indexGroup{Name: g.Name}
		for _, nt := range g.Tables {
			it := indexTable{Name: nt.Name, Label: nt.Label, Count: -1, URL: rt.path("tables", nt.Name)}
			if t, err := rt.admin.Table(nt.Name); err == nil {
				it.HelpText = t.Table.HelpText
				if t.Validate(r.Context(), tableadmin.OpList) == nil {
					n, err := rt.admin.CRUD().Count(r.Context(), nt.Name, nil)
					if err != nil {
						rt.config.Logger.Warn("count rows", "table", nt.Name, "error", err)
					} else {
						it.Count = n
					}
				}
			}
			ig.Tables = append(ig.Tables, it)
		}
		groups = append(groups, ig)
	}
	rt.page(w, r, http.StatusOK, "index.html", rt.t(r, "nav.home"), groups)
}
