package frontend

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/forms"
	"github.com/youssefsiam38/tableadmin/i18n"
)

const flashCookieName = "tableadmin_flash"

// renderer handles template rendering.
type renderer struct {
	base   *template.Template // Base template with layout and nav
	admin  *tableadmin.Admin
	config *Config
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func newRenderer(admin *tableadmin.Admin, cfg *Config) *renderer {
	r := &renderer{
		admin:  admin,
		config: cfg,
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
	r.base = template.Must(template.New("").Funcs(r.funcs()).ParseFS(templatesFS, "templates/base.html"))
	return r
}

// PageData contains common data for all pages.
type PageData struct {
	Title        string
	SiteName     string
	BasePath     string
	CurrentPath  string
	Lang         string
	Languages    []i18n.Language
	User         *auth.User
	CSRFToken    string
	ReadOnly     bool
	Nav          []navGroup
	Forms        []*forms.Form
	SidebarLinks []tableadmin.SidebarLink
	Flash        *FlashMessage
	Data         any
}

// FlashMessage is shown once on the next rendered page.
type FlashMessage struct {
	Type    string // "success", "error"
	Message string
}

type navGroup struct {
	Name   string
	Tables []navTable
}

type navTable struct {
	Name  string
	Label string
}

// render executes the page template name inside the layout. The page is
// parsed into a clone of the base template so "content" blocks of
// different pages do not collide.
func (r *renderer) render(w http.ResponseWriter, req *http.Request, status int, name, title string, data any) error {
	lang := languageFromContext(req.Context())
	cfg := r.admin.Config()
	page := PageData{
		Title:        title,
		SiteName:     cfg.SiteName,
		BasePath:     r.config.BasePath,
		CurrentPath:  req.URL.Path,
		Lang:         lang,
		Languages:    r.admin.Translations().Languages(),
		User:         auth.UserFromContext(req.Context()),
		CSRFToken:    r.admin.Auth().CSRFToken(w, req),
		ReadOnly:     cfg.ReadOnly,
		SidebarLinks: cfg.SidebarLinks,
		Flash:        r.popFlash(w, req),
		Data:         data,
	}
	if page.User != nil {
		page.Nav = r.nav()
		page.Forms = r.admin.Forms().Forms()
	}

	tmpl, err := r.base.Clone()
	if err != nil {
		return fmt.Errorf("clone template: %w", err)
	}
	bundle := r.admin.Translations()
	tmpl.Funcs(template.FuncMap{
		"t": func(key string) string { return bundle.Translate(lang, key) },
	})
	if _, err := tmpl.ParseFS(templatesFS, "templates/"+name); err != nil {
		return fmt.Errorf("parse page template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", page); err != nil {
		return fmt.Errorf("execute template %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}

// nav groups the registered tables by menu group. Ungrouped tables come first.
func (r *renderer) nav() []navGroup {
	grouped := r.admin.Registry().Grouped()
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := grouped[""]; ok {
		names = append([]string{""}, names...)
	}

	out := make([]navGroup, 0, len(names))
	for _, name := range names {
		g := navGroup{Name: name}
		for _, table := range grouped[name] {
			label := table
			if t, err := r.admin.Table(table); err == nil {
				label = t.Table.Label()
			}
			g.Tables = append(g.Tables, navTable{Name: table, Label: label})
		}
		out = append(out, g)
	}
	return out
}

// setFlash stores a message for the next page.
func (r *renderer) setFlash(w http.ResponseWriter, kind, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(kind + ":" + msg),
		Path:     r.admin.Auth().Config().CookiePath,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (r *renderer) popFlash(w http.ResponseWriter, req *http.Request) *FlashMessage {
	c, err := req.Cookie(flashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Path:     r.admin.Auth().Config().CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	v, err := url.QueryUnescape(c.Value)
	if err != nil {
		return nil
	}
	kind, msg, ok := strings.Cut(v, ":")
	if !ok {
		return nil
	}
	return &FlashMessage{Type: kind, Message: msg}
}

// templateFuncs returns custom template functions. "t" is replaced per
// request with the translator of the request language.
func (r *renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"t":        func(key string) string { return key },
		"markdown": r.markdown,
		"bytes":    formatBytes,
		"timeAgo":  formatTimeAgo,
		"comma":    humanize.Comma,
		"truncate": truncate,
		"add":      add,
		"sub":      sub,
		"dict":     dictFunc,
	}
}

// markdown renders s to sanitized HTML.
func (r *renderer) markdown(s string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

// Template helper functions

func formatBytes(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatTimeAgo(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.Time(*t)
}

func truncate(n int, s string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

func add(a, b int) int {
	return a + b
}

func sub(a, b int) int {
	return a - b
}

// dictFunc creates a map from key-value pairs for use in templates.
// Usage: {{template "foo" (dict "key1" val1 "key2" val2)}}
func dictFunc(values ...any) map[string]any {
	if len(values)%2 != 0 {
		return nil
	}
	dict := make(map[string]any, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		dict[key] = values[i+1]
	}
	return dict
}
