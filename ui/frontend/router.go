package frontend

import (
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/i18n"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// bodyOverhead is allowed on top of the upload size for the other fields
// of a multipart form.
const bodyOverhead = 1 << 20

// Config holds frontend router configuration.
type Config struct {
	// BasePath is the URL prefix where the UI is mounted.
	// All navigation links will be prefixed with this path.
	BasePath string

	// Logger for structured logging.
	Logger Logger
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// router holds the frontend router state.
type router struct {
	admin    *tableadmin.Admin
	config   *Config
	renderer *renderer
}

// NewRouter creates the server rendered admin pages. Everything except the
// login page and static assets requires an admin user.
func NewRouter(admin *tableadmin.Admin, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = admin.Logger()
	}

	r := &router{
		admin:    admin,
		config:   cfg,
		renderer: newRenderer(admin, cfg),
	}

	private := http.NewServeMux()

	// Tables
	private.HandleFunc("GET /{$}", r.handleIndex)
	private.HandleFunc("GET /tables/{table}", r.handleList)
	private.HandleFunc("POST /tables/{table}/bulk", r.handleBulk)
	private.HandleFunc("GET /tables/{table}/new", r.handleNew)
	private.HandleFunc("POST /tables/{table}/new", r.handleCreate)
	private.HandleFunc("GET /tables/{table}/{id}", r.handleEdit)
	private.HandleFunc("POST /tables/{table}/{id}", r.handleUpdate)
	private.HandleFunc("GET /tables/{table}/{id}/delete", r.handleDeleteConfirm)
	private.HandleFunc("POST /tables/{table}/{id}/delete", r.handleDelete)

	// Forms
	private.HandleFunc("GET /forms/{slug}", r.handleForm)
	private.HandleFunc("POST /forms/{slug}", r.handleSubmitForm)

	// Account
	private.HandleFunc("GET /change-password", r.handlePasswordPage)
	private.HandleFunc("POST /change-password", r.handleChangePassword)

	mux := http.NewServeMux()

	// Static assets
	staticSub, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	mux.HandleFunc("GET /login", r.handleLoginPage)
	mux.HandleFunc("POST /login", r.handleLogin)
	mux.HandleFunc("POST /logout", r.handleLogout)
	mux.Handle("/", admin.Auth().Middleware(r.authError)(private))

	return withFrontendMiddleware(mux, r)
}

// withFrontendMiddleware wraps the handler with frontend-specific middleware.
func withFrontendMiddleware(handler http.Handler, r *router) http.Handler {
	handler = limitBody(handler, r.admin.Config().MaxUploadSize+bodyOverhead)
	handler = languageMiddleware(handler, r.admin.Translations(), r.admin.Auth().Config().CookiePath)
	handler = frontendRecoveryMiddleware(handler, r.config.Logger)
	return handler
}

func limitBody(next http.Handler, n int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		next.ServeHTTP(w, r)
	})
}

type langContextKey struct{}

// languageMiddleware resolves the language of the request and remembers a
// language chosen with ?lang= in a cookie.
func languageMiddleware(next http.Handler, bundle *i18n.Bundle, cookiePath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code, persist := bundle.Resolve(r)
		if persist {
			i18n.SetLanguageCookie(w, code, cookiePath)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), langContextKey{}, code)))
	})
}

// languageFromContext returns the language chosen by languageMiddleware.
func languageFromContext(ctx context.Context) string {
	code, _ := ctx.Value(langContextKey{}).(string)
	return code
}

// frontendRecoveryMiddleware recovers from panics.
func frontendRecoveryMiddleware(next http.Handler, logger Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if logger != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
