package api

import (
	"net/http"

	"github.com/youssefsiam38/tableadmin"
)

// bodyOverhead is allowed on top of the upload size for multipart framing
// and the other form fields.
const bodyOverhead = 1 << 20

// Config holds API router configuration.
type Config struct {
	// BasePath is the URL prefix where the admin is mounted. Used to build
	// the URLs of locally stored media files.
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

// router holds the API router state.
type router struct {
	admin  *tableadmin.Admin
	config *Config
}

// NewRouter creates a new API router. Every endpoint except GET /meta
// requires an authenticated admin user.
func NewRouter(admin *tableadmin.Admin, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = admin.Logger()
	}

	r := &router{
		admin:  admin,
		config: cfg,
	}

	private := http.NewServeMux()

	// Session
	private.HandleFunc("GET /user", r.handleUser)
	private.HandleFunc("POST /change-password", r.handleChangePassword)
	private.HandleFunc("GET /csrftoken", r.handleCSRFToken)

	// Tables
	private.HandleFunc("GET /tables", r.handleListTables)
	private.HandleFunc("GET /tables/grouped", r.handleGroupedTables)
	private.HandleFunc("GET /tables/{table}", r.handleListRows)
	private.HandleFunc("POST /tables/{table}", r.handleCreateRow)
	private.HandleFunc("DELETE /tables/{table}", r.handleDeleteRows)
	private.HandleFunc("GET /tables/{table}/schema", r.handleTableSchema)
	private.HandleFunc("GET /tables/{table}/ids", r.handleIDs)
	private.HandleFunc("GET /tables/{table}/count", r.handleCount)
	private.HandleFunc("GET /tables/{table}/new", r.handleNewRow)
	private.HandleFunc("GET /tables/{table}/references", r.handleReferences)
	private.HandleFunc("GET /tables/{table}/export.csv", r.handleExportCSV)
	private.HandleFunc("GET /tables/{table}/actions", r.handleListActions)
	private.HandleFunc("POST /tables/{table}/actions/{name}", r.handleRunAction)
	private.HandleFunc("GET /tables/{table}/{id}", r.handleGetRow)
	private.HandleFunc("PATCH /tables/{table}/{id}", r.handleUpdateRow)
	private.HandleFunc("DELETE /tables/{table}/{id}", r.handleDeleteRow)
	private.HandleFunc("GET /tables/{table}/{id}/delete-preview", r.handleDeletePreview)

	// Media
	private.HandleFunc("POST /media", r.handleUpload)
	private.HandleFunc("POST /media/url", r.handleMediaURL)

	// Forms
	private.HandleFunc("GET /forms", r.handleListForms)
	private.HandleFunc("GET /forms/{slug}", r.handleGetForm)
	private.HandleFunc("POST /forms/{slug}", r.handleSubmitForm)

	// Translations
	private.HandleFunc("GET /translations", r.handleListTranslations)
	private.HandleFunc("GET /translations/{code}", r.handleGetTranslation)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /meta", r.handleMeta)
	mux.Handle("/", admin.Auth().Middleware(r.authError)(private))

	return withMiddleware(mux, cfg, admin.Config().MaxUploadSize+bodyOverhead)
}

// withMiddleware wraps the handler with common middleware.
func withMiddleware(handler http.Handler, cfg *Config, maxBody int64) http.Handler {
	// Bound request bodies
	handler = limitBody(handler, maxBody)
	// Add JSON content type
	handler = jsonMiddleware(handler)
	// Add error recovery
	handler = recoveryMiddleware(handler, cfg.Logger)
	return handler
}

// limitBody caps the size of request bodies.
func limitBody(next http.Handler, n int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware sets JSON content type for all responses.
// Handlers sending files override it.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func recoveryMiddleware(next http.Handler, logger Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if logger != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				}
				http.Error(w, `{"error":{"code":"internal_error","message":"internal server error"}}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
