package ui

import (
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/media"
	"github.com/youssefsiam38/tableadmin/ui/api"
	"github.com/youssefsiam38/tableadmin/ui/frontend"
)

// UIHandler returns an http.Handler serving the whole admin: the server
// rendered pages, the JSON API under /api, the auth endpoints under /auth
// and uploaded files under /media.
//
// Usage:
//
//	http.Handle("/admin/", http.StripPrefix("/admin", ui.UIHandler(admin, &ui.Config{BasePath: "/admin"})))
func UIHandler(admin *tableadmin.Admin, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.applyDefaults()
	}

	// Validate configuration (panic on invalid config as this is a programmer error)
	if err := cfg.validate(); err != nil {
		panic("ui: invalid configuration: " + err.Error())
	}

	var logger Logger = admin.Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger
	}
	svc := admin.Auth()

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", api.NewRouter(admin, &api.Config{
		BasePath: cfg.BasePath,
		Logger:   logger,
	})))

	mux.Handle("POST /auth/login", svc.LoginHandler())
	mux.Handle("POST /auth/logout", svc.LogoutHandler())
	mux.Handle("POST /auth/token", svc.TokenHandler())

	mux.Handle("GET /media/{table}/{column}/{key}", svc.Middleware(mediaError)(&mediaHandler{admin: admin, logger: logger}))

	mux.Handle("/", frontend.NewRouter(admin, &frontend.Config{
		BasePath: cfg.BasePath,
		Logger:   logger,
	}))

	return mux
}

func mediaError(w http.ResponseWriter, r *http.Request, err error) {
	http.Error(w, http.StatusText(auth.StatusCode(err)), auth.StatusCode(err))
}

// mediaHandler serves the files of a media column to signed in users.
type mediaHandler struct {
	admin  *tableadmin.Admin
	logger Logger
}

func (h *mediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table, column, key := r.PathValue("table"), r.PathValue("column"), r.PathValue("key")
	t, err := h.admin.Table(table)
	if err == nil {
		err = t.Validate(r.Context(), tableadmin.OpGet)
	}
	if err != nil {
		http.NotFound(w, r)
		return
	}
	storage, err := h.admin.MediaStorage(table, column)
	if err != nil || media.ValidateKey(key) != nil {
		http.NotFound(w, r)
		return
	}

	if local, ok := storage.(*media.LocalStorage); ok {
		local.ServeHTTP(w, r)
		return
	}

	f, err := storage.GetFile(r.Context(), key)
	if err != nil {
		h.logger.Warn("open media file", "table", table, "column", column, "key", key, "error", err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("send media file", "key", key, "error", err)
	}
}
