package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/crud"
	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/forms"
	"github.com/youssefsiam38/tableadmin/i18n"
	"github.com/youssefsiam38/tableadmin/media"
)

// Response wraps all API responses.
type Response struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
	Meta  *Meta     `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Pages      int   `json:"pages"`
	HasMore    bool  `json:"has_more,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

// writeJSONWithMeta writes a JSON response with metadata.
func writeJSONWithMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data, Meta: meta})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorDetails(w, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Error: &APIError{Code: code, Message: message, Details: details},
	})
}

// writeServiceError maps err to a status code and writes it. Unexpected
// errors are logged and hidden from the client.
func (rt *router) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		crudErr  *crud.ValidationError
		formErr  *forms.ValidationError
		maxBytes *http.MaxBytesError
	)
	switch {
	case errors.As(err, &crudErr):
		writeErrorDetails(w, http.StatusBadRequest, "validation_error", "invalid values", crudErr.Fields)
	case errors.As(err, &formErr):
		writeErrorDetails(w, http.StatusBadRequest, "validation_error", "invalid values", formErr.Fields)
	case errors.As(err, &maxBytes):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large",
			fmt.Sprintf("request exceeds %s", humanize.IBytes(uint64(maxBytes.Limit))))
	case errors.Is(err, tableadmin.ErrTableNotFound), errors.Is(err, crud.ErrTableNotFound),
		errors.Is(err, crud.ErrNotFound), errors.Is(err, forms.ErrFormNotFound),
		errors.Is(err, tableadmin.ErrActionNotFound), errors.Is(err, i18n.ErrUnknownLanguage),
		errors.Is(err, media.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, tableadmin.ErrReadOnly):
		writeError(w, http.StatusForbidden, "read_only", err.Error())
	case errors.Is(err, tableadmin.ErrRejected), errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrCSRF):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, crud.ErrUnknownColumn), errors.Is(err, crud.ErrInvalidQuery),
		errors.Is(err, forms.ErrInvalidForm), errors.Is(err, tableadmin.ErrMediaNotConfigured),
		errors.Is(err, media.ErrExtensionNotAllowed), errors.Is(err, media.ErrNoExtension),
		errors.Is(err, media.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, media.ErrFileExists), driver.IsConstraintError(err):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case auth.StatusCode(err) != http.StatusInternalServerError:
		writeError(w, auth.StatusCode(err), "unauthorized", err.Error())
	default:
		rt.config.Logger.Error("request failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// authError is passed to the auth middleware.
func (rt *router) authError(w http.ResponseWriter, r *http.Request, err error) {
	switch auth.StatusCode(err) {
	case http.StatusUnauthorized:
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case http.StatusForbidden:
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		rt.writeServiceError(w, r, err)
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// parseInt parses an integer from a query parameter with a default.
func parseInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// Session handlers

func (rt *router) handleMeta(w http.ResponseWriter, r *http.Request) {
	cfg := rt.admin.Config()
	bundle := rt.admin.Translations()
	writeJSON(w, http.StatusOK, map[string]any{
		"site_name":        cfg.SiteName,
		"read_only":        cfg.ReadOnly,
		"languages":        bundle.Languages(),
		"default_language": bundle.Default(),
		"sidebar_links":    cfg.SidebarLinks,
		"max_upload_size":  cfg.MaxUploadSize,
	})
}

func (rt *router) handleUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.UserFromContext(r.Context()))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (rt *router) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeErrorDetails(w, http.StatusBadRequest, "validation_error", "passwords do not match",
			map[string]string{"confirm_password": "passwords do not match"})
		return
	}

	u := auth.UserFromContext(r.Context())
	svc := rt.admin.Auth()
	err := svc.ChangePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorDetails(w, http.StatusBadRequest, "validation_error", "current password is wrong",
			map[string]string{"current_password": "incorrect password"})
		return
	case errors.Is(err, auth.ErrWeakPassword):
		writeErrorDetails(w, http.StatusBadRequest, "validation_error", err.Error(),
			map[string]string{"new_password": err.Error()})
		return
	case err != nil:
		rt.writeServiceError(w, r, err)
		return
	}

	// Every session of the user is gone, including this one.
	svc.ClearSessionCookie(w)
	rt.config.Logger.Info("password changed", "user", u.Username)
	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}

func (rt *router) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": rt.admin.Auth().CSRFToken(w, r)})
}

// Translation handlers

func (rt *router) handleListTranslations(w http.ResponseWriter, r *http.Request) {
	bundle := rt.admin.Translations()
	writeJSON(w, http.StatusOK, map[string]any{
		"translations":     bundle.Languages(),
		"default_language": bundle.Default(),
	})
}

func (rt *router) handleGetTranslation(w http.ResponseWriter, r *http.Request) {
	catalog, err := rt.admin.Translations().Get(r.PathValue("code"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}
