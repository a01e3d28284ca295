package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

type userContextKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey{}).(*User)
	return u
}

// AuthenticateRequest authenticates r by bearer token or session cookie.
// bearer reports which one was used.
func (s *Service) AuthenticateRequest(r *http.Request) (u *User, bearer bool, err error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return nil, true, ErrInvalidToken
		}
		u, err = s.ValidateToken(r.Context(), strings.TrimSpace(token))
		return u, true, err
	}

	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil {
		return nil, false, ErrUnauthenticated
	}
	u, _, err = s.ValidateSession(r.Context(), c.Value)
	if errors.Is(err, ErrSessionNotFound) {
		err = ErrUnauthenticated
	}
	return u, false, err
}

// Middleware authenticates every request and rejects users without admin
// rights. Cookie authenticated requests with unsafe methods must pass the
// CSRF check. Failures are passed to onError.
func (s *Service) Middleware(onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, bearer, err := s.AuthenticateRequest(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			if !u.CanAccessAdmin() {
				onError(w, r, ErrForbidden)
				return
			}
			if !bearer && !isSafeMethod(r.Method) {
				if err := CheckCSRF(r); err != nil {
					onError(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// SetSessionCookie writes the session cookie for sess.
func (s *Service) SetSessionCookie(w http.ResponseWriter, sess *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sess.Token,
		Path:     s.cfg.CookiePath,
		Expires:  sess.MaxExpiryDate,
		Secure:   s.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie.
func (s *Service) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     s.cfg.CookiePath,
		MaxAge:   -1,
		Secure:   s.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func readCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		r.Body = http.MaxBytesReader(nil, r.Body, 1<<16)
		err := json.NewDecoder(r.Body).Decode(&c)
		return c, err
	}
	if err := r.ParseForm(); err != nil {
		return c, err
	}
	c.Username = r.PostFormValue("username")
	c.Password = r.PostFormValue("password")
	return c, nil
}

// CheckLoginRate consumes one login attempt for the client of r.
func (s *Service) CheckLoginRate(r *http.Request) bool {
	return s.limiter.Allow(ClientIP(r, s.cfg.TrustForwardedFor))
}

// ResetLoginRate clears the failed attempts of the client of r. Called
// after a successful login.
func (s *Service) ResetLoginRate(r *http.Request) {
	s.limiter.Reset(ClientIP(r, s.cfg.TrustForwardedFor))
}

// LoginHandler handles POST /auth/login with a JSON or form body holding
// username and password. On success the session cookie is set.
func (s *Service) LoginHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.CheckLoginRate(r) {
			writeJSONError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
		creds, err := readCredentials(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		u, sess, err := s.Login(r.Context(), creds.Username, creds.Password)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		s.ResetLoginRate(r)
		s.SetSessionCookie(w, sess)
		csrf := s.CSRFToken(w, r)
		writeJSON(w, http.StatusOK, map[string]any{
			"user":       u,
			"csrf_token": csrf,
			"expires_at": sess.ExpiryDate,
		})
	})
}

// LogoutHandler handles POST /auth/logout.
func (s *Service) LogoutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(s.cfg.CookieName)
		if err == nil && c.Value != "" {
			if err := CheckCSRF(r); err != nil {
				writeAuthError(w, err)
				return
			}
			if err := s.DeleteSession(r.Context(), c.Value); err != nil {
				s.log.Error("failed to delete session", "error", err)
				writeJSONError(w, http.StatusInternalServerError, "logout failed")
				return
			}
		}
		s.ClearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
	})
}

// TokenHandler handles POST /auth/token, exchanging credentials for a
// bearer token.
func (s *Service) TokenHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil {
			writeJSONError(w, http.StatusNotFound, "bearer tokens are disabled")
			return
		}
		if !s.CheckLoginRate(r) {
			writeJSONError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
		creds, err := readCredentials(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		u, err := s.Authenticate(r.Context(), creds.Username, creds.Password)
		if err == nil && !u.CanAccessAdmin() {
			err = ErrForbidden
		}
		if err != nil {
			writeAuthError(w, err)
			return
		}
		s.ResetLoginRate(r)
		token, expires, err := s.tokens.Issue(u)
		if err != nil {
			s.log.Error("failed to issue token", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"token_type": "Bearer",
			"expires_at": expires.UTC().Format(time.RFC3339),
		})
	})
}

// StatusCode maps an auth error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrCSRF):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidToken), errors.Is(err, ErrSessionNotFound):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSONError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}
