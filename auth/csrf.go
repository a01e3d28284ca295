package auth

import (
	"crypto/subtle"
	"net/http"
)

// CSRF cookie, header and form field names.
const (
	CSRFCookieName = "csrftoken"
	CSRFHeaderName = "X-CSRFToken"
	CSRFFormField  = "csrftoken"
)

// CSRFToken returns the CSRF token of the request, setting a new cookie
// when the request has none.
func (s *Service) CSRFToken(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CSRFCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	token, err := newToken()
	if err != nil {
		s.log.Error("failed to generate csrf token", "error", err)
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     s.cfg.CookiePath,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	// Later reads in the same request see the new token.
	r.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	return token
}

// CheckCSRF verifies that the token sent in the X-CSRFToken header or the
// csrftoken form field matches the CSRF cookie.
func CheckCSRF(r *http.Request) error {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil || c.Value == "" {
		return ErrCSRF
	}
	sent := r.Header.Get(CSRFHeaderName)
	if sent == "" {
		sent = r.PostFormValue(CSRFFormField)
	}
	if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(c.Value)) != 1 {
		return ErrCSRF
	}
	return nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
