// Package frontend provides the server rendered pages of the admin UI.
//
// Pages are html/template files embedded in the binary. Forms post back to
// the same URL with the CSRF token in a hidden field; successful writes
// redirect and show a flash message on the next page. The language is
// chosen with ?lang= and remembered in a cookie.
package frontend
