// Package api provides the JSON API of the admin UI.
//
// Every endpoint except GET /meta requires an admin user, authenticated by
// session cookie or bearer token. Cookie authenticated requests that modify
// data must send the CSRF token in the X-CSRFToken header.
//
// # Endpoints
//
// Session:
//   - GET /meta - Site name, languages and limits (public)
//   - GET /user - Authenticated user
//   - POST /change-password - Change the password, ending all sessions
//   - GET /csrftoken - CSRF token, set as a cookie when missing
//
// Tables:
//   - GET /tables - Table names
//   - GET /tables/grouped - Table names by menu group
//   - GET /tables/{table} - List rows (filtered, ordered, paginated)
//   - POST /tables/{table} - Create a row
//   - DELETE /tables/{table}?id=1,2 - Delete rows
//   - GET /tables/{table}/schema - Columns and presentation
//   - GET /tables/{table}/ids - Primary keys with their readable value
//   - GET /tables/{table}/count - Count rows matching filters
//   - GET /tables/{table}/new - Defaults of a new row
//   - GET /tables/{table}/references - Foreign keys pointing at the table
//   - GET /tables/{table}/export.csv - CSV export
//   - GET /tables/{table}/actions - Custom actions
//   - POST /tables/{table}/actions/{name} - Run an action on rows
//   - GET /tables/{table}/{id} - Row detail
//   - PATCH /tables/{table}/{id} - Update a row
//   - DELETE /tables/{table}/{id} - Delete a row
//   - GET /tables/{table}/{id}/delete-preview - Rows a delete would affect
//
// Media:
//   - POST /media - Upload a file (multipart: table, column, file)
//   - POST /media/url - URL of a stored file
//
// Forms:
//   - GET /forms - List forms
//   - GET /forms/{slug} - Form fields and defaults
//   - POST /forms/{slug} - Submit a form
//
// Translations:
//   - GET /translations - Available languages
//   - GET /translations/{code} - Messages of a language
package api
