// Package auth authenticates admin users.
//
// Users and sessions live in two tables created by Migrate. A browser logs
// in with a username and password and receives a session cookie; API clients
// may instead present a signed bearer token issued by TokenIssuer. Only
// active users flagged as admin may use the admin.
//
// Mutating requests authenticated by cookie must carry a CSRF token
// (double-submit cookie), and login attempts are rate limited per client.
package auth
