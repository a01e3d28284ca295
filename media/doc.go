// Package media stores files uploaded through the admin.
//
// A Storage is bound to one table column. The column holds file keys, and
// the storage maps keys to file contents on local disk (LocalStorage) or in
// an S3 compatible bucket (S3Storage).
//
// File keys are generated from the uploaded file name: the extension is
// checked against an allow list, disallowed characters are removed from the
// name, the name is truncated, and a UUID is appended so keys never collide:
//
//	poster.png -> poster-0b0a5bd1-3c2a-4cdb-8e36-0e1f5f7c3c0d.png
package media
