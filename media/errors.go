package media

import "errors"

// Media package errors.
var (
	// ErrNoExtension indicates a file name without an extension when
	// extensions are restricted.
	ErrNoExtension = errors.New("media: file has no extension")

	// ErrExtensionNotAllowed indicates a file type outside the allow list.
	ErrExtensionNotAllowed = errors.New("media: file type not allowed")

	// ErrInvalidKey indicates a file key that could escape the storage root.
	ErrInvalidKey = errors.New("media: invalid file key")

	// ErrFileExists indicates that a file with the same key is already stored.
	ErrFileExists = errors.New("media: file already exists")

	// ErrFileNotFound indicates the key is not present in the storage.
	ErrFileNotFound = errors.New("media: file not found")

	// ErrColumnType indicates a column that cannot hold file keys.
	ErrColumnType = errors.New("media: column type cannot store file keys")

	// ErrInvalidConfig indicates invalid storage configuration.
	ErrInvalidConfig = errors.New("media: invalid configuration")
)
