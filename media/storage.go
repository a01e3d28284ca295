package media

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/youssefsiam38/tableadmin/schema"
)

// DefaultAllowedExtensions are the file types accepted when none are configured.
var DefaultAllowedExtensions = []string{
	"avif", "csv", "doc", "docx", "gif", "jpeg", "jpg", "json", "md", "mov",
	"mp3", "mp4", "odp", "ods", "odt", "ogg", "pdf", "png", "pptx", "rtf",
	"svg", "tif", "tiff", "txt", "wav", "webm", "webp", "xls", "xlsx",
}

// DefaultAllowedCharacters are the characters kept in file names.
const DefaultAllowedCharacters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 -_.()"

// MaxStemLength is the maximum number of characters kept from the original
// file name (without extension) when generating a key.
const MaxStemLength = 50

// Storage stores the files referenced by one table column.
type Storage interface {
	// Table returns the table whose column holds the file keys.
	Table() string

	// Column returns the column holding the file keys.
	Column() string

	// AllowedExtensions returns the accepted file extensions.
	// An empty list accepts every extension.
	AllowedExtensions() []string

	// StoreFile stores the contents of r under a key generated from fileName
	// and returns the key.
	StoreFile(ctx context.Context, fileName string, r io.Reader) (string, error)

	// GenerateFileURL returns a URL from which the file can be fetched.
	// rootURL is where the admin serves local files; remote storages ignore it.
	GenerateFileURL(ctx context.Context, key, rootURL string) (string, error)

	// GetFile opens the stored file.
	GetFile(ctx context.Context, key string) (io.ReadCloser, error)

	// DeleteFile removes one file.
	DeleteFile(ctx context.Context, key string) error

	// BulkDeleteFiles removes several files.
	BulkDeleteFiles(ctx context.Context, keys []string) error

	// GetFileKeys lists every key present in the storage.
	GetFileKeys(ctx context.Context) ([]string, error)

	// ListFiles lists every file present in the storage with its
	// modification time.
	ListFiles(ctx context.Context) ([]FileInfo, error)

	// Location identifies where files are kept. Storages with the same
	// location see each other's files.
	Location() string
}

// FileInfo describes a stored file.
type FileInfo struct {
	Key     string
	ModTime time.Time
}

func fileKeys(files []FileInfo) []string {
	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = f.Key
	}
	return keys
}

// Options are shared by all storages.
type Options struct {
	// Table and Column identify the column holding file keys. Required.
	Table  string
	Column string

	// AllowedExtensions restricts accepted file types (case-insensitive).
	// Nil uses DefaultAllowedExtensions; an empty non-nil slice allows all.
	AllowedExtensions []string

	// AllowedCharacters are kept in file names, others are removed.
	// Empty uses DefaultAllowedCharacters.
	AllowedCharacters string
}

// base implements key generation shared by the storages.
type base struct {
	table      string
	column     string
	extensions []string
	characters string
}

func newBase(opts Options) (base, error) {
	if opts.Table == "" || opts.Column == "" {
		return base{}, fmt.Errorf("%w: table and column are required", ErrInvalidConfig)
	}
	b := base{
		table:      opts.Table,
		column:     opts.Column,
		characters: opts.AllowedCharacters,
	}
	src := opts.AllowedExtensions
	if src == nil {
		src = DefaultAllowedExtensions
	}
	b.extensions = make([]string, len(src))
	for i, ext := range src {
		b.extensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	if b.characters == "" {
		b.characters = DefaultAllowedCharacters
	}
	return b, nil
}

func (b base) Table() string               { return b.table }
func (b base) Column() string              { return b.column }
func (b base) AllowedExtensions() []string { return b.extensions }

// GenerateFileKey builds a unique, sanitized key from a file name.
func (b base) GenerateFileKey(fileName string) (string, error) {
	return generateFileKey(fileName, b.extensions, b.characters, uuid.NewString())
}

func generateFileKey(fileName string, extensions []string, characters, id string) (string, error) {
	// Only the last path element of the client supplied name is meaningful.
	if i := strings.LastIndexAny(fileName, `/\`); i >= 0 {
		fileName = fileName[i+1:]
	}

	stem, ext := fileName, ""
	if i := strings.LastIndexByte(fileName, '.'); i >= 0 {
		stem, ext = fileName[:i], strings.ToLower(fileName[i+1:])
	}

	if len(extensions) > 0 {
		if ext == "" {
			return "", ErrNoExtension
		}
		if !slices.Contains(extensions, ext) {
			return "", fmt.Errorf("%w: %s", ErrExtensionNotAllowed, ext)
		}
	} else {
		ext = sanitize(ext, characters)
		ext = strings.Trim(ext, ". ")
	}

	stem = strings.Trim(sanitize(stem, characters), ". ")
	if utf8.RuneCountInString(stem) > MaxStemLength {
		stem = strings.TrimRight(string([]rune(stem)[:MaxStemLength]), ". ")
	}

	key := id
	if stem != "" {
		key = stem + "-" + id
	}
	if ext != "" {
		key += "." + ext
	}
	return key, nil
}

// sanitize drops every rune of s not present in allowed.
func sanitize(s, allowed string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(allowed, r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ValidateKey rejects keys that are empty or contain path elements.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ValidateColumn checks that a column can hold file keys.
// Text columns hold one key, arrays of text hold several.
func ValidateColumn(col *schema.Column) error {
	if col == nil {
		return fmt.Errorf("%w: column does not exist", ErrColumnType)
	}
	if col.Type.IsText() {
		return nil
	}
	if col.Type == schema.Array && (col.ElementType.IsText() || col.ElementType == "") {
		return nil
	}
	return fmt.Errorf("%w: %s is %s", ErrColumnType, col.Name, col.Type)
}

// DeleteUnused removes files from s whose keys are not in inUse and returns
// the keys considered unused. Files modified within minAge are kept, since
// an upload is stored before the row referring to it is saved. With dryRun
// nothing is deleted.
func DeleteUnused(ctx context.Context, s Storage, inUse []string, minAge time.Duration, dryRun bool) ([]string, error) {
	stored, err := s.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	used := make(map[string]struct{}, len(inUse))
	for _, k := range inUse {
		used[k] = struct{}{}
	}

	cutoff := time.Now().Add(-minAge)
	var unused []string
	for _, f := range stored {
		if _, ok := used[f.Key]; ok {
			continue
		}
		if f.ModTime.After(cutoff) {
			continue
		}
		unused = append(unused, f.Key)
	}
	slices.Sort(unused)

	if dryRun || len(unused) == 0 {
		return unused, nil
	}
	if err := s.BulkDeleteFiles(ctx, unused); err != nil {
		return nil, err
	}
	return unused, nil
}
