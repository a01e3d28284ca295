package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFilePermissions is the mode of files written by LocalStorage.
const DefaultFilePermissions fs.FileMode = 0o600

// LocalConfig configures a LocalStorage.
type LocalConfig struct {
	Options

	// MediaPath is the directory files are written to. Created if missing.
	MediaPath string

	// MediaURL is the URL prefix under which the admin serves the files,
	// used when GenerateFileURL gets an empty root URL.
	MediaURL string

	// FilePermissions of written files. Defaults to 0600.
	FilePermissions fs.FileMode
}

// LocalStorage stores files in a directory on local disk.
type LocalStorage struct {
	base
	path     string
	mediaURL string
	perm     fs.FileMode
}

// NewLocalStorage creates the media directory if needed and returns a storage.
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	b, err := newBase(cfg.Options)
	if err != nil {
		return nil, err
	}
	if cfg.MediaPath == "" {
		return nil, fmt.Errorf("%w: media path is required", ErrInvalidConfig)
	}
	path, err := filepath.Abs(cfg.MediaPath)
	if err != nil {
		return nil, fmt.Errorf("media path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create media path: %w", err)
	}
	perm := cfg.FilePermissions
	if perm == 0 {
		perm = DefaultFilePermissions
	}
	return &LocalStorage{base: b, path: path, mediaURL: cfg.MediaURL, perm: perm}, nil
}

// Path returns the media directory.
func (s *LocalStorage) Path() string {
	return s.path
}

func (s *LocalStorage) filePath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	p := filepath.Join(s.path, key)
	if filepath.Dir(p) != s.path {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return p, nil
}

// StoreFile writes r to a new file. Existing files are never overwritten.
func (s *LocalStorage) StoreFile(ctx context.Context, fileName string, r io.Reader) (string, error) {
	key, err := s.GenerateFileKey(fileName)
	if err != nil {
		return "", err
	}
	p, err := s.filePath(key)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrFileExists, key)
		}
		return "", fmt.Errorf("store %s: %w", key, err)
	}

	_, err = io.Copy(f, readerWithContext(ctx, r))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(p)
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	// The umask may have narrowed the requested mode.
	if err := os.Chmod(p, s.perm); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return key, nil
}

// GenerateFileURL joins the root URL (or the configured media URL) and the key.
func (s *LocalStorage) GenerateFileURL(ctx context.Context, key, rootURL string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if rootURL == "" {
		rootURL = s.mediaURL
	}
	return strings.TrimSuffix(rootURL, "/") + "/" + url.PathEscape(key), nil
}

// GetFile opens the file stored under key.
func (s *LocalStorage) GetFile(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.filePath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
	}
	return f, err
}

// DeleteFile removes the file stored under key.
func (s *LocalStorage) DeleteFile(ctx context.Context, key string) error {
	p, err := s.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return err
	}
	return nil
}

// BulkDeleteFiles removes each key, ignoring files that are already gone.
func (s *LocalStorage) BulkDeleteFiles(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.DeleteFile(ctx, key); err != nil && !errors.Is(err, ErrFileNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetFileKeys lists the regular files in the media directory.
func (s *LocalStorage) GetFileKeys(ctx context.Context) ([]string, error) {
	files, err := s.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	return fileKeys(files), nil
}

// ListFiles lists the regular files in the media directory.
func (s *LocalStorage) ListFiles(ctx context.Context) ([]FileInfo, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, err
	}
	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, FileInfo{Key: e.Name(), ModTime: info.ModTime()})
	}
	return files, nil
}

// Location returns the media directory as a file URL.
func (s *LocalStorage) Location() string {
	return "file://" + filepath.ToSlash(s.path)
}

// ServeHTTP serves the file named by the last element of the request path.
func (s *LocalStorage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		key = key[i+1:]
	}
	p, err := s.filePath(key)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// Uploaded SVG and HTML must not run scripts in the admin origin.
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	http.ServeContent(w, r, key, info.ModTime(), f)
}

// ctxReader stops reading once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Storage = (*LocalStorage)(nil)
