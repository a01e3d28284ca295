package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{
		Options:   Options{Table: "movie", Column: "poster"},
		MediaPath: filepath.Join(t.TempDir(), "posters"),
		MediaURL:  "/media/movie/poster",
	})
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return s
}

func TestLocalStorage_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t)

	key, err := s.StoreFile(ctx, "star wars.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}
	if !strings.HasPrefix(key, "star wars-") || !strings.HasSuffix(key, ".png") {
		t.Errorf("key = %q", key)
	}

	info, err := os.Stat(filepath.Join(s.Path(), key))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != DefaultFilePermissions {
		t.Errorf("file mode = %v, want %v", perm, DefaultFilePermissions)
	}

	rc, err := s.GetFile(ctx, key)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "png-bytes" {
		t.Errorf("GetFile() = %q", body)
	}

	u, err := s.GenerateFileURL(ctx, key, "")
	if err != nil {
		t.Fatalf("GenerateFileURL() error = %v", err)
	}
	if want := "/media/movie/poster/star%20wars-"; !strings.HasPrefix(u, want) {
		t.Errorf("GenerateFileURL() = %q, want prefix %q", u, want)
	}

	keys, err := s.GetFileKeys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != key {
		t.Errorf("GetFileKeys() = %v, %v", keys, err)
	}

	if err := s.DeleteFile(ctx, key); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if _, err := s.GetFile(ctx, key); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("GetFile() after delete error = %v, want ErrFileNotFound", err)
	}
	if err := s.DeleteFile(ctx, key); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("DeleteFile() twice error = %v, want ErrFileNotFound", err)
	}
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s := newTestLocal(t)

	if _, err := s.GetFile(ctx, "../secret.txt"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("GetFile() error = %v, want ErrInvalidKey", err)
	}
	if err := s.DeleteFile(ctx, ".."); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("DeleteFile() error = %v, want ErrInvalidKey", err)
	}
}

func TestLocalStorage_RejectsBadExtension(t *testing.T) {
	s := newTestLocal(t)
	if _, err := s.StoreFile(context.Background(), "run.sh", strings.NewReader("#!")); !errors.Is(err, ErrExtensionNotAllowed) {
		t.Errorf("StoreFile() error = %v, want ErrExtensionNotAllowed", err)
	}
}

func TestLocalStorage_ServeHTTP(t *testing.T) {
	s := newTestLocal(t)
	key, err := s.StoreFile(context.Background(), "notes.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/movie/poster/"+key, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/movie/poster/missing.txt", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
