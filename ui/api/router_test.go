package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/forms"
	"github.com/youssefsiam38/tableadmin/internal/testutil"
	"github.com/youssefsiam38/tableadmin/media"
)

const testCSRF = "test-csrf-token"

type testServer struct {
	t       *testing.T
	handler http.Handler
	admin   *tableadmin.Admin
	session string
}

func newTestServer(t *testing.T, cfg tableadmin.Config, tables ...*tableadmin.TableConfig) *testServer {
	t.Helper()
	ctx := context.Background()

	db := testutil.NewFixtureDB(t)
	if len(tables) == 0 {
		for _, name := range []string{"director", "studio", "movie", "ticket"} {
			tables = append(tables, &tableadmin.TableConfig{Name: name})
		}
	}
	cfg.Auth.BcryptCost = 4
	admin, err := tableadmin.New(ctx, db.Driver, cfg, tables...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := admin.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := admin.Auth().CreateUser(ctx, auth.User{Username: "admin", Active: true, Admin: true}, "secret-password"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	_, sess, err := admin.Auth().Login(ctx, "admin", "secret-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	return &testServer{
		t:       t,
		handler: NewRouter(admin, &Config{BasePath: "/admin"}),
		admin:   admin,
		session: sess.Token,
	}
}

// do sends an authenticated request with the CSRF token.
func (s *testServer) do(method, target string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("json.Marshal() error = %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)
	return s.serve(req)
}

func (s *testServer) authorize(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: s.session})
	req.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: testCSRF})
	req.Header.Set(auth.CSRFHeaderName, testCSRF)
}

func (s *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type testResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
	Meta  *Meta           `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) testResponse {
	t.Helper()
	var resp testResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	if data != nil && resp.Data != nil {
		if err := json.Unmarshal(resp.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", resp.Data, err)
		}
	}
	return resp
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func TestRouter_Authentication(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{SiteName: "Movies"})

	t.Run("meta is public", func(t *testing.T) {
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/meta", nil))
		wantStatus(t, rec, http.StatusOK)
		var meta map[string]any
		decode(t, rec, &meta)
		if meta["site_name"] != "Movies" {
			t.Errorf("site_name = %v, want Movies", meta["site_name"])
		}
	})

	t.Run("anonymous requests are rejected", func(t *testing.T) {
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/tables", nil))
		wantStatus(t, rec, http.StatusUnauthorized)
	})

	t.Run("writes need the csrf token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/tables/director", strings.NewReader(`{"name":"Sofia Coppola"}`))
		req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: s.session})
		wantStatus(t, s.serve(req), http.StatusForbidden)
	})

	t.Run("user", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/user", nil)
		wantStatus(t, rec, http.StatusOK)
		var u auth.User
		decode(t, rec, &u)
		if u.Username != "admin" {
			t.Errorf("Username = %q, want admin", u.Username)
		}
	})
}

func TestRouter_Tables(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{})

	rec := s.do(http.MethodGet, "/tables", nil)
	wantStatus(t, rec, http.StatusOK)
	var names []string
	decode(t, rec, &names)
	if diff := cmp.Diff([]string{"director", "studio", "movie", "ticket"}, names); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}

	rec = s.do(http.MethodGet, "/tables/nope", nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestRouter_ListRows(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{})

	rec := s.do(http.MethodGet, "/tables/movie?director_id=1&__order=-id", nil)
	wantStatus(t, rec, http.StatusOK)
	var rows []map[string]any
	resp := decode(t, rec, &rows)

	if resp.Meta == nil || resp.Meta.TotalCount != 2 || resp.Meta.Page != 1 {
		t.Fatalf("meta = %+v, want 2 rows on page 1", resp.Meta)
	}
	var got []string
	for _, row := range rows {
		got = append(got, row["name"].(string))
	}
	if diff := cmp.Diff([]string{"The Empire Strikes Back", "Star Wars"}, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	rec = s.do(http.MethodGet, "/tables/movie?bogus=1", nil)
	wantStatus(t, rec, http.StatusBadRequest)

	rec = s.do(http.MethodGet, "/tables/movie/count?won_oscar=true", nil)
	wantStatus(t, rec, http.StatusOK)
	var count map[string]int64
	decode(t, rec, &count)
	if count["count"] != 4 {
		t.Errorf("count = %d, want 4", count["count"])
	}
}

func TestRouter_RowLifecycle(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{})

	rec := s.do(http.MethodPost, "/tables/director", map[string]any{"name": "Sofia Coppola", "gender": "f"})
	wantStatus(t, rec, http.StatusCreated)
	var created map[string]any
	decode(t, rec, &created)
	if created["id"] != float64(4) {
		t.Fatalf("created id = %v, want 4", created["id"])
	}

	rec = s.do(http.MethodPatch, "/tables/director/4", map[string]any{"gender": "x"})
	wantStatus(t, rec, http.StatusOK)

	rec = s.do(http.MethodGet, "/tables/director/4", nil)
	wantStatus(t, rec, http.StatusOK)
	var row map[string]any
	decode(t, rec, &row)
	if row["gender"] != "x" {
		t.Errorf("gender = %v, want x", row["gender"])
	}

	rec = s.do(http.MethodDelete, "/tables/director/4", nil)
	wantStatus(t, rec, http.StatusNoContent)

	rec = s.do(http.MethodGet, "/tables/director/4", nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestRouter_CreateValidation(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{})

	rec := s.do(http.MethodPost, "/tables/director", map[string]any{"gender": "f"})
	wantStatus(t, rec, http.StatusBadRequest)
	resp := decode(t, rec, nil)
	if resp.Error == nil || resp.Error.Code != "validation_error" {
		t.Fatalf("error = %+v, want validation_error", resp.Error)
	}
	fields, _ := resp.Error.Details.(map[string]any)
	if _, ok := fields["name"]; !ok {
		t.Errorf("details = %v, want an entry for name", resp.Error.Details)
	}

	rec = s.do(http.MethodPost, "/tables/studio", map[string]any{"name": "Lucasfilm"})
	wantStatus(t, rec, http.StatusConflict)
}

func TestRouter_DeleteRows(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{})

	rec := s.do(http.MethodGet, "/tables/director/1/delete-preview", nil)
	wantStatus(t, rec, http.StatusOK)
	var impacts []tableadmin.DeleteImpact
	decode(t, rec, &impacts)
	want := []tableadmin.DeleteImpact{
		{Table: "movie", Column: "director_id", OnDelete: "CASCADE", Count: 2},
		{Table: "ticket", Column: "movie_id", OnDelete: "CASCADE", Count: 2},
	}
	if diff := cmp.Diff(want, impacts); diff != "" {
		t.Errorf("delete preview mismatch (-want +got):\n%s", diff)
	}

	rec = s.do(http.MethodDelete, "/tables/ticket?id=1,2&id=3", nil)
	wantStatus(t, rec, http.StatusOK)
	var deleted map[string]int64
	decode(t, rec, &deleted)
	if deleted["deleted"] != 3 {
		t.Errorf("deleted = %d, want 3", deleted["deleted"])
	}

	rec = s.do(http.MethodDelete, "/tables/ticket", nil)
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestRouter_ReadOnly(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{ReadOnly: true})

	rec := s.do(http.MethodGet, "/tables/director/1", nil)
	wantStatus(t, rec, http.StatusOK)

	for _, tt := range []struct{ method, target string }{
		{http.MethodPost, "/tables/director"},
		{http.MethodPatch, "/tables/director/1"},
		{http.MethodDelete, "/tables/director/1"},
		{http.MethodDelete, "/tables/director?id=1"},
	} {
		rec := s.do(tt.method, tt.target, map[string]any{"name": "x"})
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s status = %d, want 403", tt.method, tt.target, rec.Code)
		}
	}
}

func TestRouter_ExportCSV(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{})

	rec := s.do(http.MethodGet, "/tables/director/export.csv?__delimiter=;&__order=id", nil)
	wantStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header and 3 rows:\n%s", len(lines), rec.Body.String())
	}
	if !strings.HasPrefix(lines[1], "1;George Lucas;m") {
		t.Errorf("first row = %q", lines[1])
	}

	rec = s.do(http.MethodGet, "/tables/director/export.csv?__delimiter=ab", nil)
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestRouter_Actions(t *testing.T) {
	var got []any
	s := newTestServer(t, tableadmin.Config{}, &tableadmin.TableConfig{
		Name: "director",
		Actions: []tableadmin.Action{{
			Name: "greet",
			Handler: func(ctx context.Context, ids []any) (string, error) {
				got = ids
				return "hello", nil
			},
		}},
	})

	rec := s.do(http.MethodGet, "/tables/director/actions", nil)
	wantStatus(t, rec, http.StatusOK)

	rec = s.do(http.MethodPost, "/tables/director/actions/greet", map[string]any{"ids": []any{1, "2"}})
	wantStatus(t, rec, http.StatusOK)
	var msg map[string]string
	decode(t, rec, &msg)
	if msg["message"] != "hello" {
		t.Errorf("message = %q, want hello", msg["message"])
	}
	if diff := cmp.Diff([]any{int64(1), int64(2)}, got); diff != "" {
		t.Errorf("action ids mismatch (-want +got):\n%s", diff)
	}

	rec = s.do(http.MethodPost, "/tables/director/actions/missing", map[string]any{"ids": []any{1}})
	wantStatus(t, rec, http.StatusNotFound)
}

func TestRouter_Media(t *testing.T) {
	storage, err := media.NewLocalStorage(media.LocalConfig{
		Options:   media.Options{Table: "director", Column: "photo"},
		MediaPath: filepath.Join(t.TempDir(), "photo"),
	})
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	s := newTestServer(t, tableadmin.Config{}, &tableadmin.TableConfig{
		Name:         "director",
		MediaStorage: []media.Storage{storage},
	})

	upload := func(column, fileName string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		_ = mw.WriteField("table", "director")
		_ = mw.WriteField("column", column)
		fw, _ := mw.CreateFormFile("file", fileName)
		_, _ = fw.Write([]byte("picture"))
		_ = mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/media", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		s.authorize(req)
		return s.serve(req)
	}

	rec := upload("photo", "lucas.png")
	wantStatus(t, rec, http.StatusCreated)
	var stored map[string]string
	decode(t, rec, &stored)
	key := stored["file_key"]
	if !strings.HasSuffix(key, ".png") {
		t.Fatalf("file_key = %q, want a .png key", key)
	}

	rec = s.do(http.MethodPost, "/media/url", map[string]string{"table": "director", "column": "photo", "file_key": key})
	wantStatus(t, rec, http.StatusOK)
	var u map[string]string
	decode(t, rec, &u)
	if want := "/admin/media/director/photo/" + key; u["file_url"] != want {
		t.Errorf("file_url = %q, want %q", u["file_url"], want)
	}

	wantStatus(t, upload("photo", "virus.exe"), http.StatusBadRequest)
	wantStatus(t, upload("name", "lucas.png"), http.StatusBadRequest)
}

func TestRouter_Forms(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{
		Forms: []*forms.Form{
			{
				Name:   "Say Hello",
				Fields: []forms.Field{{Name: "name", Type: forms.Text, Required: true}},
				Handler: func(ctx context.Context, data map[string]any) (*forms.Result, error) {
					return &forms.Result{Message: "hello " + data["name"].(string)}, nil
				},
			},
			{
				Name: "Report",
				Handler: func(ctx context.Context, data map[string]any) (*forms.Result, error) {
					return &forms.Result{FileName: "report.txt", ContentType: "text/plain", Body: []byte("ok")}, nil
				},
			},
		},
	})

	rec := s.do(http.MethodGet, "/forms", nil)
	wantStatus(t, rec, http.StatusOK)
	var list []formSummary
	decode(t, rec, &list)
	if diff := cmp.Diff([]formSummary{{Name: "Say Hello", Slug: "say-hello"}, {Name: "Report", Slug: "report"}}, list); diff != "" {
		t.Errorf("forms mismatch (-want +got):\n%s", diff)
	}

	rec = s.do(http.MethodPost, "/forms/say-hello", map[string]any{"name": "Ada"})
	wantStatus(t, rec, http.StatusOK)
	var msg map[string]string
	decode(t, rec, &msg)
	if msg["message"] != "hello Ada" {
		t.Errorf("message = %q, want hello Ada", msg["message"])
	}

	rec = s.do(http.MethodPost, "/forms/say-hello", map[string]any{})
	wantStatus(t, rec, http.StatusBadRequest)

	rec = s.do(http.MethodPost, "/forms/report", map[string]any{})
	wantStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=report.txt" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/forms/missing", nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestRouter_ChangePassword(t *testing.T) {
	s := newTestServer(t, tableadmin.Config{})

	rec := s.do(http.MethodPost, "/change-password", changePasswordRequest{
		CurrentPassword: "wrong-password",
		NewPassword:     "another-password",
		ConfirmPassword: "another-password",
	})
	wantStatus(t, rec, http.StatusBadRequest)

	rec = s.do(http.MethodPost, "/change-password", changePasswordRequest{
		CurrentPassword: "secret-password",
		NewPassword:     "another-password",
		ConfirmPassword: "another-password",
	})
	wantStatus(t, rec, http.StatusOK)

	// The session was ended.
	rec = s.do(http.MethodGet, "/user", nil)
	wantStatus(t, rec, http.StatusUnauthorized)
}
