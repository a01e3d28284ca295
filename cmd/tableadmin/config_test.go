package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/internal/testutil"
	"github.com/youssefsiam38/tableadmin/leadership"
	"github.com/youssefsiam38/tableadmin/media"
)

func TestParseEnv(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    func(e envConfig) string
		wantErr bool
	}{
		{
			name:    "database url required",
			environ: map[string]string{},
			wantErr: true,
		},
		{
			name:    "defaults",
			environ: map[string]string{"TABLEADMIN_DATABASE_URL": "sqlite://movies.db"},
			want: func(e envConfig) string {
				return cmp.Diff(envConfig{
					DatabaseURL:     "sqlite://movies.db",
					DatabaseDriver:  "pgx",
					Addr:            ":8080",
					BasePath:        "/admin",
					ConfigFile:      "tableadmin.yaml",
					MediaPath:       "media",
					CleanupInterval: time.Hour,
					ShutdownTimeout: 10 * time.Second,
				}, e)
			},
		},
		{
			name: "s3 settings",
			environ: map[string]string{
				"TABLEADMIN_DATABASE_URL":     "postgres://localhost/movies",
				"TABLEADMIN_DATABASE_DRIVER":  "pq",
				"TABLEADMIN_S3_BUCKET":        "posters",
				"TABLEADMIN_S3_USE_PATH_STYLE": "true",
				"TABLEADMIN_CLEANUP_MEDIA":    "true",
			},
			want: func(e envConfig) string {
				got := struct {
					Driver, Bucket string
					PathStyle, Cleanup bool
				}{e.DatabaseDriver, e.S3.Bucket, e.S3.UsePathStyle, e.CleanupMedia}
				want := struct {
					Driver, Bucket string
					PathStyle, Cleanup bool
				}{"pq", "posters", true, true}
				return cmp.Diff(want, got)
			},
		},
		{
			name: "unknown postgres driver",
			environ: map[string]string{
				"TABLEADMIN_DATABASE_URL":    "postgres://localhost/movies",
				"TABLEADMIN_DATABASE_DRIVER": "odbc",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := parseEnv(env.Options{Prefix: envPrefix, Environment: tt.environ})
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseEnv() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEnv() error = %v", err)
			}
			if diff := tt.want(e); diff != "" {
				t.Errorf("parseEnv() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseConfigFile(t *testing.T) {
	fc, err := parseConfigFile([]byte(`
site_name: Movie Admin
page_size: 25
auto_include_related: true
sidebar_links:
  - name: Docs
    url: https://example.com/docs
tables:
  - name: movie
    exclude_visible_columns: [description]
    order_by:
      - column: rating
        ascending: false
    readable:
      template: "%s (%s)"
      columns: [name, id]
    media:
      - column: poster
        allowed_extensions: [jpg, png]
`))
	if err != nil {
		t.Fatalf("parseConfigFile() error = %v", err)
	}
	if fc.SiteName != "Movie Admin" || fc.PageSize != 25 || !fc.AutoIncludeRelated {
		t.Errorf("site settings = %q %d %v", fc.SiteName, fc.PageSize, fc.AutoIncludeRelated)
	}
	if diff := cmp.Diff([]tableadmin.SidebarLink{{Name: "Docs", URL: "https://example.com/docs"}}, fc.SidebarLinks); diff != "" {
		t.Errorf("sidebar links mismatch (-want +got):\n%s", diff)
	}
	if len(fc.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(fc.Tables))
	}
	movie := fc.Tables[0]
	if diff := cmp.Diff([]tableadmin.OrderBy{{Column: "rating", Ascending: false}}, movie.OrderBy); diff != "" {
		t.Errorf("order by mismatch (-want +got):\n%s", diff)
	}
	if movie.Readable.Template != "%s (%s)" || len(movie.Readable.Columns) != 2 {
		t.Errorf("readable = %+v", movie.Readable)
	}
	if diff := cmp.Diff([]mediaFile{{Column: "poster", AllowedExtensions: []string{"jpg", "png"}}}, movie.Media); diff != "" {
		t.Errorf("media mismatch (-want +got):\n%s", diff)
	}

	t.Run("unknown field", func(t *testing.T) {
		if _, err := parseConfigFile([]byte("tabels: []\n")); err == nil {
			t.Error("parseConfigFile() error = nil, want error for unknown field")
		}
	})
	t.Run("table without name", func(t *testing.T) {
		if _, err := parseConfigFile([]byte("tables:\n  - menu_group: x\n")); err == nil {
			t.Error("parseConfigFile() error = nil, want error")
		}
	})
	t.Run("empty", func(t *testing.T) {
		fc, err := parseConfigFile(nil)
		if err != nil || len(fc.Tables) != 0 {
			t.Errorf("parseConfigFile(nil) = %+v, %v", fc, err)
		}
	})
}

func TestTableConfigs(t *testing.T) {
	e := envConfig{MediaPath: t.TempDir(), BasePath: "/admin"}
	fc := &fileConfig{Tables: []tableFile{
		{Name: "movie", MenuGroup: "Films", Media: []mediaFile{{Column: "poster"}}},
		{Name: "director"},
	}}

	tables, err := e.tableConfigs(context.Background(), fc)
	if err != nil {
		t.Fatalf("tableConfigs() error = %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(tables))
	}
	if tables[0].MenuGroup != "Films" || len(tables[0].MediaStorage) != 1 {
		t.Errorf("movie config = %+v", tables[0])
	}
	local, ok := tables[0].MediaStorage[0].(*media.LocalStorage)
	if !ok {
		t.Fatalf("storage = %T, want *media.LocalStorage", tables[0].MediaStorage[0])
	}
	if want := filepath.Join(e.MediaPath, "movie", "poster"); local.Path() != want {
		t.Errorf("storage path = %q, want %q", local.Path(), want)
	}

	e.MediaGracePeriod = 30 * time.Minute
	cfg := e.adminConfig(&fileConfig{SiteName: "Movies"}, nil)
	if cfg.Auth.CookiePath != "/admin/" || cfg.SiteName != "Movies" || cfg.MediaGracePeriod != 30*time.Minute {
		t.Errorf("adminConfig() = %+v", cfg)
	}

	t.Run("s3 without bucket", func(t *testing.T) {
		_, err := e.tableConfigs(context.Background(), &fileConfig{Tables: []tableFile{
			{Name: "movie", Media: []mediaFile{{Column: "poster", Storage: "s3"}}},
		}})
		if err == nil || !strings.Contains(err.Error(), "S3_BUCKET") {
			t.Errorf("tableConfigs() error = %v, want missing bucket", err)
		}
	})
	t.Run("unknown storage", func(t *testing.T) {
		_, err := e.tableConfigs(context.Background(), &fileConfig{Tables: []tableFile{
			{Name: "movie", Media: []mediaFile{{Column: "poster", Storage: "ftp"}}},
		}})
		if err == nil {
			t.Error("tableConfigs() error = nil, want error")
		}
	})
}

func openFixtureDatabase(t *testing.T) *database {
	t.Helper()
	ctx := context.Background()
	db, err := openDatabase(ctx, "sqlite://"+filepath.Join(t.TempDir(), "movies.db"), "pgx")
	if err != nil {
		t.Fatalf("openDatabase() error = %v", err)
	}
	t.Cleanup(db.Close)
	for _, stmt := range testutil.FixtureSchema {
		if _, err := db.conn.GetExecutor().Exec(ctx, stmt); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func TestBuildAdmin(t *testing.T) {
	db := openFixtureDatabase(t)
	ctx := context.Background()
	log := newLogger(zap.NewNop())
	dir := t.TempDir()
	e := envConfig{MediaPath: filepath.Join(dir, "media")}

	t.Run("every table without a config file", func(t *testing.T) {
		admin, err := db.buildAdmin(ctx, e, filepath.Join(dir, "missing.yaml"), log)
		if err != nil {
			t.Fatalf("buildAdmin() error = %v", err)
		}
		if err := admin.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		if diff := cmp.Diff([]string{"director", "movie", "studio", "ticket"}, admin.Registry().Names()); diff != "" {
			t.Errorf("tables mismatch (-want +got):\n%s", diff)
		}

		// The auth and lease tables now exist but are never listed.
		if err := leadership.NewSQLStore(db.conn).Migrate(ctx); err != nil {
			t.Fatalf("migrate leases: %v", err)
		}
		again, err := db.buildAdmin(ctx, e, filepath.Join(dir, "missing.yaml"), log)
		if err != nil {
			t.Fatalf("buildAdmin() error = %v", err)
		}
		if diff := cmp.Diff([]string{"director", "movie", "studio", "ticket"}, again.Registry().Names()); diff != "" {
			t.Errorf("tables after migrate mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("composite primary key is skipped", func(t *testing.T) {
		db := openFixtureDatabase(t)
		if _, err := db.conn.GetExecutor().Exec(ctx, `CREATE TABLE movie_tag (
			movie_id INTEGER NOT NULL REFERENCES movie(id),
			tag VARCHAR(50) NOT NULL,
			PRIMARY KEY (movie_id, tag)
		)`); err != nil {
			t.Fatalf("create movie_tag: %v", err)
		}
		core, logs := observer.New(zap.WarnLevel)
		admin, err := db.buildAdmin(ctx, e, filepath.Join(dir, "missing.yaml"), newLogger(zap.New(core)))
		if err != nil {
			t.Fatalf("buildAdmin() error = %v", err)
		}
		if diff := cmp.Diff([]string{"director", "movie", "studio", "ticket"}, admin.Registry().Names()); diff != "" {
			t.Errorf("tables mismatch (-want +got):\n%s", diff)
		}
		skipped := logs.FilterMessage("skipping table").All()
		if len(skipped) != 1 || skipped[0].ContextMap()["table"] != "movie_tag" {
			t.Errorf("skipped table logs = %v", skipped)
		}
	})

	t.Run("config file with related tables", func(t *testing.T) {
		path := filepath.Join(dir, "tableadmin.yaml")
		config := "auto_include_related: true\ntables:\n  - name: movie\n    media:\n      - column: poster\n"
		if err := os.WriteFile(path, []byte(config), 0o600); err != nil {
			t.Fatal(err)
		}
		admin, err := db.buildAdmin(ctx, e, path, log)
		if err != nil {
			t.Fatalf("buildAdmin() error = %v", err)
		}

		var out bytes.Buffer
		if err := printTables(&out, admin); err != nil {
			t.Fatalf("printTables() error = %v", err)
		}
		text := out.String()
		if !strings.HasPrefix(text, "TABLE") {
			t.Errorf("missing header:\n%s", text)
		}
		movie, director := strings.Index(text, "\nmovie "), strings.Index(text, "\ndirector ")
		if movie < 0 || director < 0 || director > movie {
			t.Errorf("director should be listed before movie:\n%s", text)
		}
		if !strings.Contains(text, "poster\n") {
			t.Errorf("media column not listed:\n%s", text)
		}
	})
}

func TestPrintUnusedMedia(t *testing.T) {
	unused := map[string][]string{
		"movie.poster":   {"a-1.png"},
		"director.photo": {"b-2.jpg", "c-3.jpg"},
	}

	var out bytes.Buffer
	printUnusedMedia(&out, unused, true)
	want := "Would delete director.photo: b-2.jpg\n" +
		"Would delete director.photo: c-3.jpg\n" +
		"Would delete movie.poster: a-1.png\n" +
		"Would delete 3 unused files\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("printUnusedMedia() mismatch (-want +got):\n%s", diff)
	}

	out.Reset()
	printUnusedMedia(&out, map[string][]string{"movie.poster": {"a-1.png"}}, false)
	if !strings.HasSuffix(out.String(), "Deleted 1 unused file\n") {
		t.Errorf("printUnusedMedia() = %q", out.String())
	}
}

func TestReadPassword(t *testing.T) {
	t.Setenv(envPrefix+"PASSWORD", "")

	got, err := readPassword(strings.NewReader("hunter22\nignored\n"))
	if err != nil || got != "hunter22" {
		t.Errorf("readPassword(stdin) = %q, %v", got, err)
	}

	if _, err := readPassword(strings.NewReader("")); err == nil {
		t.Error("readPassword(empty) error = nil, want error")
	}

	t.Setenv(envPrefix+"PASSWORD", "from-env")
	got, err = readPassword(strings.NewReader("stdin\n"))
	if err != nil || got != "from-env" {
		t.Errorf("readPassword(env) = %q, %v", got, err)
	}
}
