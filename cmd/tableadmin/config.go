package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/crud"
	"github.com/youssefsiam38/tableadmin/media"
)

// envConfig is read from TABLEADMIN_* environment variables.
type envConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	// DatabaseDriver selects the PostgreSQL client: "pgx" or "pq".
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"pgx"`

	Addr       string `env:"ADDR" envDefault:":8080"`
	BasePath   string `env:"BASE_PATH" envDefault:"/admin"`
	ConfigFile string `env:"CONFIG" envDefault:"tableadmin.yaml"`
	Secret     string `env:"SECRET"`
	Production bool   `env:"PRODUCTION"`

	MediaPath string `env:"MEDIA_PATH" envDefault:"media"`
	S3        s3Env  `envPrefix:"S3_"`
	// MediaGracePeriod keeps recent uploads out of media cleanup.
	MediaGracePeriod time.Duration `env:"MEDIA_GRACE_PERIOD" envDefault:"1h"`

	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	CleanupMedia    bool          `env:"CLEANUP_MEDIA"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type s3Env struct {
	Bucket          string `env:"BUCKET"`
	Folder          string `env:"FOLDER"`
	Region          string `env:"REGION"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE"`
	PublicURL       string `env:"PUBLIC_URL"`
	UnsignedURLs    bool   `env:"UNSIGNED_URLS"`
}

const envPrefix = "TABLEADMIN_"

// loadEnv parses the process environment. The --config flag overrides
// TABLEADMIN_CONFIG.
func loadEnv() (envConfig, error) {
	return parseEnv(env.Options{Prefix: envPrefix})
}

func parseEnv(opts env.Options) (envConfig, error) {
	var c envConfig
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	if configFile != "" {
		c.ConfigFile = configFile
	}
	switch c.DatabaseDriver {
	case "pgx", "pq":
	default:
		return c, fmt.Errorf("parse env: %sDATABASE_DRIVER must be pgx or pq, got %q", envPrefix, c.DatabaseDriver)
	}
	return c, nil
}

// fileConfig is the YAML table configuration.
type fileConfig struct {
	SiteName           string                   `yaml:"site_name"`
	ReadOnly           bool                     `yaml:"read_only"`
	PageSize           int                      `yaml:"page_size"`
	AutoIncludeRelated bool                     `yaml:"auto_include_related"`
	Translations       []string                 `yaml:"translations"`
	DefaultLanguage    string                   `yaml:"default_language"`
	MaxUploadSize      int64                    `yaml:"max_upload_size"`
	SidebarLinks       []tableadmin.SidebarLink `yaml:"sidebar_links"`
	Tables             []tableFile              `yaml:"tables"`
}

type tableFile struct {
	Name                  string               `yaml:"name"`
	VisibleColumns        []string             `yaml:"visible_columns"`
	ExcludeVisibleColumns []string             `yaml:"exclude_visible_columns"`
	VisibleFilters        []string             `yaml:"visible_filters"`
	ExcludeVisibleFilters []string             `yaml:"exclude_visible_filters"`
	RichTextColumns       []string             `yaml:"rich_text_columns"`
	LinkColumn            string               `yaml:"link_column"`
	MenuGroup             string               `yaml:"menu_group"`
	OrderBy               []tableadmin.OrderBy `yaml:"order_by"`
	TimeResolution        map[string]int       `yaml:"time_resolution"`
	Readable              crud.Readable        `yaml:"readable"`
	Defaults              map[string]any       `yaml:"defaults"`
	ReadOnly              bool                 `yaml:"read_only"`
	PageSize              int                  `yaml:"page_size"`
	Media                 []mediaFile          `yaml:"media"`
}

type mediaFile struct {
	Column string `yaml:"column"`
	// Storage is "local" (default) or "s3".
	Storage           string   `yaml:"storage"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// readConfigFile parses the YAML file at path. A missing file yields an
// empty configuration that lists every table of the database.
func readConfigFile(file string) (*fileConfig, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return &fileConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfigFile(data)
}

func parseConfigFile(data []byte) (*fileConfig, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i, t := range fc.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("parse config: table %d has no name", i+1)
		}
	}
	return &fc, nil
}

// adminConfig merges the file and environment settings.
func (e envConfig) adminConfig(fc *fileConfig, log tableadmin.Logger) tableadmin.Config {
	cfg := tableadmin.Config{
		SiteName:           fc.SiteName,
		ReadOnly:           fc.ReadOnly,
		PageSize:           fc.PageSize,
		AutoIncludeRelated: fc.AutoIncludeRelated,
		Translations:       fc.Translations,
		DefaultLanguage:    fc.DefaultLanguage,
		MaxUploadSize:      fc.MaxUploadSize,
		SidebarLinks:       fc.SidebarLinks,
		MediaGracePeriod:   e.MediaGracePeriod,
		Logger:             log,
		Production:         e.Production,
		Auth: auth.Config{
			CookiePath: e.BasePath + "/",
		},
	}
	if e.Secret != "" {
		cfg.Auth.TokenSecret = []byte(e.Secret)
	}
	return cfg
}

// tableConfigs converts the file tables, creating their media storages.
// Each storage gets its own directory or key prefix, <table>/<column>,
// below MediaPath or the S3 folder.
func (e envConfig) tableConfigs(ctx context.Context, fc *fileConfig) ([]*tableadmin.TableConfig, error) {
	var s3Client media.S3API
	out := make([]*tableadmin.TableConfig, 0, len(fc.Tables))
	for _, t := range fc.Tables {
		tc := &tableadmin.TableConfig{
			Name:                  t.Name,
			VisibleColumns:        t.VisibleColumns,
			ExcludeVisibleColumns: t.ExcludeVisibleColumns,
			VisibleFilters:        t.VisibleFilters,
			ExcludeVisibleFilters: t.ExcludeVisibleFilters,
			RichTextColumns:       t.RichTextColumns,
			LinkColumn:            t.LinkColumn,
			MenuGroup:             t.MenuGroup,
			OrderBy:               t.OrderBy,
			TimeResolution:        t.TimeResolution,
			Readable:              t.Readable,
			Defaults:              t.Defaults,
			ReadOnly:              t.ReadOnly,
			PageSize:              t.PageSize,
		}
		for _, m := range t.Media {
			opts := media.Options{Table: t.Name, Column: m.Column, AllowedExtensions: m.AllowedExtensions}
			switch m.Storage {
			case "", "local":
				s, err := media.NewLocalStorage(media.LocalConfig{
					Options:   opts,
					MediaPath: filepath.Join(e.MediaPath, t.Name, m.Column),
				})
				if err != nil {
					return nil, fmt.Errorf("media %s.%s: %w", t.Name, m.Column, err)
				}
				tc.MediaStorage = append(tc.MediaStorage, s)
			case "s3":
				if e.S3.Bucket == "" {
					return nil, fmt.Errorf("media %s.%s: %sS3_BUCKET is not set", t.Name, m.Column, envPrefix)
				}
				if s3Client == nil {
					c, err := media.NewS3Client(ctx, media.S3ClientConfig{
						Region:          e.S3.Region,
						Endpoint:        e.S3.Endpoint,
						AccessKeyID:     e.S3.AccessKeyID,
						SecretAccessKey: e.S3.SecretAccessKey,
						UsePathStyle:    e.S3.UsePathStyle,
					})
					if err != nil {
						return nil, err
					}
					s3Client = c
				}
				s, err := media.NewS3Storage(s3Client, media.S3Config{
					Options:      opts,
					Bucket:       e.S3.Bucket,
					Folder:       path.Join(e.S3.Folder, t.Name, m.Column),
					PublicURL:    e.S3.PublicURL,
					UnsignedURLs: e.S3.UnsignedURLs,
				})
				if err != nil {
					return nil, fmt.Errorf("media %s.%s: %w", t.Name, m.Column, err)
				}
				tc.MediaStorage = append(tc.MediaStorage, s)
			default:
				return nil, fmt.Errorf("media %s.%s: unknown storage %q", t.Name, m.Column, m.Storage)
			}
		}
		out = append(out, tc)
	}
	return out, nil
}
