package tableadmin

import (
	"fmt"
	"time"

	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/crud"
	"github.com/youssefsiam38/tableadmin/forms"
	"github.com/youssefsiam38/tableadmin/i18n"
)

// Default configuration values.
const (
	DefaultSiteName      = "Table Admin"
	DefaultPageSize      = crud.DefaultPageSize
	DefaultMaxUploadSize = 10 << 20

	DefaultMediaGracePeriod = time.Hour
)

// Logger interface for structured logging.
// Compatible with the ui, auth and crud loggers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SidebarLink is an external link shown in the navigation.
type SidebarLink struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Config holds the admin configuration. The database driver and the tables
// are passed separately to New.
//
// Example:
//
//	drv := pgxv5.New(pool)
//	admin, _ := tableadmin.New(ctx, drv, tableadmin.Config{
//	    SiteName:           "Movie Admin",
//	    AutoIncludeRelated: true,
//	}, &tableadmin.TableConfig{Name: "movie"})
type Config struct {
	// SiteName is shown in the page title and navigation.
	SiteName string

	// ReadOnly disables every write through the admin.
	ReadOnly bool

	// PageSize is the default number of rows per page.
	PageSize int

	// AutoIncludeRelated registers tables referenced by foreign keys that
	// were not configured explicitly.
	AutoIncludeRelated bool

	// Forms are custom forms offered in the admin.
	Forms []*forms.Form

	// Translations restricts the UI languages. Empty allows every bundled
	// language.
	Translations []string

	// DefaultLanguage is used when the browser asks for nothing we have.
	// Defaults to English.
	DefaultLanguage string

	// Auth configures sessions and tokens.
	Auth auth.Config

	// MaxUploadSize bounds media uploads in bytes.
	MaxUploadSize int64

	// MediaGracePeriod is how long an unreferenced file is kept before
	// DeleteUnusedMedia removes it. Uploads are stored before the row
	// referring to them is saved. Defaults to one hour.
	MediaGracePeriod time.Duration

	// SidebarLinks are extra links in the navigation.
	SidebarLinks []SidebarLink

	// Logger for structured logging. If nil, logging is disabled.
	Logger Logger

	// Production enables secure cookies.
	Production bool
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills in default values for zero-valued fields.
func (c *Config) applyDefaults() {
	if c.SiteName == "" {
		c.SiteName = DefaultSiteName
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = DefaultMaxUploadSize
	}
	if c.MediaGracePeriod == 0 {
		c.MediaGracePeriod = DefaultMediaGracePeriod
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = i18n.BaseLanguage
	}
	if c.Production {
		c.Auth.Secure = true
	}
	c.Auth.ApplyDefaults()
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	if c.PageSize < 1 || c.PageSize > crud.MaxPageSize {
		return fmt.Errorf("%w: page size must be between 1 and %d", ErrInvalidConfig, crud.MaxPageSize)
	}
	if c.MaxUploadSize < 0 {
		return fmt.Errorf("%w: max upload size is negative", ErrInvalidConfig)
	}
	if c.MediaGracePeriod < 0 {
		return fmt.Errorf("%w: media grace period is negative", ErrInvalidConfig)
	}
	for _, link := range c.SidebarLinks {
		if link.Name == "" || link.URL == "" {
			return fmt.Errorf("%w: sidebar links need a name and a URL", ErrInvalidConfig)
		}
	}
	return nil
}
