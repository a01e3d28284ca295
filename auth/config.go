package auth

import "time"

// Default configuration values.
const (
	DefaultSessionExpiry    = time.Hour
	DefaultMaxSessionExpiry = 7 * 24 * time.Hour
	DefaultIncreaseExpiry   = 20 * time.Minute
	DefaultCookieName       = "id"
	DefaultTokenTTL         = 24 * time.Hour
	DefaultLoginRateLimit   = 20
	DefaultLoginRateWindow  = 5 * time.Minute
)

// Config holds authentication configuration.
type Config struct {
	// SessionExpiry is how long a session lasts without use.
	SessionExpiry time.Duration

	// MaxSessionExpiry caps the lifetime of a session however often it is used.
	MaxSessionExpiry time.Duration

	// IncreaseExpiry extends a session that is used within this window of
	// expiring. Zero disables sliding expiry.
	IncreaseExpiry time.Duration

	// CookieName of the session cookie. Defaults to "id".
	CookieName string

	// CookiePath scopes the session and CSRF cookies. Defaults to "/".
	CookiePath string

	// Secure marks cookies as HTTPS only. Enable in production.
	Secure bool

	// TokenSecret signs bearer tokens. Bearer auth is disabled when empty.
	TokenSecret []byte

	// TokenTTL is the lifetime of issued bearer tokens.
	TokenTTL time.Duration

	// LoginRateLimit attempts are allowed per client per LoginRateWindow.
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// TrustForwardedFor uses X-Forwarded-For to identify clients for rate
	// limiting. Only enable behind a trusted proxy.
	TrustForwardedFor bool

	// BcryptCost for password hashes. Defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// ApplyDefaults fills in default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.SessionExpiry == 0 {
		c.SessionExpiry = DefaultSessionExpiry
	}
	if c.MaxSessionExpiry == 0 {
		c.MaxSessionExpiry = DefaultMaxSessionExpiry
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.CookiePath == "" {
		c.CookiePath = "/"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.LoginRateLimit == 0 {
		c.LoginRateLimit = DefaultLoginRateLimit
	}
	if c.LoginRateWindow == 0 {
		c.LoginRateWindow = DefaultLoginRateWindow
	}
}
