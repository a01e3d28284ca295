package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/youssefsiam38/tableadmin/driver"
)

// Logger is the logging interface used by the auth package.
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

// Service manages users, sessions and bearer tokens.
type Service struct {
	conn    driver.Conn
	cfg     Config
	log     Logger
	limiter *RateLimiter
	tokens  *TokenIssuer
	now     func() time.Time

	// dummyHash is compared against when a username does not exist, at
	// the same cost as real hashes, so timing does not reveal which
	// usernames are valid.
	dummyHash func() []byte
}

// New creates a Service. Call Migrate before using it against a fresh database.
func New(conn driver.Conn, cfg Config, logger Logger) *Service {
	cfg.ApplyDefaults()
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Service{
		conn:    conn,
		cfg:     cfg,
		log:     logger,
		limiter: NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow),
		now:     time.Now,
	}
	s.dummyHash = sync.OnceValue(func() []byte {
		h, err := bcrypt.GenerateFromPassword([]byte("tableadmin-dummy-password"), cfg.BcryptCost)
		if err != nil {
			logger.Error("generate dummy password hash", "error", err)
		}
		return h
	})
	if len(cfg.TokenSecret) > 0 {
		s.tokens = NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Tokens returns the bearer token issuer, or nil when bearer auth is disabled.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Limiter returns the login rate limiter.
func (s *Service) Limiter() *RateLimiter { return s.limiter }

func (s *Service) exec(ctx context.Context) driver.Executor {
	return driver.ExecutorFor(ctx, s.conn)
}

func (s *Service) q(query string) string {
	return driver.Rebind(s.conn.Dialect(), query)
}

// timestamp normalizes t for storage. SQLite compares timestamps as text so
// every stored value uses the same zone and precision.
func (s *Service) timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// asTime converts a scanned timestamp. Some drivers return text for
// timestamp columns.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case []byte:
		return asTime(string(t))
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", t)
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}
