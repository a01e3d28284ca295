package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/schema"
)

// Page size limits.
const (
	DefaultPageSize = 15
	MaxPageSize     = 1000
)

// Logger is the logging interface used by the crud package.
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

// Config configures a Service.
type Config struct {
	// DefaultPageSize applies to tables without their own page size.
	DefaultPageSize int

	// MaxPageSize bounds __page_size.
	MaxPageSize int

	// Logger receives query errors. nil disables logging.
	Logger Logger
}

// Readable describes how a row is shown when referenced from another table.
// Template holds one %s per column, e.g. "%s (%s)". An empty template joins
// the columns with spaces.
type Readable struct {
	Template string   `json:"template" yaml:"template"`
	Columns  []string `json:"columns" yaml:"columns"`
}

// SaveHook may modify a row before it is inserted.
type SaveHook func(ctx context.Context, row map[string]any) (map[string]any, error)

// PatchHook may modify values before a row is updated.
type PatchHook func(ctx context.Context, id any, values map[string]any) (map[string]any, error)

// DeleteHook runs before a row is deleted. Returning an error aborts the delete.
type DeleteHook func(ctx context.Context, id any) error

// Hooks run inside the transaction of the operation they belong to.
type Hooks struct {
	PreSave   []SaveHook
	PrePatch  []PatchHook
	PreDelete []DeleteHook
}

// TableSpec registers a table with the Service.
type TableSpec struct {
	Table *schema.Table

	// Readable defaults to the primary key.
	Readable Readable

	// DefaultOrder applies when a list query has no __order. Defaults to
	// the primary key ascending.
	DefaultOrder []Order

	// PageSize overrides Config.DefaultPageSize.
	PageSize int

	// Defaults pre-fill new rows.
	Defaults map[string]any

	Hooks Hooks
}

// Service runs CRUD operations on registered tables.
type Service struct {
	conn   driver.Conn
	cfg    Config
	log    Logger
	tables map[string]*TableSpec
}

// New creates a Service.
func New(conn driver.Conn, cfg Config) *Service {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = MaxPageSize
	}
	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}
	return &Service{
		conn:   conn,
		cfg:    cfg,
		log:    log,
		tables: make(map[string]*TableSpec),
	}
}

// Register adds a table. Registering a name twice replaces the first spec.
func (s *Service) Register(spec *TableSpec) error {
	if spec == nil || spec.Table == nil {
		return fmt.Errorf("crud: table spec without table")
	}
	t := spec.Table
	if err := t.Validate(); err != nil {
		return err
	}
	for _, name := range spec.Readable.Columns {
		c := t.Column(name)
		if c == nil {
			return fmt.Errorf("%w: readable column %s.%s", ErrUnknownColumn, t.Name, name)
		}
		if c.Secret {
			return fmt.Errorf("crud: readable column %s.%s is secret", t.Name, name)
		}
	}
	if spec.Readable.Template != "" {
		if n := strings.Count(spec.Readable.Template, "%s"); n != len(spec.Readable.Columns) {
			return fmt.Errorf("crud: readable template of %s has %d placeholders for %d columns", t.Name, n, len(spec.Readable.Columns))
		}
	}
	for _, o := range spec.DefaultOrder {
		if t.Column(o.Column) == nil {
			return fmt.Errorf("%w: order column %s.%s", ErrUnknownColumn, t.Name, o.Column)
		}
	}
	for name := range spec.Defaults {
		if t.Column(name) == nil {
			return fmt.Errorf("%w: default for %s.%s", ErrUnknownColumn, t.Name, name)
		}
	}
	s.tables[t.Name] = spec
	return nil
}

// Spec returns the registered spec for table.
func (s *Service) Spec(table string) (*TableSpec, error) {
	spec, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}
	return spec, nil
}

// Dialect returns the SQL dialect of the connection.
func (s *Service) Dialect() driver.Dialect { return s.conn.Dialect() }

func (s *Service) exec(ctx context.Context) driver.Executor {
	return driver.ExecutorFor(ctx, s.conn)
}

func (s *Service) quote(name string) string {
	return s.conn.Dialect().QuoteIdent(name)
}

func (s *Service) pageSize(spec *TableSpec) int {
	if spec.PageSize > 0 {
		return spec.PageSize
	}
	return s.cfg.DefaultPageSize
}

// query runs q with $N placeholders rebound for the dialect and collects
// the rows.
func (s *Service) query(ctx context.Context, q string, args ...any) ([]map[string]any, error) {
	q = driver.Rebind(s.conn.Dialect(), q)
	rows, err := s.exec(ctx).Query(ctx, q, args...)
	if err != nil {
		s.log.Error("query failed", "error", err, "sql", q)
		return nil, err
	}
	return driver.CollectMaps(rows)
}

// args accumulates bind parameters and returns their placeholders.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}
