package tableadmin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/crud"
	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/forms"
	"github.com/youssefsiam38/tableadmin/i18n"
	"github.com/youssefsiam38/tableadmin/media"
	"github.com/youssefsiam38/tableadmin/schema"
)

// Admin ties together the tables, the CRUD engine, authentication, media,
// forms and translations served by the ui package.
type Admin struct {
	conn     driver.Conn
	cfg      Config
	log      Logger
	registry *Registry
	graph    *Graph
	crud     *crud.Service
	auth     *auth.Service
	forms    *forms.Registry
	i18n     *i18n.Bundle
}

// New creates an admin for tables. Tables without a definition are
// introspected from the database. When no tables are passed the globally
// registered ones are used.
//
// Example:
//
//	drv := pgxv5.New(pool)
//	admin, err := tableadmin.New(ctx, drv, tableadmin.Config{SiteName: "Movies"},
//	    &tableadmin.TableConfig{Name: "director"},
//	    &tableadmin.TableConfig{Name: "movie", MenuGroup: "Catalog"},
//	)
func New[TTx any](ctx context.Context, drv driver.Driver[TTx], cfg Config, tables ...*TableConfig) (*Admin, error) {
	if drv == nil || !drv.PoolIsSet() {
		return nil, NewAdminError("New", fmt.Errorf("%w: driver is required", ErrInvalidConfig))
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, NewAdminError("New", err)
	}

	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}

	if len(tables) == 0 {
		tables = RegisteredTables()
	}
	configs, err := loadTables(ctx, drv, tables)
	if err != nil {
		return nil, NewAdminError("New", err)
	}
	if cfg.AutoIncludeRelated {
		if configs, err = includeRelated(ctx, drv, configs); err != nil {
			return nil, NewAdminError("New", err)
		}
	}

	defs := make([]*schema.Table, len(configs))
	for i, c := range configs {
		defs[i] = c.Table
	}
	schema.ResolveReferences(defs)

	a := &Admin{
		conn:     drv,
		cfg:      cfg,
		log:      log,
		registry: NewRegistry(),
		graph:    NewGraph(defs),
		crud: crud.New(drv, crud.Config{
			DefaultPageSize: cfg.PageSize,
			Logger:          log,
		}),
		auth: auth.New(drv, cfg.Auth, log),
	}

	for _, c := range configs {
		resolved, err := a.registry.Register(c)
		if err != nil {
			return nil, NewTableError("New", c.TableName(), err)
		}
		resolved.ReadOnly = resolved.ReadOnly || cfg.ReadOnly
		if err := a.crud.Register(resolved.spec()); err != nil {
			return nil, NewTableError("New", c.TableName(), err)
		}
	}

	_, breaks := a.graph.DependencyOrder()
	for _, b := range breaks {
		log.Warn("foreign key cycle", "table", b.Table, "pending", b.Pending)
	}

	if a.forms, err = forms.NewRegistry(cfg.Forms...); err != nil {
		return nil, NewAdminError("New", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}

	bundle, err := i18n.LoadEmbedded()
	if err != nil {
		return nil, NewAdminError("New", err)
	}
	if a.i18n, err = bundle.Restrict(cfg.Translations, cfg.DefaultLanguage); err != nil {
		return nil, NewAdminError("New", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}

	log.Info("admin created", "tables", len(configs), "forms", len(cfg.Forms))
	return a, nil
}

// loadTables copies the configurations and introspects those without a
// table definition.
func loadTables(ctx context.Context, conn driver.Conn, tables []*TableConfig) ([]*TableConfig, error) {
	out := make([]*TableConfig, len(tables))
	var missing []string
	for i, t := range tables {
		if t == nil {
			return nil, fmt.Errorf("%w: table config is nil", ErrInvalidConfig)
		}
		c := *t
		out[i] = &c
		if c.Table == nil {
			if c.Name == "" {
				return nil, fmt.Errorf("%w: table name is required", ErrInvalidConfig)
			}
			missing = append(missing, c.Name)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := schema.Inspect(ctx, conn.GetExecutor(), conn.Dialect(), missing...)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*schema.Table, len(found))
	for _, t := range found {
		byName[t.Name] = t
	}
	for _, c := range out {
		if c.Table == nil {
			c.Table = byName[c.Name]
		}
	}
	return out, nil
}

// includeRelated appends default configurations for tables referenced by
// foreign keys but not configured, until every reference is covered.
func includeRelated(ctx context.Context, conn driver.Conn, configs []*TableConfig) ([]*TableConfig, error) {
	known := make(map[string]bool, len(configs))
	for _, c := range configs {
		known[c.Table.Name] = true
	}
	pending := configs
	for len(pending) > 0 {
		var names []string
		for _, c := range pending {
			for _, fk := range c.Table.ForeignKeys() {
				if !known[fk.ForeignKey.Table] {
					known[fk.ForeignKey.Table] = true
					names = append(names, fk.ForeignKey.Table)
				}
			}
		}
		if len(names) == 0 {
			break
		}
		found, err := schema.Inspect(ctx, conn.GetExecutor(), conn.Dialect(), names...)
		if err != nil {
			return nil, fmt.Errorf("include related: %w", err)
		}
		pending = pending[:0:0]
		for _, t := range found {
			c := &TableConfig{Table: t}
			configs = append(configs, c)
			pending = append(pending, c)
		}
	}
	return configs, nil
}

// Config returns the admin configuration with defaults applied.
func (a *Admin) Config() Config { return a.cfg }

// Conn returns the database connection.
func (a *Admin) Conn() driver.Conn { return a.conn }

// Logger returns the admin logger.
func (a *Admin) Logger() Logger { return a.log }

// Registry returns the registered tables.
func (a *Admin) Registry() *Registry { return a.registry }

// Graph returns the foreign key graph of the registered tables.
func (a *Admin) Graph() *Graph { return a.graph }

// CRUD returns the CRUD engine.
func (a *Admin) CRUD() *crud.Service { return a.crud }

// Auth returns the authentication service.
func (a *Admin) Auth() *auth.Service { return a.auth }

// Forms returns the custom forms.
func (a *Admin) Forms() *forms.Registry { return a.forms }

// Translations returns the enabled UI languages.
func (a *Admin) Translations() *i18n.Bundle { return a.i18n }

// Table returns the named table.
func (a *Admin) Table(name string) (*ResolvedTable, error) {
	return a.registry.Get(name)
}

// Migrate creates the tables used by the admin itself.
func (a *Admin) Migrate(ctx context.Context) error {
	if err := auth.Migrate(ctx, a.conn); err != nil {
		return NewAdminError("Migrate", err)
	}
	return nil
}

// DependencyOrder returns the registered tables with referenced tables first.
func (a *Admin) DependencyOrder() []string {
	order, _ := a.graph.DependencyOrder()
	return order
}

// RunAction runs a custom action of table on ids inside a transaction.
func (a *Admin) RunAction(ctx context.Context, table, name string, ids []any) (string, error) {
	t, err := a.registry.Get(table)
	if err != nil {
		return "", err
	}
	action, err := t.Action(name)
	if err != nil {
		return "", NewTableError("RunAction", table, err)
	}
	if err := t.Validate(ctx, OpAction); err != nil {
		return "", err
	}

	var msg string
	err = driver.InTx(ctx, a.conn, func(ctx context.Context) error {
		var err error
		msg, err = action.Handler(ctx, ids)
		return err
	})
	if err != nil {
		return "", NewTableError("RunAction", table, err).WithContext("action", name)
	}
	a.log.Info("action run", "table", table, "action", name, "rows", len(ids))
	return msg, nil
}

// DeleteImpact is the number of rows of a table affected by a delete.
type DeleteImpact struct {
	Table    string          `json:"table"`
	Column   string          `json:"column"`
	OnDelete schema.OnDelete `json:"on_delete"`
	Count    int64           `json:"count"`
}

// DeletePreview counts the rows referencing the row id of table, following
// ON DELETE CASCADE references recursively.
func (a *Admin) DeletePreview(ctx context.Context, table string, id any) ([]DeleteImpact, error) {
	if _, err := a.registry.Get(table); err != nil {
		return nil, err
	}

	type impactKey struct{ table, column string }
	var order []impactKey
	impacts := make(map[impactKey]*DeleteImpact)
	visited := make(map[string]bool)

	var walk func(table string, id any) error
	walk = func(table string, id any) error {
		visitKey := table + "\x00" + fmt.Sprint(id)
		if visited[visitKey] {
			return nil
		}
		visited[visitKey] = true

		var row map[string]any
		for _, ref := range a.graph.ReferencedBy(table) {
			value := id
			if pk := a.graph.Table(table).PrimaryKey(); ref.Target != "" && ref.Target != pk.Name {
				if row == nil {
					var err error
					if row, err = a.crud.Get(ctx, table, id, false); err != nil {
						return err
					}
				}
				value = row[ref.Target]
			}

			n, err := a.crud.ReferenceCount(ctx, ref.Table, ref.Column, value)
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			k := impactKey{ref.Table, ref.Column}
			if impacts[k] == nil {
				impacts[k] = &DeleteImpact{Table: ref.Table, Column: ref.Column, OnDelete: ref.OnDelete}
				order = append(order, k)
			}
			impacts[k].Count += n

			if ref.OnDelete != schema.Cascade {
				continue
			}
			pk := a.graph.Table(ref.Table).PrimaryKey()
			ids, err := a.crud.ReferencingIDs(ctx, ref.Table, pk.Name, ref.Column, value)
			if err != nil {
				return err
			}
			for _, child := range ids {
				if err := walk(ref.Table, child); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(table, id); err != nil {
		return nil, NewTableError("DeletePreview", table, err)
	}
	out := make([]DeleteImpact, len(order))
	for i, k := range order {
		out[i] = *impacts[k]
	}
	return out, nil
}

// MediaStorages returns every configured media storage.
func (a *Admin) MediaStorages() []media.Storage {
	var out []media.Storage
	for _, t := range a.registry.Tables() {
		for _, col := range t.MediaColumns() {
			s, _ := t.MediaStorage(col)
			out = append(out, s)
		}
	}
	return out
}

// MediaStorage returns the storage configured for table.column.
func (a *Admin) MediaStorage(table, column string) (media.Storage, error) {
	t, err := a.registry.Get(table)
	if err != nil {
		return nil, err
	}
	s, ok := t.MediaStorage(column)
	if !ok {
		return nil, NewTableError("MediaStorage", table, fmt.Errorf("%w: %s", ErrMediaNotConfigured, column))
	}
	return s, nil
}

// FileKeysInUse returns the sorted keys stored in the column of s.
// Array columns are flattened.
func (a *Admin) FileKeysInUse(ctx context.Context, s media.Storage) ([]string, error) {
	values, err := a.crud.ColumnValues(ctx, s.Table(), s.Column())
	if err != nil {
		return nil, NewTableError("FileKeysInUse", s.Table(), err)
	}
	seen := make(map[string]bool)
	var keys []string
	add := func(v any) {
		if k, ok := v.(string); ok && k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, v := range values {
		switch v := v.(type) {
		case []any:
			for _, item := range v {
				add(item)
			}
		case []string:
			for _, item := range v {
				add(item)
			}
		default:
			add(v)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteUnusedMedia removes the files of every storage that no row refers to
// and that are older than Config.MediaGracePeriod. Storages sharing a
// location are cleaned together, keeping the keys used by any of them.
// With dryRun nothing is deleted. The result maps "table.column" to keys;
// a shared location is reported under its columns joined by commas.
func (a *Admin) DeleteUnusedMedia(ctx context.Context, dryRun bool) (map[string][]string, error) {
	var locations []string
	groups := make(map[string][]media.Storage)
	for _, s := range a.MediaStorages() {
		loc := s.Location()
		if _, ok := groups[loc]; !ok {
			locations = append(locations, loc)
		}
		groups[loc] = append(groups[loc], s)
	}

	out := make(map[string][]string)
	for _, loc := range locations {
		storages := groups[loc]
		var inUse, names []string
		for _, s := range storages {
			keys, err := a.FileKeysInUse(ctx, s)
			if err != nil {
				return nil, err
			}
			inUse = append(inUse, keys...)
			names = append(names, s.Table()+"."+s.Column())
		}
		sort.Strings(names)

		unused, err := media.DeleteUnused(ctx, storages[0], inUse, a.cfg.MediaGracePeriod, dryRun)
		if err != nil {
			return nil, NewTableError("DeleteUnusedMedia", storages[0].Table(), err)
		}
		if len(unused) > 0 {
			out[strings.Join(names, ",")] = unused
			a.log.Info("unused media", "location", loc, "columns", names, "files", len(unused), "dry_run", dryRun)
		}
	}
	return out, nil
}
