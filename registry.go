package tableadmin

import (
	"fmt"
	"sort"
	"sync"
)

// Global registry - populated at init() time and used by New when no
// tables are passed explicitly.
var (
	globalTablesMu sync.RWMutex
	globalTables   []*TableConfig
)

// Register registers a table configuration globally.
// This should be called at package init time before creating an Admin.
//
// Example:
//
//	func init() {
//	    tableadmin.Register(&tableadmin.TableConfig{
//	        Name:           "movie",
//	        VisibleColumns: []string{"name", "rating", "director_id"},
//	        MenuGroup:      "Movies",
//	    })
//	}
func Register(cfg *TableConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: table config is nil", ErrInvalidConfig)
	}
	name := cfg.TableName()
	if name == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidConfig)
	}

	globalTablesMu.Lock()
	defer globalTablesMu.Unlock()

	for _, existing := range globalTables {
		if existing.TableName() == name {
			return fmt.Errorf("%w: %q", ErrTableExists, name)
		}
	}
	globalTables = append(globalTables, cfg)
	return nil
}

// MustRegister is like Register but panics on error.
// This is useful for init() functions where errors should be fatal.
func MustRegister(cfg *TableConfig) {
	if err := Register(cfg); err != nil {
		panic(err)
	}
}

// RegisteredTables returns the globally registered configurations in
// registration order.
func RegisteredTables() []*TableConfig {
	globalTablesMu.RLock()
	defer globalTablesMu.RUnlock()

	out := make([]*TableConfig, len(globalTables))
	copy(out, globalTables)
	return out
}

// ClearRegistry clears all globally registered tables.
// This is mainly useful for testing.
func ClearRegistry() {
	globalTablesMu.Lock()
	globalTables = nil
	globalTablesMu.Unlock()
}

// Registry holds the resolved tables of one admin.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tables map[string]*ResolvedTable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*ResolvedTable)}
}

// Register resolves cfg and adds it. Table names must be unique.
func (r *Registry) Register(cfg *TableConfig) (*ResolvedTable, error) {
	resolved, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := resolved.Name()
	if _, exists := r.tables[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrTableExists, name)
	}
	r.tables[name] = resolved
	r.order = append(r.order, name)
	return resolved, nil
}

// Get returns the named table.
func (r *Registry) Get(name string) (*ResolvedTable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return t, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tables[name]
	return ok
}

// Names returns the table names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Tables returns the resolved tables in registration order.
func (r *Registry) Tables() []*ResolvedTable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ResolvedTable, len(r.order))
	for i, name := range r.order {
		out[i] = r.tables[name]
	}
	return out
}

// Grouped maps menu groups to table names. Ungrouped tables are listed
// under "". Names within a group are sorted.
func (r *Registry) Grouped() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make(map[string][]string)
	for _, name := range r.order {
		group := r.tables[name].Config.MenuGroup
		groups[group] = append(groups[group], name)
	}
	for _, names := range groups {
		sort.Strings(names)
	}
	return groups
}
