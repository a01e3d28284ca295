package tableadmin

import (
	"slices"
	"sort"

	"github.com/youssefsiam38/tableadmin/schema"
)

// Reference is a foreign key pointing at a table.
type Reference struct {
	Table    string          `json:"table"`
	Column   string          `json:"column"`
	Target   string          `json:"target"`
	OnDelete schema.OnDelete `json:"on_delete"`
}

// CycleBreak records a table placed before some of the tables it references
// because they form a cycle.
type CycleBreak struct {
	Table   string   `json:"table"`
	Pending []string `json:"pending"`
}

// Graph is the foreign key graph of a set of tables. References to tables
// outside the set are ignored.
type Graph struct {
	tables map[string]*schema.Table
	names  []string
}

// NewGraph builds the graph of tables.
func NewGraph(tables []*schema.Table) *Graph {
	g := &Graph{tables: make(map[string]*schema.Table, len(tables))}
	for _, t := range tables {
		if _, dup := g.tables[t.Name]; dup {
			continue
		}
		g.tables[t.Name] = t
		g.names = append(g.names, t.Name)
	}
	sort.Strings(g.names)
	return g
}

// dependencies returns the tables name references, excluding itself.
func (g *Graph) dependencies(name string) []string {
	var deps []string
	for _, c := range g.tables[name].ForeignKeys() {
		ref := c.ForeignKey.Table
		if ref == name || slices.Contains(deps, ref) {
			continue
		}
		if _, ok := g.tables[ref]; ok {
			deps = append(deps, ref)
		}
	}
	sort.Strings(deps)
	return deps
}

// DependencyOrder returns the tables ordered so that referenced tables come
// before the tables referencing them. Ties are broken by name. When the
// remaining tables form a cycle, the first one by name is emitted and
// reported in breaks.
func (g *Graph) DependencyOrder() (order []string, breaks []CycleBreak) {
	done := make(map[string]bool, len(g.names))
	pending := func(name string) []string {
		var out []string
		for _, dep := range g.dependencies(name) {
			if !done[dep] {
				out = append(out, dep)
			}
		}
		return out
	}

	for len(order) < len(g.names) {
		progressed := false
		for _, name := range g.names {
			if done[name] || len(pending(name)) > 0 {
				continue
			}
			done[name] = true
			order = append(order, name)
			progressed = true
			break
		}
		if progressed {
			continue
		}
		for _, name := range g.names {
			if !done[name] {
				breaks = append(breaks, CycleBreak{Table: name, Pending: pending(name)})
				done[name] = true
				order = append(order, name)
				break
			}
		}
	}
	return order, breaks
}

// ReferencedBy returns the foreign keys of other tables, and self
// references, that point at table, sorted by table and column.
func (g *Graph) ReferencedBy(table string) []Reference {
	var refs []Reference
	for _, name := range g.names {
		for _, c := range g.tables[name].ForeignKeys() {
			if c.ForeignKey.Table != table {
				continue
			}
			onDelete := c.ForeignKey.OnDelete
			if onDelete == "" {
				onDelete = schema.NoAction
			}
			refs = append(refs, Reference{
				Table:    name,
				Column:   c.Name,
				Target:   c.ForeignKey.Column,
				OnDelete: onDelete,
			})
		}
	}
	return refs
}

// Table returns the named table of the graph or nil.
func (g *Graph) Table(name string) *schema.Table {
	return g.tables[name]
}

// CascadeTargets returns every other table whose rows may be deleted, directly
// or transitively, through ON DELETE CASCADE when a row of table is deleted.
func (g *Graph) CascadeTargets(table string) []string {
	seen := map[string]bool{table: true}
	queue := []string{table}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, ref := range g.ReferencedBy(current) {
			if ref.OnDelete != schema.Cascade || seen[ref.Table] {
				continue
			}
			seen[ref.Table] = true
			out = append(out, ref.Table)
			queue = append(queue, ref.Table)
		}
	}
	sort.Strings(out)
	return out
}
