package tableadmin

import (
	"context"
	"fmt"
	"slices"

	"github.com/youssefsiam38/tableadmin/crud"
	"github.com/youssefsiam38/tableadmin/media"
	"github.com/youssefsiam38/tableadmin/schema"
)

// OrderBy is one default sort key of a table listing.
type OrderBy struct {
	Column    string `json:"column" yaml:"column"`
	Ascending bool   `json:"ascending" yaml:"ascending"`
}

// ActionHandler runs a custom action on the selected rows and returns a
// message shown to the user. It runs inside a transaction; see TxFromContext.
type ActionHandler func(ctx context.Context, ids []any) (string, error)

// Action is a custom operation offered on the row listing of a table.
type Action struct {
	Name    string
	Handler ActionHandler
}

// Operation names a CRUD operation passed to validators.
type Operation string

// Operations checked by validators.
const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpExport Operation = "export"
	OpAction Operation = "action"
	OpUpload Operation = "upload"
)

// IsWrite reports whether the operation modifies rows.
func (o Operation) IsWrite() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete, OpAction, OpUpload:
		return true
	}
	return false
}

// Validator may refuse an operation on a table before it runs. The
// authenticated user is available through auth.UserFromContext.
type Validator func(ctx context.Context, op Operation) error

// TableConfig configures how one table is presented in the admin.
type TableConfig struct {
	// Table is the table definition. When nil it is introspected from the
	// database using Name.
	Table *schema.Table

	// Name of the table to introspect. Ignored when Table is set.
	Name string

	// VisibleColumns and ExcludeVisibleColumns choose the listed columns.
	// Only one of them may be set.
	VisibleColumns        []string
	ExcludeVisibleColumns []string

	// VisibleFilters and ExcludeVisibleFilters choose the filterable
	// columns. Only one of them may be set.
	VisibleFilters        []string
	ExcludeVisibleFilters []string

	// RichTextColumns are edited and rendered as markdown.
	RichTextColumns []string

	// LinkColumn links a listed row to its edit page. Defaults to the
	// primary key.
	LinkColumn string

	// MenuGroup groups tables in the navigation.
	MenuGroup string

	// OrderBy is the default ordering. Defaults to the primary key ascending.
	OrderBy []OrderBy

	// TimeResolution sets the input step in seconds for date and time columns.
	TimeResolution map[string]int

	// MediaStorage stores uploaded files for text or array columns.
	MediaStorage []media.Storage

	// Readable is how rows are shown when other tables reference them.
	// Defaults to the primary key.
	Readable crud.Readable

	// Defaults pre-fill the form for new rows.
	Defaults map[string]any

	Hooks      crud.Hooks
	Actions    []Action
	Validators []Validator

	// ReadOnly disables writes to this table.
	ReadOnly bool

	// PageSize overrides Config.PageSize.
	PageSize int
}

// TableName returns the name of the configured table.
func (c *TableConfig) TableName() string {
	if c.Table != nil {
		return c.Table.Name
	}
	return c.Name
}

// ResolvedTable is a validated TableConfig with every default applied.
type ResolvedTable struct {
	Config *TableConfig
	Table  *schema.Table

	VisibleColumns []string
	VisibleFilters []string
	LinkColumn     string
	Order          []crud.Order
	RichText       []string
	TimeResolution map[string]int
	ReadOnly       bool

	media map[string]media.Storage
}

// Name returns the table name.
func (r *ResolvedTable) Name() string { return r.Table.Name }

// IsRichText reports whether column holds markdown.
func (r *ResolvedTable) IsRichText(column string) bool {
	return slices.Contains(r.RichText, column)
}

// MediaStorage returns the storage of column.
func (r *ResolvedTable) MediaStorage(column string) (media.Storage, bool) {
	s, ok := r.media[column]
	return s, ok
}

// MediaColumns returns the columns backed by a media storage in column order.
func (r *ResolvedTable) MediaColumns() []string {
	var cols []string
	for _, c := range r.Table.Columns {
		if _, ok := r.media[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// Action returns the named action.
func (r *ResolvedTable) Action(name string) (*Action, error) {
	for i := range r.Config.Actions {
		if r.Config.Actions[i].Name == name {
			return &r.Config.Actions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
}

// Validate runs the table validators for op.
func (r *ResolvedTable) Validate(ctx context.Context, op Operation) error {
	if op.IsWrite() && r.ReadOnly {
		return NewTableError(string(op), r.Name(), ErrReadOnly)
	}
	for _, v := range r.Config.Validators {
		if err := v(ctx, op); err != nil {
			return NewTableError(string(op), r.Name(), fmt.Errorf("%w: %v", ErrRejected, err))
		}
	}
	return nil
}

// Resolve validates cfg and computes the presentation of its table.
func Resolve(cfg *TableConfig) (*ResolvedTable, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: table config is nil", ErrInvalidConfig)
	}
	t := cfg.Table
	if t == nil {
		return nil, fmt.Errorf("%w: table %q is not loaded", ErrInvalidConfig, cfg.Name)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	pk := t.PrimaryKey()

	r := &ResolvedTable{
		Config:         cfg,
		Table:          t,
		TimeResolution: make(map[string]int),
		ReadOnly:       cfg.ReadOnly,
		media:          make(map[string]media.Storage),
	}

	var err error
	if r.VisibleColumns, err = pick(t, "visible columns", cfg.VisibleColumns, cfg.ExcludeVisibleColumns); err != nil {
		return nil, err
	}
	if !slices.Contains(r.VisibleColumns, pk.Name) {
		r.VisibleColumns = append([]string{pk.Name}, r.VisibleColumns...)
	}
	if r.VisibleFilters, err = pick(t, "visible filters", cfg.VisibleFilters, cfg.ExcludeVisibleFilters); err != nil {
		return nil, err
	}

	r.LinkColumn = cfg.LinkColumn
	if r.LinkColumn == "" {
		r.LinkColumn = pk.Name
	} else if err := requireColumn(t, "link column", r.LinkColumn); err != nil {
		return nil, err
	}

	for _, o := range cfg.OrderBy {
		if err := requireColumn(t, "order", o.Column); err != nil {
			return nil, err
		}
		r.Order = append(r.Order, crud.Order{Column: o.Column, Ascending: o.Ascending})
	}
	if len(r.Order) == 0 {
		r.Order = []crud.Order{{Column: pk.Name, Ascending: true}}
	}

	for _, name := range cfg.RichTextColumns {
		if err := requireColumn(t, "rich text column", name); err != nil {
			return nil, err
		}
		if typ := t.Column(name).Type; typ != schema.Text && typ != schema.Varchar {
			return nil, fmt.Errorf("%w: rich text column %s.%s is %s", ErrInvalidConfig, t.Name, name, typ)
		}
		r.RichText = append(r.RichText, name)
	}

	for name, step := range cfg.TimeResolution {
		if err := requireColumn(t, "time resolution", name); err != nil {
			return nil, err
		}
		if !t.Column(name).Type.IsTemporal() {
			return nil, fmt.Errorf("%w: time resolution on %s.%s which is not a date or time", ErrInvalidConfig, t.Name, name)
		}
		if step <= 0 {
			return nil, fmt.Errorf("%w: time resolution of %s.%s must be positive", ErrInvalidConfig, t.Name, name)
		}
		r.TimeResolution[name] = step
	}

	for _, s := range cfg.MediaStorage {
		if s.Table() != t.Name {
			return nil, fmt.Errorf("%w: media storage for table %q configured on %q", ErrInvalidConfig, s.Table(), t.Name)
		}
		if err := media.ValidateColumn(t.Column(s.Column())); err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidConfig, t.Name, s.Column(), err)
		}
		if _, dup := r.media[s.Column()]; dup {
			return nil, fmt.Errorf("%w: two media storages for %s.%s", ErrInvalidConfig, t.Name, s.Column())
		}
		r.media[s.Column()] = s
	}

	seen := make(map[string]bool, len(cfg.Actions))
	for _, a := range cfg.Actions {
		if a.Name == "" || a.Handler == nil {
			return nil, fmt.Errorf("%w: action of %s needs a name and a handler", ErrInvalidConfig, t.Name)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("%w: duplicate action %q on %s", ErrInvalidConfig, a.Name, t.Name)
		}
		seen[a.Name] = true
	}

	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("%w: page size of %s is negative", ErrInvalidConfig, t.Name)
	}
	return r, nil
}

// spec converts the resolved table into a crud registration.
func (r *ResolvedTable) spec() *crud.TableSpec {
	return &crud.TableSpec{
		Table:        r.Table,
		Readable:     r.Config.Readable,
		DefaultOrder: r.Order,
		PageSize:     r.Config.PageSize,
		Defaults:     r.Config.Defaults,
		Hooks:        r.Config.Hooks,
	}
}

// pick returns the non-secret columns of t in declaration order, limited to
// include or excluding exclude.
func pick(t *schema.Table, what string, include, exclude []string) ([]string, error) {
	if len(include) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("%w: %s of %s cannot be both included and excluded", ErrInvalidConfig, what, t.Name)
	}
	for _, name := range append(slices.Clone(include), exclude...) {
		if err := requireColumn(t, what, name); err != nil {
			return nil, err
		}
	}

	var out []string
	for _, c := range t.Columns {
		switch {
		case len(include) > 0 && !slices.Contains(include, c.Name):
			continue
		case slices.Contains(exclude, c.Name):
			continue
		case c.Secret:
			continue
		}
		out = append(out, c.Name)
	}
	return out, nil
}

func requireColumn(t *schema.Table, what, name string) error {
	if t.Column(name) == nil {
		return fmt.Errorf("%w: %s %s.%s", ErrUnknownColumn, what, t.Name, name)
	}
	return nil
}
