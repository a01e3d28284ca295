package crud

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/internal/testutil"
	"github.com/youssefsiam38/tableadmin/schema"
)

func newFixtureService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewFixtureDB(t)
	ctx := context.Background()
	tables, err := schema.Inspect(ctx, db.Driver.GetExecutor(), driver.SQLite, "director", "studio", "movie", "ticket")
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	readables := map[string]Readable{
		"director": {Columns: []string{"name"}},
		"studio":   {Template: "Studio %s", Columns: []string{"name"}},
		"movie":    {Columns: []string{"name"}},
	}
	svc := New(db.Driver, Config{})
	for _, table := range tables {
		if err := svc.Register(&TableSpec{Table: table, Readable: readables[table.Name]}); err != nil {
			t.Fatalf("Register(%s) error = %v", table.Name, err)
		}
	}
	return svc
}

func ids(rows []map[string]any) []int64 {
	out := make([]int64, len(rows))
	for i, row := range rows {
		out[i] = row["id"].(int64)
	}
	return out
}

func mustParse(t *testing.T, svc *Service, table, raw string) Query {
	t.Helper()
	values, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("url.ParseQuery(%q) error = %v", raw, err)
	}
	spec, err := svc.Spec(table)
	if err != nil {
		t.Fatalf("Spec() error = %v", err)
	}
	q, err := ParseQuery(spec.Table, values)
	if err != nil {
		t.Fatalf("ParseQuery(%q) error = %v", raw, err)
	}
	return q
}

func TestRegister_Errors(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	svc := New(db.Driver, Config{})
	users := func() *schema.Table {
		return &schema.Table{Name: "account", Columns: []*schema.Column{
			{Name: "id", Type: schema.Serial, PrimaryKey: true},
			{Name: "email", Type: schema.Email},
			{Name: "password", Type: schema.Varchar, Secret: true},
		}}
	}

	tests := []struct {
		name    string
		spec    *TableSpec
		wantErr error
	}{
		{"unknown readable column", &TableSpec{Table: users(), Readable: Readable{Columns: []string{"nickname"}}}, ErrUnknownColumn},
		{"secret readable column", &TableSpec{Table: users(), Readable: Readable{Columns: []string{"email", "password"}}}, nil},
		{"template placeholder count", &TableSpec{Table: users(), Readable: Readable{Template: "%s <%s>", Columns: []string{"email"}}}, nil},
		{"unknown order column", &TableSpec{Table: users(), DefaultOrder: []Order{{Column: "created"}}}, ErrUnknownColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Register(tt.spec)
			if err == nil {
				t.Fatal("Register() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
			if _, err := svc.Spec("account"); !errors.Is(err, ErrTableNotFound) {
				t.Errorf("rejected table was registered: %v", err)
			}
		})
	}

	if err := svc.Register(&TableSpec{Table: users(), Readable: Readable{Columns: []string{"email"}}}); err != nil {
		t.Errorf("Register(valid) error = %v", err)
	}
}

func TestParseQuery(t *testing.T) {
	svc := newFixtureService(t)
	q := mustParse(t, svc, "movie", "name=star&rating=90&rating__operator=gte&__order=-rating,name&__page=2&__page_size=10&__readable=true&__visible_fields=name")

	want := Query{
		Filters: []Filter{
			{Column: "name", Operator: Equal, Match: Contains, Values: []any{"star"}},
			{Column: "rating", Operator: GreaterOrEqual, Values: []any{90.0}},
		},
		Order:         []Order{{Column: "rating"}, {Column: "name", Ascending: true}},
		Page:          2,
		PageSize:      10,
		VisibleFields: []string{"name"},
		Readable:      true,
	}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Errorf("ParseQuery() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseQuery_Errors(t *testing.T) {
	svc := newFixtureService(t)
	spec, _ := svc.Spec("movie")

	tests := []struct {
		raw  string
		want error
	}{
		{"nope=1", ErrUnknownColumn},
		{"nope__operator=gt", ErrUnknownColumn},
		{"rating__operator=like", ErrInvalidQuery},
		{"name__match=fuzzy", ErrInvalidQuery},
		{"__bogus=1", ErrInvalidQuery},
		{"duration=abc", ErrInvalidQuery},
		{"__page=0", ErrInvalidQuery},
		{"__order=-nope", ErrUnknownColumn},
		{"__visible_fields=name,nope", ErrUnknownColumn},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			values, _ := url.ParseQuery(tt.raw)
			if _, err := ParseQuery(spec.Table, values); !errors.Is(err, tt.want) {
				t.Errorf("ParseQuery() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestList_Filters(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()

	tests := []struct {
		raw  string
		want []int64
	}{
		{"", []int64{1, 2, 3, 4, 5}},
		{"name=THE", []int64{2, 5}},
		{"name=the&name__match=starts", []int64{2, 5}},
		{"name=Alien&name__match=exact", []int64{3}},
		{"name=alien&name__match=exact", []int64{}},
		{"name=er&name__match=ends", []int64{4, 5}},
		{"name=star&name=alien", []int64{1, 3}},
		{"name=the&name__operator=ne", []int64{1, 3, 4}},
		{"rating=97&rating__operator=gte", []int64{3, 5}},
		{"rating=90&rating__operator=lt", []int64{4}},
		{"director_id=1&director_id=3", []int64{1, 2, 5}},
		{"director_id=1&director_id__operator=ne", []int64{3, 4, 5}},
		{"studio_id__operator=is_null", []int64{4, 5}},
		{"description__operator=not_null", []int64{1, 3}},
		{"won_oscar=false", []int64{4}},
		{"duration=117", []int64{3, 4}},
		{"__order=-rating", []int64{5, 3, 2, 1, 4}},
		{"__order=duration", []int64{3, 4, 1, 2, 5}},
		{"__order=-duration,-id", []int64{5, 2, 1, 4, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			res, err := svc.List(ctx, "movie", mustParse(t, svc, "movie", tt.raw))
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(res.Rows)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
			if res.Total != int64(len(tt.want)) {
				t.Errorf("Total = %d, want %d", res.Total, len(tt.want))
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	svc := newFixtureService(t)

	res, err := svc.List(context.Background(), "movie", Query{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if diff := cmp.Diff([]int64{3, 4}, ids(res.Rows)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if res.Total != 5 || res.Pages() != 3 {
		t.Errorf("Total = %d, Pages = %d, want 5 and 3", res.Total, res.Pages())
	}

	res, err = svc.List(context.Background(), "movie", Query{PageSize: MaxPageSize + 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.PageSize != MaxPageSize {
		t.Errorf("PageSize = %d, want %d", res.PageSize, MaxPageSize)
	}
}

func TestList_ReadableAndVisibleFields(t *testing.T) {
	svc := newFixtureService(t)

	res, err := svc.List(context.Background(), "movie", mustParse(t, svc, "movie",
		"__visible_fields=name,director_id,studio_id&__readable=true&id=1&id=4"))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []map[string]any{
		{
			"id": int64(1), "name": "Star Wars",
			"director_id": int64(1), "director_id_readable": "George Lucas",
			"studio_id": int64(1), "studio_id_readable": "Studio Lucasfilm",
		},
		{
			"id": int64(4), "name": "Blade Runner",
			"director_id": int64(2), "director_id_readable": "Ridley Scott",
			"studio_id": nil, "studio_id_readable": nil,
		},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestGet(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()

	movie, err := svc.Get(ctx, "movie", int64(1), false)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	want := map[string]any{
		"id":                int64(1),
		"name":              "Star Wars",
		"rating":            93.3,
		"duration":          int64(121),
		"director_id":       int64(1),
		"studio_id":         int64(1),
		"oscar_nominations": int64(10),
		"won_oscar":         true,
		"description":       "A *space* opera.",
		"release_date":      nil,
		"poster":            nil,
	}
	if diff := cmp.Diff(want, movie); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	ticket, err := svc.Get(ctx, "ticket", int64(2), false)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ticket["price"] != 15.0 || ticket["booked_on"] != "2024-01-03" {
		t.Errorf("ticket = %v", ticket)
	}

	if _, err := svc.Get(ctx, "movie", int64(99), false); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(99) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, "nope", int64(1), false); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrTableNotFound", err)
	}
}

func TestCreate(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()

	row, err := svc.Create(ctx, "movie", map[string]any{
		"id":           99.0,
		"name":         "Aliens",
		"rating":       98.0,
		"director_id":  "",
		"won_oscar":    "on",
		"release_date": "1986-07-18T10:30",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if row["id"] != int64(6) {
		t.Errorf("id = %v, want 6", row["id"])
	}
	if row["director_id"] != nil || row["won_oscar"] != true || row["oscar_nominations"] != int64(0) {
		t.Errorf("row = %v", row)
	}
	released, ok := row["release_date"].(time.Time)
	if !ok || !released.Equal(time.Date(1986, 7, 18, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("release_date = %#v", row["release_date"])
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "movie", map[string]any{"rating": "high"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create() error = %v, want *ValidationError", err)
	}
	if _, ok := verr.Fields["name"]; !ok {
		t.Error("missing required error for name")
	}
	if _, ok := verr.Fields["rating"]; !ok {
		t.Error("missing type error for rating")
	}

	if _, err := svc.Create(ctx, "movie", map[string]any{"name": "x", "budget": 1}); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("unknown column error = %v, want ErrUnknownColumn", err)
	}
	if _, err := svc.Create(ctx, "movie", map[string]any{"name": nil}); !errors.Is(err, ErrValidation) {
		t.Errorf("null name error = %v, want ErrValidation", err)
	}
}

func TestUpdate(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()

	row, err := svc.Update(ctx, "movie", int64(4), map[string]any{"studio_id": 2.0, "rating": "90.5"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if row["studio_id"] != int64(2) || row["rating"] != 90.5 || row["name"] != "Blade Runner" {
		t.Errorf("row = %v", row)
	}

	if _, err := svc.Update(ctx, "movie", int64(99), map[string]any{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(99) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Update(ctx, "movie", int64(4), map[string]any{"id": 7}); !errors.Is(err, ErrValidation) {
		t.Errorf("primary key update error = %v, want ErrValidation", err)
	}
}

func TestDelete(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()

	if err := svc.Delete(ctx, "movie", int64(1)); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// Tickets of movie 1 cascade.
	n, err := svc.Count(ctx, "ticket", nil)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("tickets = %d, want 1", n)
	}
	if err := svc.Delete(ctx, "movie", int64(1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	deleted, err := svc.DeleteMany(ctx, "movie", []any{int64(2), int64(3), int64(42)})
	if err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
}

func TestHooks(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()
	spec, _ := svc.Spec("studio")

	spec.Hooks.PreSave = []SaveHook{func(ctx context.Context, row map[string]any) (map[string]any, error) {
		row["facilities"] = "added by hook"
		return row, nil
	}}
	spec.Hooks.PrePatch = []PatchHook{func(ctx context.Context, id any, values map[string]any) (map[string]any, error) {
		values["name"] = values["name"].(string) + "!"
		return values, nil
	}}
	errBlocked := errors.New("blocked")
	spec.Hooks.PreDelete = []DeleteHook{func(ctx context.Context, id any) error {
		return errBlocked
	}}

	row, err := svc.Create(ctx, "studio", map[string]any{"name": "Pixar"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if row["facilities"] != "added by hook" {
		t.Errorf("facilities = %v", row["facilities"])
	}

	row, err = svc.Update(ctx, "studio", row["id"], map[string]any{"name": "Pixar Studios"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if row["name"] != "Pixar Studios!" {
		t.Errorf("name = %v", row["name"])
	}

	if err := svc.Delete(ctx, "studio", row["id"]); !errors.Is(err, errBlocked) {
		t.Errorf("Delete() error = %v, want hook error", err)
	}
	if _, err := svc.Get(ctx, "studio", row["id"], false); err != nil {
		t.Errorf("row should survive a blocked delete: %v", err)
	}
}

func TestIDs(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()

	got, err := svc.IDs(ctx, "director", IDsQuery{})
	if err != nil {
		t.Fatalf("IDs() error = %v", err)
	}
	want := []IDReadable{{int64(1), "George Lucas"}, {int64(3), "Kathryn Bigelow"}, {int64(2), "Ridley Scott"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
	}

	got, err = svc.IDs(ctx, "director", IDsQuery{Search: "RI"})
	if err != nil {
		t.Fatalf("IDs() error = %v", err)
	}
	if diff := cmp.Diff([]IDReadable{{int64(2), "Ridley Scott"}}, got); diff != "" {
		t.Errorf("IDs(search) mismatch (-want +got):\n%s", diff)
	}

	got, err = svc.IDs(ctx, "studio", IDsQuery{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("IDs() error = %v", err)
	}
	if diff := cmp.Diff([]IDReadable{{int64(1), "Studio Lucasfilm"}}, got); diff != "" {
		t.Errorf("IDs(page) mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaults(t *testing.T) {
	svc := newFixtureService(t)
	spec, _ := svc.Spec("movie")
	spec.Defaults = map[string]any{"rating": 50.0}

	got, err := svc.Defaults("movie")
	if err != nil {
		t.Fatalf("Defaults() error = %v", err)
	}
	want := map[string]any{
		"name": "", "rating": 50.0, "duration": nil, "director_id": nil, "studio_id": nil,
		"oscar_nominations": nil, "won_oscar": nil, "description": nil, "release_date": nil, "poster": nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Defaults() mismatch (-want +got):\n%s", diff)
	}
}

func TestReferenceCount(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()

	n, err := svc.ReferenceCount(ctx, "ticket", "movie_id", int64(1))
	if err != nil {
		t.Fatalf("ReferenceCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ReferenceCount() = %d, want 2", n)
	}

	refs, err := svc.ReferencingIDs(ctx, "movie", "id", "director_id", int64(2))
	if err != nil {
		t.Fatalf("ReferencingIDs() error = %v", err)
	}
	if diff := cmp.Diff([]any{int64(3), int64(4)}, refs); diff != "" {
		t.Errorf("ReferencingIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestColumnValues(t *testing.T) {
	svc := newFixtureService(t)

	values, err := svc.ColumnValues(context.Background(), "director", "gender")
	if err != nil {
		t.Fatalf("ColumnValues() error = %v", err)
	}
	got := make([]string, len(values))
	for i, v := range values {
		got[i] = v.(string)
	}
	sort.Strings(got)
	if diff := cmp.Diff([]string{"f", "m"}, got); diff != "" {
		t.Errorf("ColumnValues() mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.ColumnValues(context.Background(), "director", "nope"); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("ColumnValues(nope) error = %v, want ErrUnknownColumn", err)
	}
}

func TestExportCSV(t *testing.T) {
	svc := newFixtureService(t)
	ctx := context.Background()

	var buf bytes.Buffer
	q := mustParse(t, svc, "movie", "director_id=2&__visible_fields=name,director_id,won_oscar&__page_size=1")
	err := svc.ExportCSV(ctx, &buf, "movie", q, CSVOptions{Delimiter: ';', Readable: true, VerboseHeaders: true})
	if err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	want := "Id;Name;Director Id;Won Oscar\n3;Alien;Ridley Scott;true\n4;Blade Runner;Ridley Scott;false\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("ExportCSV() mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if err := svc.ExportCSV(ctx, &buf, "ticket", Query{}, CSVOptions{}); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	want = "id,movie_id,price,booked_on\n1,1,12.5,2024-01-02\n2,1,15,2024-01-03\n3,3,10,\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("ExportCSV() mismatch (-want +got):\n%s", diff)
	}
}
