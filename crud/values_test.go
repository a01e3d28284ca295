package crud

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/youssefsiam38/tableadmin/schema"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		col     schema.Column
		in      any
		want    any
		wantErr bool
	}{
		{"integer from string", schema.Column{Type: schema.Integer}, "12", int64(12), false},
		{"integer from whole float", schema.Column{Type: schema.BigInt}, 12.0, int64(12), false},
		{"integer from fraction", schema.Column{Type: schema.Integer}, 12.5, nil, true},
		{"float from string", schema.Column{Type: schema.Float}, "1.5", 1.5, false},
		{"boolean from checkbox", schema.Column{Type: schema.Boolean}, "on", true, false},
		{"boolean garbage", schema.Column{Type: schema.Boolean}, "maybe", nil, true},
		{"date", schema.Column{Type: schema.Date}, "2024-02-29", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), false},
		{"date from timestamp", schema.Column{Type: schema.Date}, "2024-02-29T13:00:00Z", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), false},
		{"timestamp with zone", schema.Column{Type: schema.Timestamptz}, "2024-02-29T13:00:00+02:00", time.Date(2024, 2, 29, 11, 0, 0, 0, time.UTC), false},
		{"datetime-local", schema.Column{Type: schema.Timestamp}, "2024-02-29T13:00", time.Date(2024, 2, 29, 13, 0, 0, 0, time.UTC), false},
		{"time", schema.Column{Type: schema.Time}, "09:30", "09:30:00", false},
		{"interval seconds", schema.Column{Type: schema.Interval}, 90.0, "90 seconds", false},
		{"uuid", schema.Column{Type: schema.UUID}, "6BA7B810-9DAD-11D1-80B4-00C04FD430C8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", false},
		{"bad uuid", schema.Column{Type: schema.UUID}, "nope", nil, true},
		{"json object", schema.Column{Type: schema.JSONB}, map[string]any{"a": 1.0}, `{"a":1}`, false},
		{"json text", schema.Column{Type: schema.JSON}, `[1, 2]`, `[1, 2]`, false},
		{"bad json text", schema.Column{Type: schema.JSON}, `{`, nil, true},
		{"int array from json", schema.Column{Type: schema.Array, ElementType: schema.Integer}, "[1, 2]", []int64{1, 2}, false},
		{"text array from csv", schema.Column{Type: schema.Array}, "a, b", []string{"a", "b"}, false},
		{"email", schema.Column{Type: schema.Email}, "a@example.com", "a@example.com", false},
		{"bad email", schema.Column{Type: schema.Email}, "Alice <a@example.com>", nil, true},
		{"choice", schema.Column{Type: schema.Varchar, Choices: []schema.Choice{{Value: "m"}, {Value: "f"}}}, "f", "f", false},
		{"bad choice", schema.Column{Type: schema.Varchar, Choices: []schema.Choice{{Value: "m"}, {Value: "f"}}}, "x", nil, true},
		{"nil", schema.Column{Type: schema.Integer}, nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(&tt.col, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Coerce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Coerce() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		col  schema.Column
		in   any
		want any
	}{
		{"sqlite boolean", schema.Column{Type: schema.Boolean}, int64(1), true},
		{"pq boolean", schema.Column{Type: schema.Boolean}, "f", false},
		{"numeric text", schema.Column{Type: schema.Numeric}, "12.50", 12.5},
		{"integer numeric", schema.Column{Type: schema.Numeric}, int64(15), 15.0},
		{"date", schema.Column{Type: schema.Date}, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "2024-01-02"},
		{"timestamp text", schema.Column{Type: schema.Timestamp}, "2024-01-02 03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"json text", schema.Column{Type: schema.JSON}, `{"a":[1]}`, map[string]any{"a": []any{1.0}}},
		{"sqlite array", schema.Column{Type: schema.Array, ElementType: schema.Integer}, "[1,2]", []any{int64(1), int64(2)}},
		{"pq array", schema.Column{Type: schema.Array}, `{a,"b c"}`, []any{"a", "b c"}},
		{"bytes to text", schema.Column{Type: schema.Text}, []byte("hi"), "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, normalize(&tt.col, tt.in)); diff != "" {
				t.Errorf("normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike() = %q", got)
	}
}
