// Package forms provides custom admin forms.
//
// A form is a list of typed fields plus a handler. Submitted data is
// validated and coerced field by field before the handler runs; the handler
// either returns a message or a file to download.
package forms

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Errors returned by the forms package.
var (
	ErrInvalidForm  = errors.New("forms: invalid form definition")
	ErrFormNotFound = errors.New("forms: form not found")
	ErrValidation   = errors.New("forms: validation failed")
)

// FieldType is the input type of a field.
type FieldType string

const (
	Text     FieldType = "text"
	TextArea FieldType = "textarea"
	Number   FieldType = "number"
	Integer  FieldType = "integer"
	Boolean  FieldType = "boolean"
	Email    FieldType = "email"
	Date     FieldType = "date"
	Choice   FieldType = "choice"
)

func (t FieldType) valid() bool {
	switch t {
	case Text, TextArea, Number, Integer, Boolean, Email, Date, Choice:
		return true
	}
	return false
}

// Option is one choice of a Choice field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field describes one form input.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label,omitempty"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Default  any       `json:"default,omitempty"`
	Choices  []Option  `json:"choices,omitempty"`
	HelpText string    `json:"help_text,omitempty"`
}

// Result is what a form handler produces. Either Message is set, or Body
// is a file to download named FileName.
type Result struct {
	Message     string
	FileName    string
	ContentType string
	Body        []byte
}

// IsFile reports whether the result is a download.
func (r *Result) IsFile() bool { return r != nil && r.FileName != "" }

// Handler processes validated form data.
type Handler func(ctx context.Context, data map[string]any) (*Result, error)

// Form is a custom admin form.
type Form struct {
	Name        string
	Slug        string
	Description string
	Fields      []Field
	Handler     Handler
}

// ValidationError lists per-field problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a form name to a URL slug.
func Slugify(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// Init validates the definition and derives the slug when empty.
func (f *Form) Init() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidForm)
	}
	if f.Slug == "" {
		f.Slug = Slugify(f.Name)
	}
	if f.Slug == "" {
		return fmt.Errorf("%w: %q does not produce a slug", ErrInvalidForm, f.Name)
	}
	if f.Handler == nil {
		return fmt.Errorf("%w: %s: handler is required", ErrInvalidForm, f.Name)
	}
	seen := make(map[string]bool, len(f.Fields))
	for i := range f.Fields {
		field := &f.Fields[i]
		if field.Name == "" {
			return fmt.Errorf("%w: %s: field %d has no name", ErrInvalidForm, f.Name, i)
		}
		if seen[field.Name] {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidForm, f.Name, field.Name)
		}
		seen[field.Name] = true
		if field.Type == "" {
			field.Type = Text
		}
		if !field.Type.valid() {
			return fmt.Errorf("%w: %s: field %q has unknown type %q", ErrInvalidForm, f.Name, field.Name, field.Type)
		}
		if field.Type == Choice && len(field.Choices) == 0 {
			return fmt.Errorf("%w: %s: choice field %q has no choices", ErrInvalidForm, f.Name, field.Name)
		}
		if field.Label == "" {
			field.Label = labelFor(field.Name)
		}
	}
	return nil
}

func labelFor(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Defaults returns the default value of every field.
func (f *Form) Defaults() map[string]any {
	out := make(map[string]any, len(f.Fields))
	for _, field := range f.Fields {
		out[field.Name] = field.Default
	}
	return out
}

// Validate checks and coerces data. Unknown keys are dropped. String values
// from HTML forms are converted to the field type.
func (f *Form) Validate(data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(f.Fields))
	problems := map[string]string{}

	for _, field := range f.Fields {
		raw, present := data[field.Name]
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" && field.Type != Boolean {
			present = false
		}
		if !present || raw == nil {
			if field.Required && field.Type != Boolean {
				problems[field.Name] = "this field is required"
				continue
			}
			if field.Type == Boolean {
				out[field.Name] = false
			} else {
				out[field.Name] = nil
			}
			continue
		}

		v, err := coerce(field, raw)
		if err != nil {
			problems[field.Name] = err.Error()
			continue
		}
		out[field.Name] = v
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}
	return out, nil
}

func coerce(field Field, raw any) (any, error) {
	switch field.Type {
	case Text, TextArea:
		return fmt.Sprint(raw), nil
	case Email:
		s := strings.TrimSpace(fmt.Sprint(raw))
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return nil, errors.New("enter a valid email address")
		}
		return s, nil
	case Integer:
		switch v := raw.(type) {
		case float64:
			if v != float64(int64(v)) {
				return nil, errors.New("enter a whole number")
			}
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(raw)), 10, 64)
		if err != nil {
			return nil, errors.New("enter a whole number")
		}
		return n, nil
	case Number:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(raw)), 64)
		if err != nil {
			return nil, errors.New("enter a number")
		}
		return n, nil
	case Boolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "", "false", "off", "0", "no":
				return false, nil
			case "true", "on", "1", "yes":
				return true, nil
			}
		}
		return nil, errors.New("enter true or false")
	case Date:
		t, err := time.Parse(time.DateOnly, strings.TrimSpace(fmt.Sprint(raw)))
		if err != nil {
			return nil, errors.New("enter a date as YYYY-MM-DD")
		}
		return t.Format(time.DateOnly), nil
	case Choice:
		s := fmt.Sprint(raw)
		for _, c := range field.Choices {
			if c.Value == s {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%q is not a valid choice", s)
	}
	return raw, nil
}

// Submit validates data and runs the handler.
func (f *Form) Submit(ctx context.Context, data map[string]any) (*Result, error) {
	clean, err := f.Validate(data)
	if err != nil {
		return nil, err
	}
	res, err := f.Handler(ctx, clean)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}

// Registry holds forms by slug in registration order.
type Registry struct {
	forms  []*Form
	bySlug map[string]*Form
}

// NewRegistry initializes forms and rejects duplicate slugs.
func NewRegistry(forms ...*Form) (*Registry, error) {
	r := &Registry{bySlug: make(map[string]*Form, len(forms))}
	for _, f := range forms {
		if err := f.Init(); err != nil {
			return nil, err
		}
		if _, dup := r.bySlug[f.Slug]; dup {
			return nil, fmt.Errorf("%w: duplicate slug %q", ErrInvalidForm, f.Slug)
		}
		r.bySlug[f.Slug] = f
		r.forms = append(r.forms, f)
	}
	return r, nil
}

// Forms returns all forms in registration order.
func (r *Registry) Forms() []*Form {
	return r.forms
}

// Get returns the form with the given slug.
func (r *Registry) Get(slug string) (*Form, error) {
	f, ok := r.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFormNotFound, slug)
	}
	return f, nil
}
