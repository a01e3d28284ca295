package i18n

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustLoad(t *testing.T) *Bundle {
	t.Helper()
	b, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}
	return b
}

func TestLoadEmbedded(t *testing.T) {
	b := mustLoad(t)

	var codes []string
	for _, l := range b.Languages() {
		codes = append(codes, l.Code)
	}
	if diff := cmp.Diff([]string{"de", "en", "es", "fr", "pt"}, codes); diff != "" {
		t.Errorf("Languages() mismatch (-want +got):\n%s", diff)
	}
	if b.Default() != "en" {
		t.Errorf("Default() = %q, want en", b.Default())
	}
}

func TestCatalogsComplete(t *testing.T) {
	b := mustLoad(t)
	base := b.catalogs[BaseLanguage]

	for _, l := range b.Languages() {
		c := b.catalogs[l.Code]
		for key := range base.Messages {
			if _, ok := c.Messages[key]; !ok {
				t.Errorf("%s: missing key %q", l.Code, key)
			}
		}
		for key := range c.Messages {
			if _, ok := base.Messages[key]; !ok {
				t.Errorf("%s: key %q not in base catalog", l.Code, key)
			}
		}
	}
}

func TestTranslate(t *testing.T) {
	b := mustLoad(t)
	b.catalogs["de"].Messages = map[string]string{"table.save": "Speichern"}

	tests := []struct {
		code, key, want string
	}{
		{"de", "table.save", "Speichern"},
		{"de", "table.cancel", "Cancel"},
		{"xx", "table.save", "Save"},
		{"fr", "no.such.key", "no.such.key"},
	}
	for _, tt := range tests {
		if got := b.Translate(tt.code, tt.key); got != tt.want {
			t.Errorf("Translate(%q, %q) = %q, want %q", tt.code, tt.key, got, tt.want)
		}
	}

	c, err := b.Get("de")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.Messages["table.cancel"] != "Cancel" {
		t.Errorf("Get() did not merge English fallback")
	}
	if _, err := b.Get("xx"); !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("Get(xx) error = %v, want ErrUnknownLanguage", err)
	}
}

func TestMatch(t *testing.T) {
	b := mustLoad(t)

	tests := []struct {
		accept string
		want   string
	}{
		{"de-CH,de;q=0.9", "de"},
		{"pt-BR", "pt"},
		{"fr;q=0.5,es;q=0.8", "es"},
		{"ja", "en"},
		{"", "en"},
		{"!!!", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			if got := b.Match(tt.accept); got != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.accept, got, tt.want)
			}
		})
	}
}

func TestRestrict(t *testing.T) {
	b := mustLoad(t)

	r, err := b.Restrict([]string{"de", "fr"}, "de")
	if err != nil {
		t.Fatalf("Restrict() error = %v", err)
	}
	if r.Default() != "de" {
		t.Errorf("Default() = %q, want de", r.Default())
	}
	if r.Has("en") {
		t.Error("en should not be offered")
	}
	if got := r.Match("ja"); got != "de" {
		t.Errorf("Match(ja) = %q, want de", got)
	}
	if got := r.Match("fr-CA"); got != "fr" {
		t.Errorf("Match(fr-CA) = %q, want fr", got)
	}
	// English still backs missing keys.
	if got := r.Translate("de", "no.such.key"); got != "no.such.key" {
		t.Errorf("Translate() = %q", got)
	}

	if _, err := b.Restrict([]string{"de"}, "fr"); !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("Restrict() with foreign default error = %v", err)
	}
	if _, err := b.Restrict([]string{"xx"}, ""); !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("Restrict(xx) error = %v", err)
	}
}

func TestResolve(t *testing.T) {
	b := mustLoad(t)

	tests := []struct {
		name        string
		url         string
		cookie      string
		accept      string
		want        string
		wantPersist bool
	}{
		{"query", "/?lang=fr", "de", "es", "fr", true},
		{"unknown query falls through", "/?lang=xx", "de", "", "de", false},
		{"cookie", "/", "de", "es", "de", false},
		{"accept language", "/", "", "es-MX", "es", false},
		{"default", "/", "", "", "en", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookieName, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			got, persist := b.Resolve(req)
			if got != tt.want || persist != tt.wantPersist {
				t.Errorf("Resolve() = (%q, %v), want (%q, %v)", got, persist, tt.want, tt.wantPersist)
			}
		})
	}
}
