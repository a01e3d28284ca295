// Package i18n translates admin UI strings.
//
// Catalogs are embedded YAML files, one per language, holding a display
// name and a flat map of message keys to text. Lookups fall back to English
// and then to the key itself.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	// BaseLanguage holds every message key and is the fallback for all others.
	BaseLanguage = "en"

	// LangParam is the query parameter used to select a language.
	LangParam = "lang"

	// LangCookieName stores the chosen language.
	LangCookieName = "tableadmin_lang"
)

// ErrUnknownLanguage indicates a language without a catalog.
var ErrUnknownLanguage = errors.New("i18n: unknown language")

//go:embed locales/*.yaml
var embeddedFS embed.FS

// Catalog holds the messages of one language.
type Catalog struct {
	Code     string            `json:"code" yaml:"-"`
	Name     string            `json:"name" yaml:"name"`
	Messages map[string]string `json:"translations" yaml:"messages"`
}

// Language describes an available language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Bundle is an immutable set of catalogs.
type Bundle struct {
	catalogs    map[string]*Catalog
	codes       []string
	defaultCode string
	matcher     language.Matcher
}

// LoadEmbedded loads the catalogs shipped with the package.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embeddedFS)
}

// LoadFromFS loads every locales/*.yaml file of fsys. The file name is the
// language code.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob catalogs: %w", err)
	}
	sort.Strings(paths)

	catalogs := make(map[string]*Catalog, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var c Catalog
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		c.Code = strings.TrimSuffix(path.Base(p), ".yaml")
		if c.Name == "" {
			return nil, fmt.Errorf("catalog %s: name is required", p)
		}
		if c.Messages == nil {
			c.Messages = map[string]string{}
		}
		catalogs[c.Code] = &c
	}
	if _, ok := catalogs[BaseLanguage]; !ok {
		return nil, fmt.Errorf("base language %q has no catalog", BaseLanguage)
	}

	codes := make([]string, 0, len(catalogs))
	for code := range catalogs {
		codes = append(codes, code)
	}
	return newBundle(catalogs, codes, BaseLanguage)
}

func newBundle(catalogs map[string]*Catalog, codes []string, defaultCode string) (*Bundle, error) {
	sort.Strings(codes)
	// The default language goes first so the matcher falls back to it.
	tags := []language.Tag{}
	if t, err := language.Parse(defaultCode); err == nil {
		tags = append(tags, t)
	}
	for _, code := range codes {
		if code == defaultCode {
			continue
		}
		t, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", code, err)
		}
		tags = append(tags, t)
	}
	return &Bundle{
		catalogs:    catalogs,
		codes:       codes,
		defaultCode: defaultCode,
		matcher:     language.NewMatcher(tags),
	}, nil
}

// Restrict returns a bundle limited to codes with defaultCode as default.
// Empty codes keeps every language; an empty defaultCode keeps English.
func (b *Bundle) Restrict(codes []string, defaultCode string) (*Bundle, error) {
	if defaultCode == "" {
		defaultCode = BaseLanguage
	}
	if len(codes) == 0 {
		codes = b.codes
	}

	catalogs := make(map[string]*Catalog, len(codes))
	kept := make([]string, 0, len(codes))
	for _, code := range codes {
		c, ok := b.catalogs[code]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
		}
		if _, dup := catalogs[code]; dup {
			continue
		}
		catalogs[code] = c
		kept = append(kept, code)
	}
	if _, ok := catalogs[defaultCode]; !ok {
		return nil, fmt.Errorf("%w: default %q is not among the enabled languages", ErrUnknownLanguage, defaultCode)
	}
	// English stays loaded as the fallback even when not offered.
	if _, ok := catalogs[BaseLanguage]; !ok {
		catalogs[BaseLanguage] = b.catalogs[BaseLanguage]
	}
	return newBundle(catalogs, kept, defaultCode)
}

// Default returns the default language code.
func (b *Bundle) Default() string { return b.defaultCode }

// Languages returns the offered languages sorted by code.
func (b *Bundle) Languages() []Language {
	out := make([]Language, 0, len(b.codes))
	for _, code := range b.codes {
		out = append(out, Language{Code: code, Name: b.catalogs[code].Name})
	}
	return out
}

// Has reports whether code is offered.
func (b *Bundle) Has(code string) bool {
	for _, c := range b.codes {
		if c == code {
			return true
		}
	}
	return false
}

// Get returns the catalog for code with missing keys filled in from English.
func (b *Bundle) Get(code string) (*Catalog, error) {
	if !b.Has(code) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	c := b.catalogs[code]
	base := b.catalogs[BaseLanguage]
	merged := make(map[string]string, len(base.Messages))
	for k, v := range base.Messages {
		merged[k] = v
	}
	for k, v := range c.Messages {
		merged[k] = v
	}
	return &Catalog{Code: c.Code, Name: c.Name, Messages: merged}, nil
}

// Translate returns the message for key in code, falling back to English
// and then to the key.
func (b *Bundle) Translate(code, key string) string {
	if c, ok := b.catalogs[code]; ok {
		if msg, ok := c.Messages[key]; ok {
			return msg
		}
	}
	if msg, ok := b.catalogs[BaseLanguage].Messages[key]; ok {
		return msg
	}
	return key
}

// Match picks the best offered language for an Accept-Language header.
func (b *Bundle) Match(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return b.defaultCode
	}
	_, idx, conf := b.matcher.Match(tags...)
	if conf == language.No {
		return b.defaultCode
	}
	return b.matcherCode(idx)
}

func (b *Bundle) matcherCode(idx int) string {
	if idx == 0 {
		return b.defaultCode
	}
	i := 0
	for _, code := range b.codes {
		if code == b.defaultCode {
			continue
		}
		i++
		if i == idx {
			return code
		}
	}
	return b.defaultCode
}

// Resolve determines the language of a request from the lang query
// parameter, the language cookie and Accept-Language, in that order.
// persist reports whether the query parameter chose it.
func (b *Bundle) Resolve(r *http.Request) (code string, persist bool) {
	if v := strings.TrimSpace(r.URL.Query().Get(LangParam)); v != "" && b.Has(v) {
		return v, true
	}
	if c, err := r.Cookie(LangCookieName); err == nil && b.Has(c.Value) {
		return c.Value, false
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return b.Match(accept), false
	}
	return b.defaultCode, false
}

// SetLanguageCookie persists the chosen language for a year.
func SetLanguageCookie(w http.ResponseWriter, code, cookiePath string) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    code,
		Path:     cookiePath,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
		SameSite: http.SameSiteLaxMode,
	})
}
