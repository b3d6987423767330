package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

// Catalog resolves message IDs to localized text for a single language.
// It is built once at startup and is safe for concurrent use.
type Catalog struct {
	lang      string
	localizer *i18n.Localizer
}

// New loads the embedded locale files and returns a catalog for lang,
// falling back to English for missing messages.
func New(lang string) (*Catalog, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		slog.Debug("loaded locale file", "file", e.Name())
	}

	return &Catalog{
		lang:      tag.String(),
		localizer: i18n.NewLocalizer(bundle, tag.String(), language.English.String()),
	}, nil
}

// Lang returns the catalog's language tag.
func (c *Catalog) Lang() string {
	return c.lang
}

// T translates a message by ID.
func (c *Catalog) T(msgID string) string {
	return c.Td(msgID, nil)
}

// Td translates a message by ID with template data.
func (c *Catalog) Td(msgID string, data map[string]any) string {
	s, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "lang", c.lang, "error", err)
		return msgID
	}
	return s
}

// WithCatalog stores a catalog in the context.
func WithCatalog(ctx context.Context, c *Catalog) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext retrieves the catalog from context, or nil.
func FromContext(ctx context.Context) *Catalog {
	c, _ := ctx.Value(ctxKey{}).(*Catalog)
	return c
}
