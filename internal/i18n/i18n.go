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

// Catalog is a translation bundle with a default language.
type Catalog struct {
	bundle *i18n.Bundle
	lang   string
	loc    *i18n.Localizer
}

// New loads the embedded locale files with lang as the default language.
func New(lang string) (*Catalog, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle := i18n.NewBundle(tag)
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
		bundle: bundle,
		lang:   tag.String(),
		loc:    i18n.NewLocalizer(bundle, tag.String()),
	}, nil
}

// Language returns the default language tag.
func (c *Catalog) Language() string {
	return c.lang
}

// NewLocalizer creates a localizer preferring the given languages. Entries
// may be tags or raw Accept-Language values.
func (c *Catalog) NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(c.bundle, append(langs, c.lang)...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func (c *Catalog) localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return c.loc
}

// Lookup resolves a message ID in the default language.
func (c *Catalog) Lookup(msgID string) (string, bool) {
	s, err := c.loc.Localize(&i18n.LocalizeConfig{MessageID: msgID})
	if err != nil {
		return "", false
	}
	return s, true
}

// T translates a message by ID, falling back to the ID itself.
func (c *Catalog) T(ctx context.Context, msgID string) string {
	s, err := c.localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{MessageID: msgID})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}

// Td translates a message by ID with template data.
func (c *Catalog) Td(ctx context.Context, msgID string, data map[string]any) string {
	s, err := c.localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}

// Tp translates a pluralized message by ID.
func (c *Catalog) Tp(ctx context.Context, msgID string, count int) string {
	s, err := c.localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}
