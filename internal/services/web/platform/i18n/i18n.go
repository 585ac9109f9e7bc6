// Package i18n translates flash message text and embeds placeholder values.
package i18n

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supported = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
}

var matcher = language.NewMatcher(supported)

// Portuguese copy for the built-in demo messages. English is the source
// language so its keys are the text itself.
var portuguese = map[string]string{
	"Message is required.":        "A mensagem é obrigatória.",
	"Unknown message type :type.": "Tipo de mensagem desconhecido :type.",
}

// Catalog holds translated message text keyed by source text.
type Catalog struct {
	builder *catalog.Builder
	known   map[string]struct{}
}

// NewCatalog returns a catalog preloaded with the built-in translations.
func NewCatalog() *Catalog {
	c := &Catalog{
		builder: catalog.NewBuilder(catalog.Fallback(language.AmericanEnglish)),
		known:   map[string]struct{}{},
	}
	for key, value := range portuguese {
		_ = c.Set(language.BrazilianPortuguese, key, value)
	}
	return c
}

// Set registers one translation. Catalogs are not safe for Set while in use.
func (c *Catalog) Set(tag language.Tag, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("translation key is required")
	}
	if err := c.builder.SetString(tag, key, value); err != nil {
		return fmt.Errorf("set translation %q: %w", key, err)
	}
	c.known[key] = struct{}{}
	return nil
}

// Interpolator translates text for one language and substitutes values.
type Interpolator struct {
	catalog *Catalog
	printer *message.Printer
}

// NewInterpolator returns an Interpolator bound to tag. A nil catalog uses
// the built-in translations.
func NewInterpolator(c *Catalog, tag language.Tag) *Interpolator {
	if c == nil {
		c = NewCatalog()
	}
	return &Interpolator{
		catalog: c,
		printer: message.NewPrinter(Match(tag), message.Catalog(c.builder)),
	}
}

// FromRequest picks the interpolator language from Accept-Language.
func FromRequest(c *Catalog, r *http.Request) *Interpolator {
	tag := language.AmericanEnglish
	if r != nil {
		if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
			tag = Match(tags...)
		}
	}
	return NewInterpolator(c, tag)
}

// Match returns the closest supported language.
func Match(tags ...language.Tag) language.Tag {
	if len(tags) == 0 {
		return language.AmericanEnglish
	}
	_, idx, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return language.AmericanEnglish
	}
	return supported[idx]
}

// Interpolate translates text when the catalog knows it, then replaces each
// values key with its value. Longer keys win over their prefixes and
// replaced output is never rescanned.
func (i *Interpolator) Interpolate(text string, values map[string]any) string {
	text = i.translate(text)
	if len(values) == 0 {
		return text
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		if key != "" {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(a, b int) bool {
		if len(keys[a]) != len(keys[b]) {
			return len(keys[a]) > len(keys[b])
		}
		return keys[a] < keys[b]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		pairs = append(pairs, key, i.format(values[key]))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func (i *Interpolator) translate(text string) string {
	if i == nil || i.catalog == nil {
		return text
	}
	if _, ok := i.catalog.known[text]; !ok {
		return text
	}
	if value := i.printer.Sprintf(text); strings.TrimSpace(value) != "" {
		return value
	}
	return text
}

func (i *Interpolator) format(value any) string {
	if i == nil || i.printer == nil {
		return fmt.Sprint(value)
	}
	return i.printer.Sprint(value)
}
