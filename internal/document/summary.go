package document

import (
	"regexp"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/mapping"
)

// DisplayField matches the linked-entry fields copied into a nested summary.
var DisplayField = regexp.MustCompile(`(?i)(summary|title|label|url)`)

// summarize abbreviates a linked entry to its id and non-null display fields.
func (p *Projector) summarize(linked *crawler.Entry) map[string]any {
	out := map[string]any{mapping.FieldID: linked.ID}
	for id, raw := range linked.Fields {
		if !DisplayField.MatchString(id) {
			continue
		}
		if p.displayLocalized(linked.ContentTypeID, id) {
			if locales := nonNullLocales(raw); len(locales) > 0 {
				out[id] = locales
			}
			continue
		}
		if v, ok := raw.Resolve(p.opts.DefaultLocale); ok && v != nil {
			out[id] = v
		}
	}
	return out
}

// displayLocalized reports the declared localization of a linked field.
// Fields of content types outside the run's schema are treated as plain.
func (p *Projector) displayLocalized(ctID, fieldID string) bool {
	cls, err := p.classifier.Lookup(ctID, fieldID)
	if err != nil {
		return false
	}
	return cls.Localized
}

func nonNullLocales(v crawler.LocalizedValue) map[string]any {
	out := make(map[string]any, len(v))
	for locale, val := range v {
		if val != nil {
			out[locale] = val
		}
	}
	return out
}
