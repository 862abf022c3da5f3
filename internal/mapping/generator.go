package mapping

import (
	"regexp"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/schema"
)

// Names of the derived document fields every mapping declares statically.
const (
	FieldID          = "id"
	FieldContentType = "contentType"
	FieldCreatedAt   = "createdAt"
	FieldUpdatedAt   = "updatedAt"
	FieldRegion      = "region"
	TagSuffix        = "Tag"
)

// BoostValue is the relevance boost applied to fields matching BoostName.
const BoostValue = 10

var (
	// AdministrativeName matches field names never indexed.
	AdministrativeName = `^(space|revision|locale|meta|sys)$`
	// BoostName matches the fields that receive BoostValue.
	BoostName = regexp.MustCompile(`^(title|summary|keywords)$`)
)

var scalarTypes = map[crawler.FieldType]string{
	crawler.FieldSymbol:   TypeKeyword,
	crawler.FieldText:     TypeText,
	crawler.FieldBoolean:  TypeBoolean,
	crawler.FieldDate:     TypeDate,
	crawler.FieldLocation: TypeGeoPoint,
	crawler.FieldInteger:  TypeInteger,
	crawler.FieldNumber:   TypeDouble,
}

// ScalarType maps a declared type to its index type.
func ScalarType(t crawler.FieldType) (string, bool) {
	es, ok := scalarTypes[t]
	return es, ok
}

// Generator produces index mappings from content-type schemas. It holds only
// the run-wide vocabulary set and is safe for concurrent use.
type Generator struct {
	vocab     schema.VocabularySet
	countryID string
}

// NewGenerator creates a Generator classifying links against vocab.
// countryID names the country vocabulary whose links also produce a region.
func NewGenerator(vocab schema.VocabularySet, countryID string) *Generator {
	return &Generator{vocab: vocab, countryID: countryID}
}

// Generate builds the mapping of ct.
func (g *Generator) Generate(ct crawler.ContentType) Mapping {
	m := Mapping{
		DynamicTemplates: fixedTemplates(boostsLocalizedTitle(ct)),
		Properties: map[string]map[string]any{
			FieldID:          {"type": TypeKeyword},
			FieldContentType: {"type": TypeKeyword},
			FieldCreatedAt:   {"type": TypeDate},
			FieldUpdatedAt:   {"type": TypeDate},
		},
	}
	for _, f := range ct.Fields {
		if f.Disabled || f.Omitted {
			continue
		}
		cls := schema.Classify(f, g.vocab)
		switch cls.Kind {
		case schema.KindVocabulary:
			m.Properties[f.ID] = map[string]any{"type": TypeKeyword}
			if g.linksCountry(f) {
				m.Properties[FieldRegion] = map[string]any{"type": TypeKeyword}
			}
		case schema.KindCollapsible:
			esType, ok := ScalarType(f.ValueType())
			if !ok {
				esType = TypeKeyword
			}
			m.Properties[f.ID] = withBoost(f.ID, map[string]any{"type": esType})
		case schema.KindNested:
			m.DynamicTemplates = append(m.DynamicTemplates, fieldTemplate(f.ID, false, map[string]any{"type": TypeNested}))
		case schema.KindObject:
			m.DynamicTemplates = append(m.DynamicTemplates, fieldTemplate(f.ID, f.Localized, map[string]any{"type": TypeNested}))
		case schema.KindAsset:
			// Covered by the fixed asset rules.
		case schema.KindScalar:
			esType, ok := ScalarType(f.ValueType())
			if !ok {
				continue
			}
			m.DynamicTemplates = append(m.DynamicTemplates, fieldTemplate(f.ID, f.Localized, withBoost(f.ID, map[string]any{"type": esType})))
		}
	}
	return m
}

func (g *Generator) linksCountry(f crawler.Field) bool {
	if g.countryID == "" {
		return false
	}
	for _, id := range f.LinkContentTypes() {
		if id == g.countryID {
			return true
		}
	}
	return false
}

// boostsLocalizedTitle reports whether ct declares a localized top-level title.
// Its locale paths are claimed by the fixed localized_title rule, so that rule
// has to carry the boost.
func boostsLocalizedTitle(ct crawler.ContentType) bool {
	for _, f := range ct.Fields {
		if f.ID == "title" && f.Localized && !f.Disabled && !f.Omitted && BoostName.MatchString(f.ID) {
			return true
		}
	}
	return false
}

func fixedTemplates(boostTitle bool) []NamedTemplate {
	disabled := func() map[string]any { return map[string]any{"type": TypeObject, "enabled": false} }
	text := func() map[string]any { return map[string]any{"type": TypeText} }
	title := text()
	if boostTitle {
		title["boost"] = BoostValue
	}
	return []NamedTemplate{
		{Name: "administrative", Template: Template{MatchPattern: "regex", Match: AdministrativeName, Mapping: disabled()}},
		{Name: "asset_binary", Template: Template{PathMatch: "*.file", Mapping: disabled()}},
		{Name: "localized_title", Template: Template{PathMatch: "title.*", Mapping: title}},
		{Name: "nested_localized_title", Template: Template{PathMatch: "*.title.*", Mapping: text()}},
		{Name: "localized_description", Template: Template{PathMatch: "description.*", Mapping: text()}},
		{Name: "nested_localized_description", Template: Template{PathMatch: "*.description.*", Mapping: text()}},
		{Name: "back_reference_tags", Template: Template{Match: "*" + TagSuffix, Mapping: map[string]any{"type": TypeKeyword}}},
	}
}

// fieldTemplate anchors a rule to the top-level field. A plain match would
// also hit same-named keys inside nested summaries and asset maps.
func fieldTemplate(id string, localized bool, mapping map[string]any) NamedTemplate {
	if localized {
		return NamedTemplate{Name: id, Template: Template{PathMatch: id + ".*", Mapping: mapping}}
	}
	return NamedTemplate{Name: id, Template: Template{PathMatch: id, Mapping: mapping}}
}

func withBoost(id string, mapping map[string]any) map[string]any {
	if !BoostName.MatchString(id) {
		return mapping
	}
	if t := mapping["type"]; t == TypeText || t == TypeKeyword {
		mapping["boost"] = BoostValue
	}
	return mapping
}
