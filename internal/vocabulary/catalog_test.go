package vocabulary

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
)

func topicSchema() crawler.ContentType {
	return crawler.ContentType{ID: "topic", Fields: []crawler.Field{{ID: TermField, Type: crawler.FieldSymbol}}}
}

func countrySchema() crawler.ContentType {
	return crawler.ContentType{ID: "country", Fields: []crawler.Field{
		{ID: CountryCodeField, Type: crawler.FieldSymbol},
		{ID: "name", Type: crawler.FieldSymbol, Localized: true},
	}}
}

func entry(ct, field string, values crawler.LocalizedValue) *crawler.Entry {
	return &crawler.Entry{ID: ct + "-1", ContentTypeID: ct, Fields: map[string]crawler.LocalizedValue{field: values}}
}

func TestRegisterVocabularyRequiresTerm(t *testing.T) {
	t.Parallel()

	c := NewCatalog("en-GB")
	err := c.RegisterVocabulary(crawler.ContentType{ID: "broken", Fields: []crawler.Field{{ID: "label"}}})
	require.Error(t, err)

	var cfgErr *crawler.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "broken", cfgErr.ContentType)
	require.True(t, crawler.IsFatal(err))
	require.False(t, c.IsVocabulary("broken"))
}

func TestRegisterCountryVocabularyRequiresISOCode(t *testing.T) {
	t.Parallel()

	c := NewCatalog("en-GB")
	err := c.RegisterCountryVocabulary(topicSchema())
	require.True(t, crawler.IsFatal(err))
	require.Empty(t, c.CountryVocabularyID())
}

func TestResolve(t *testing.T) {
	t.Parallel()

	c := NewCatalog("en-GB")
	require.NoError(t, c.RegisterVocabulary(topicSchema()))
	require.NoError(t, c.RegisterCountryVocabulary(countrySchema()))

	field, ok := c.Resolve(entry("topic", TermField, nil))
	require.True(t, ok)
	require.Equal(t, TermField, field)

	field, ok = c.Resolve(entry("country", CountryCodeField, nil))
	require.True(t, ok)
	require.Equal(t, CountryCodeField, field)

	_, ok = c.Resolve(entry("article", "title", nil))
	require.False(t, ok)
	_, ok = c.Resolve(nil)
	require.False(t, ok)

	_, ok = c.ResolveCountryField(entry("topic", TermField, nil))
	require.False(t, ok)
	field, ok = c.ResolveCountryField(entry("country", CountryCodeField, nil))
	require.True(t, ok)
	require.Equal(t, CountryCodeField, field)

	require.Equal(t, map[string]struct{}{"topic": {}, "country": {}}, c.VocabularyIDs())
}

func TestResolveCountryFieldWithoutCountryVocabulary(t *testing.T) {
	t.Parallel()

	c := NewCatalog("en-GB")
	require.NoError(t, c.RegisterVocabulary(topicSchema()))
	_, ok := c.ResolveCountryField(entry("country", CountryCodeField, nil))
	require.False(t, ok)
}
