package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedCatalogs(t *testing.T) {
	m, err := Load("ru")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ru", "en"}, m.Languages())

	ru := m.Translator("ru")
	assert.Equal(t, "💰 Баланс", ru.T("buttons.balance"))
	assert.Equal(t, "💰 Баланс: 15 монет", ru.Tf("balance.text", map[string]any{"balance": 15}))

	en := m.Translator("en-GB")
	assert.Equal(t, "en", en.Lang())
	assert.Equal(t, "💸 Buy coins", en.T("buttons.shop"))
}

func TestTranslator_FallsBackToDefault(t *testing.T) {
	fsys := fstest.MapFS{
		"l/ru.yaml": {Data: []byte("ru:\n  a: \"А\"\n  b: \"Б\"\n")},
		"l/en.yaml": {Data: []byte("en:\n  a: \"A\"\n")},
	}
	m, err := LoadFS(fsys, "l", "ru")
	require.NoError(t, err)

	en := m.Translator("en")
	assert.Equal(t, "A", en.T("a"))
	assert.Equal(t, "Б", en.T("b"))
	assert.Equal(t, "missing.key", en.T("missing.key"))

	assert.Equal(t, "ru", m.Translator("de").Lang())
	assert.Equal(t, "ru", m.Translator("").Lang())
}

func TestLoadFS_MissingDefaultLanguage(t *testing.T) {
	fsys := fstest.MapFS{"l/en.yaml": {Data: []byte("en:\n  a: \"A\"\n")}}
	_, err := LoadFS(fsys, "l", "ru")
	assert.Error(t, err)
}

func TestCatalogs_HaveSameKeys(t *testing.T) {
	m, err := Load("ru")
	require.NoError(t, err)

	ru := m.translations["ru"]
	en := m.translations["en"]
	for key := range ru {
		_, ok := en[key]
		assert.True(t, ok, "en is missing %s", key)
	}
	assert.Len(t, en, len(ru))
}
