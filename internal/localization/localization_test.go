package localization_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"couplesync/backend/internal/localization"
)

func TestBuiltinHasEveryKeyInEveryLanguage(t *testing.T) {
	l := localization.Builtin()
	assert.ElementsMatch(t, []string{"en", "ja"}, l.Languages())

	for _, key := range []string{"partner_online_title", "new_message_title", "capsule_unlocked_body", "mood_sad"} {
		assert.NotEqual(t, key, l.GetString("en", key))
		assert.NotEqual(t, key, l.GetString("ja", key))
	}
}

func TestGetString_Fallbacks(t *testing.T) {
	fsys := fstest.MapFS{
		"en.json":   {Data: []byte(`{"hello":"Hello","only_en":"English"}`)},
		"ja.json":   {Data: []byte(`{"hello":"こんにちは"}`)},
		"notes.txt": {Data: []byte("ignored")},
	}
	l, err := localization.NewLocalizer(fsys)
	require.NoError(t, err)

	assert.Equal(t, "こんにちは", l.GetString("ja", "hello"))
	assert.Equal(t, "English", l.GetString("ja", "only_en"))
	assert.Equal(t, "Hello", l.GetString("fr", "hello"))
	assert.Equal(t, "missing", l.GetString("en", "missing"))
}

func TestNewLocalizer_BadJSON(t *testing.T) {
	_, err := localization.NewLocalizer(fstest.MapFS{"en.json": {Data: []byte("{")}})
	assert.Error(t, err)
}

func TestTexts_Format(t *testing.T) {
	texts := localization.Texts{L: localization.Builtin(), Lang: "en"}
	assert.Equal(t, "Partner B is feeling sad.", texts.Format("partner_mood_body", texts.Get("role_B"), texts.Get("mood_sad")))
}
