package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/engine"
)

func TestTranslate(t *testing.T) {
	s, err := parse(t, "dog", `{"dog": {
		"name": {"_type": "string"},
		"kind": {"_type": "enum"},
		"bio": {"_type": "text", "_language": "french_max"},
		"notes": {"_type": "text"},
		"good": {"_type": "boolean"},
		"age": {"_type": "integer"},
		"chip": {"_type": "long"},
		"weight": {"_type": "float"},
		"height": {"_type": "double"},
		"birth": {"_type": "date"},
		"walk": {"_type": "time"},
		"seen": {"_type": "timestamp"},
		"where": {"_type": "geopoint"},
		"blob": {"_type": "stash"},
		"owner": {"name": {"_type": "text", "_language": "english"}}
	}}`)
	require.NoError(t, err)

	m, err := Translate(s)
	require.NoError(t, err)
	assert.Equal(t, engine.DynamicStrict, m.Dynamic)

	disabled := false
	expected := map[string]engine.Field{
		"meta":   MetaMapping(),
		"name":   {Type: engine.FieldKeyword},
		"kind":   {Type: engine.FieldKeyword},
		"bio":    {Type: engine.FieldText, Analyzer: LanguageFrenchMax},
		"notes":  {Type: engine.FieldText},
		"good":   {Type: engine.FieldBoolean},
		"age":    {Type: engine.FieldInteger},
		"chip":   {Type: engine.FieldLong},
		"weight": {Type: engine.FieldFloat},
		"height": {Type: engine.FieldDouble},
		"birth":  {Type: engine.FieldDate, Format: "date"},
		"walk":   {Type: engine.FieldDate, Format: "hour_minute_second"},
		"seen":   {Type: engine.FieldDate, Format: "date_time"},
		"where":  {Type: engine.FieldGeoPoint},
		"blob":   {Type: engine.FieldObject, Enabled: &disabled},
		"owner": {Type: engine.FieldObject, Properties: map[string]engine.Field{
			"name": {Type: engine.FieldText, Analyzer: LanguageEnglish},
		}},
	}
	assert.Equal(t, expected, m.Properties)

	assert.Len(t, m.Settings.Analyzers, 2)
	assert.Contains(t, m.Settings.Analyzers, LanguageFrenchMax)
	assert.Contains(t, m.Settings.Analyzers, LanguageEnglish)
	assert.NotEmpty(t, m.Meta)
}

func TestTranslateRoundTrip(t *testing.T) {
	defs := map[string]string{
		"dog": `{"dog": {"_id": "name", "name": {"_type": "string", "_required": true}}}`,
		"msg": `{"msg": {"_acl": {"user": ["create", "updateMine", "readGroup"]}, "_extra": {"n": 1.5},
			"text": {"_type": "text", "_language": "english"},
			"to": {"_array": true, "id": {"_type": "string"}, "at": {"_type": "timestamp", "_array": true}}}}`,
		"place": `{"place": {"where": {"_type": "geopoint", "_required": true}, "blob": {"_type": "stash"}}}`,
	}
	for name, def := range defs {
		t.Run(name, func(t *testing.T) {
			s, err := parse(t, name, def)
			require.NoError(t, err)

			m, err := Translate(s)
			require.NoError(t, err)
			back, err := FromMapping(name, m)
			require.NoError(t, err)
			assert.Equal(t, s, back)

			again, err := Translate(back)
			require.NoError(t, err)
			assert.Equal(t, m, again)
		})
	}
}

func TestFromMappingErrors(t *testing.T) {
	_, err := FromMapping("dog", engine.Mapping{})
	assert.ErrorContains(t, err, "carries no schema")

	_, err = FromMapping("dog", engine.Mapping{Meta: []byte(`{"dog": {}}`)})
	assert.ErrorContains(t, err, "stored schema of [dog] is invalid")
}

func TestTranslatedMappingValidatesDocuments(t *testing.T) {
	s := New("dog").String("name").Integer("age").Object("owner").String("first").Close().MustBuild()
	m, err := Translate(s)
	require.NoError(t, err)

	ok := map[string]interface{}{
		"name":  "rex",
		"age":   3.0,
		"owner": map[string]interface{}{"first": "ann"},
		"meta":  map[string]interface{}{"owner": "u1", "createdAt": "2026-01-02T03:04:05Z"},
	}
	assert.NoError(t, engine.ValidateSource(m, ok))

	bad := map[string]interface{}{"name": "rex", "color": "brown"}
	assert.ErrorIs(t, engine.ValidateSource(m, bad), engine.ErrStrictMapping)
}
