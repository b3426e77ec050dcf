package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/scamshield/internal/failure"
)

const factJSON = `{"scam_name":"Fake Courier","red_flag":"Caller demands payment","the_fix":"Hang up and call 997","story_hook":"A retiree received a call from someone claiming to be a courier"}`

var factFields = []FieldSpec{
	{Name: "scam_name", Default: "Unknown Scam", Required: true},
	{Name: "red_flag", Default: "Details unavailable.", Required: true},
	{Name: "the_fix", Default: "[not recovered]"},
	{Name: "reference_sources", Kind: List},
}

// ---------------------------------------------------------------------------
// Structural strategies
// ---------------------------------------------------------------------------

func TestExtract_DirectParse(t *testing.T) {
	m, strategy, err := Extract(factJSON, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, strategy)
	assert.Equal(t, "Fake Courier", m["scam_name"])
}

func TestExtract_FenceAndProseInvariance(t *testing.T) {
	want, _, err := Extract(factJSON, nil)
	require.NoError(t, err)

	wrapped := []string{
		"```json\n" + factJSON + "\n```",
		"```\n" + factJSON + "\n```",
		"  ```JSON\n" + factJSON + "```  ",
		"Sure, here is the fact sheet:\n```json\n" + factJSON + "\n```\nLet me know if you need changes.",
		"Here you go: " + factJSON + " Hope this helps.",
	}
	for _, w := range wrapped {
		got, _, err := Extract(w, nil)
		require.NoError(t, err, w)
		assert.Equal(t, want, got, w)
	}
}

func TestExtract_BoundaryIgnoresBracesInStrings(t *testing.T) {
	raw := `Result: {"a":"has } and { braces","b":"x"} trailing {"c":"ignored"}`
	m, strategy, err := Extract(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyBoundary, strategy)
	assert.Equal(t, "has } and { braces", m["a"])
	assert.NotContains(t, m, "c")
}

func TestExtract_OnlyFirstOfMultipleObjects(t *testing.T) {
	m, _, err := Extract(`{"a":"1"} {"b":"2"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1"}, m)
}

func TestExtract_ControlCharacterRepair(t *testing.T) {
	raw := "{\"story_hook\":\"line one\nline two\tend\",\"red_flag\":\"bell\x07\"}"
	m, strategy, err := Extract(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyRepair, strategy)
	assert.Equal(t, "line one\nline two\tend", m["story_hook"])
	assert.Equal(t, "bell\x07", m["red_flag"])
}

func TestExtract_TrailingCommasAndZeroWidth(t *testing.T) {
	raw := "\ufeff{\"a\":[\"x\",\"y\",],\u200b\"b\":\"keep, ]\",}"
	m, _, err := Extract(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, m["a"])
	assert.Equal(t, "keep, ]", m["b"])
}

func TestExtract_NestedValuesPreserved(t *testing.T) {
	raw := "{\"scene_breakdown\":[{\"scene_id\":1,\"extra\":{\"k\":[1,2]}}],\"note\":\"raw\nnewline\"}"
	m, _, err := Extract(raw, nil)
	require.NoError(t, err)

	scenes, ok := m["scene_breakdown"].([]any)
	require.True(t, ok)
	require.Len(t, scenes, 1)
	scene := scenes[0].(map[string]any)
	assert.Equal(t, json.Number("1"), scene["scene_id"])
	assert.Equal(t, map[string]any{"k": []any{json.Number("1"), json.Number("2")}}, scene["extra"])
}

func TestExtract_TruncationRepair(t *testing.T) {
	full, _, err := Extract(factJSON, nil)
	require.NoError(t, err)

	cuts := []string{
		factJSON[:len(factJSON)-30],                // inside the last string value
		`{"scam_name":"Fake Courier","red_flag":"Caller demands payment","the_fix":"Hang up and call 997","story_hook":`,
		`{"scam_name":"Fake Courier","red_flag":"Caller demands payment","the_fix":"Hang up and call 997","story_h`,
		`{"scam_name":"Fake Courier","red_flag":"Caller demands payment","the_fix":"Hang up and call 997",`,
		`{"scam_name":"Fake Courier","red_flag":"Caller demands payment","the_fix":"Hang up and call 997","tags":["a","b`,
	}
	for _, cut := range cuts {
		m, strategy, err := Extract(cut, nil)
		require.NoError(t, err, cut)
		assert.Equal(t, StrategyRepair, strategy, cut)
		for _, k := range []string{"scam_name", "red_flag", "the_fix"} {
			assert.Equal(t, full[k], m[k], "%s in %q", k, cut)
		}
	}
}

func TestExtract_TruncatedInsideEscape(t *testing.T) {
	m, _, err := Extract(`{"a":"ok","b":"quote \`, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", m["a"])
	assert.Equal(t, "quote ", m["b"])
}

// ---------------------------------------------------------------------------
// Field fallback and failures
// ---------------------------------------------------------------------------

func TestExtract_FieldFallback(t *testing.T) {
	raw := `Model said: "scam_name": "Parcel Scam", "red_flag": "Asks for \"urgent\" fee\nnow", "reference_sources": ["http://a", "http://b"] and then stopped`
	m, strategy, err := Extract(raw, factFields)
	require.NoError(t, err)

	assert.Equal(t, StrategyFields, strategy)
	assert.True(t, strategy.Degraded())
	assert.Equal(t, "Parcel Scam", m["scam_name"])
	assert.Equal(t, "Asks for \"urgent\" fee\nnow", m["red_flag"])
	assert.Equal(t, "[not recovered]", m["the_fix"])
	assert.Equal(t, []any{"http://a", "http://b"}, m["reference_sources"])
}

func TestExtract_FieldFallbackUsesJSONEscapes(t *testing.T) {
	raw := `cut off: "scam_name": "Fake \/ cloned bank site \u2013 PDRM", "reference_sources": ["https:\/\/semakmule.rmp.gov.my"]`
	m, strategy, err := Extract(raw, factFields)
	require.NoError(t, err)
	assert.Equal(t, StrategyFields, strategy)
	assert.Equal(t, "Fake / cloned bank site \u2013 PDRM", m["scam_name"])
	assert.Equal(t, []any{"https://semakmule.rmp.gov.my"}, m["reference_sources"])
}

func TestExtract_NoRequiredFieldsFails(t *testing.T) {
	raw := `"the_fix": "call the bank" but nothing else`
	_, _, err := Extract(raw, factFields)
	require.Error(t, err)

	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindExtraction, fe.Kind)
	assert.Equal(t, "unparseable", fe.Reason)
	assert.Equal(t, raw, fe.RawExcerpt)
}

func TestExtract_EmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   \n\t"} {
		_, _, err := Extract(raw, factFields)
		fe, ok := failure.As(err)
		require.True(t, ok)
		assert.Equal(t, "empty", fe.Reason)
	}
}

func TestExtract_Idempotence(t *testing.T) {
	inputs := []string{
		factJSON,
		"```json\n" + factJSON + "\n```",
		"{\"a\":\"x\ny\",\"n\":1.50,\"list\":[1,{\"z\":null},],}",
		factJSON[:len(factJSON)-12],
	}
	for _, in := range inputs {
		first, _, err := Extract(in, nil)
		require.NoError(t, err, in)

		canonical, err := json.Marshal(first)
		require.NoError(t, err)

		second, strategy, err := Extract(string(canonical), nil)
		require.NoError(t, err)
		assert.Equal(t, StrategyDirect, strategy)
		assert.Equal(t, first, second)
	}
}

func TestDecode_IntoStruct(t *testing.T) {
	var out struct {
		ScamName string   `json:"scam_name"`
		TheFix   string   `json:"the_fix"`
		Sources  []string `json:"reference_sources"`
	}
	strategy, err := Decode("```json\n"+factJSON+"\n```", factFields, &out)
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, strategy)
	assert.Equal(t, "Fake Courier", out.ScamName)
	assert.Equal(t, "Hang up and call 997", out.TheFix)
}

func TestDecode_SchemaMismatch(t *testing.T) {
	var out struct {
		N int `json:"n"`
	}
	_, err := Decode(`{"n":"not a number"}`, nil, &out)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, "schema mismatch", fe.Reason)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("  {\"a\":1}  "))
	assert.Equal(t, "", StripFences("```json```"))
}
