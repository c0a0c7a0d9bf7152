package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFenced(t *testing.T) {
	content := "Here are the matches:\n```json\n[{\"record_id\": \"1\"}]\n```\nDone."
	assert.Equal(t, `[{"record_id": "1"}]`, ExtractJSON(content))
}

func TestExtractJSONBareFence(t *testing.T) {
	content := "```\n[{\"record_id\": \"2\"}]\n```"
	assert.Equal(t, `[{"record_id": "2"}]`, ExtractJSON(content))
}

func TestExtractJSONPlain(t *testing.T) {
	assert.Equal(t, `[]`, ExtractJSON("  []  "))
}

func TestParseDecisionsArray(t *testing.T) {
	content := `[
		{"record_id": "12", "matched_college_id": "MED0001", "matched_state": "KARNATAKA", "confidence": 0.95, "reason": "exact"},
		{"record_id": "13", "matched_college_id": null, "confidence": 0.0, "reason": "no candidate"}
	]`
	decisions := ParseDecisions(content, "gemini-1.5-flash")
	require.Len(t, decisions, 2)
	assert.Equal(t, "MED0001", decisions[0].MatchedCollegeID)
	assert.Equal(t, "gemini-1.5-flash", decisions[0].Model)
	assert.False(t, decisions[1].Matched())
}

func TestParseDecisionsSalvagesPartialOutput(t *testing.T) {
	// Truncated mid-array: the complete leading object is still recovered.
	content := `[{"record_id": "7", "matched_college_id": "DNB0042", "confidence": 0.9, "reason": "ok"}, {"record_id": "8", "matched_col`
	decisions := ParseDecisions(content, "m")
	require.Len(t, decisions, 1)
	assert.Equal(t, "7", decisions[0].RecordID)
	assert.Equal(t, "DNB0042", decisions[0].MatchedCollegeID)
}

func TestParseDecisionsNumericRecordID(t *testing.T) {
	content := `[
		{"record_id": 12, "matched_college_id": "MED0001", "confidence": 0.95, "reason": "exact"},
		{"record_id": "13", "matched_college_id": "MED0002", "confidence": 0.92, "reason": "exact"}
	]`
	decisions := ParseDecisions(content, "m")
	require.Len(t, decisions, 2)
	assert.Equal(t, "12", decisions[0].RecordID)
	assert.Equal(t, "13", decisions[1].RecordID)
}

func TestParseDecisionsGarbage(t *testing.T) {
	assert.Empty(t, ParseDecisions("I could not find any matches, sorry.", "m"))
}

func TestParseDecisionsClampsConfidence(t *testing.T) {
	content := `[{"record_id": "1", "matched_college_id": "MED1", "confidence": 1.7, "reason": "x"}]`
	decisions := ParseDecisions(content, "m")
	require.Len(t, decisions, 1)
	assert.Equal(t, 1.0, decisions[0].Confidence)
}

func TestKeyManagerRotationAndInvalidation(t *testing.T) {
	km := NewKeyManager([]string{"a", "b", "c"})
	assert.Equal(t, 3, km.ActiveCount())

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		seen[km.Next()]++
	}
	assert.Equal(t, 2, seen["a"])
	assert.Equal(t, 2, seen["b"])
	assert.Equal(t, 2, seen["c"])

	km.MarkInvalid("b")
	assert.Equal(t, 2, km.ActiveCount())
	for i := 0; i < 10; i++ {
		assert.NotEqual(t, "b", km.Next())
	}
}

func TestKeyManagerEmpty(t *testing.T) {
	km := NewKeyManager(nil)
	assert.Equal(t, "", km.Next())
	assert.Equal(t, 0, km.ActiveCount())
}
