package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/seatmatrix/matchlink/models"
)

var decisionObjectRe = regexp.MustCompile(`\{[^{}]*"record_id"[^{}]*\}`)

// ExtractJSON strips markdown code fences around a model response.
func ExtractJSON(content string) string {
	if i := strings.Index(content, "```json"); i >= 0 {
		rest := content[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	if i := strings.Index(content, "```"); i >= 0 {
		rest := content[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(content)
}

// ParseDecisions decodes a model response into match decisions. Responses
// may be fenced, truncated, or interleaved with prose; whatever whole
// decision objects can be recovered are returned, and the model name is
// stamped on each.
func ParseDecisions(content, model string) []models.MatchDecision {
	raw := ExtractJSON(content)

	var decisions []models.MatchDecision
	if err := json.Unmarshal([]byte(raw), &decisions); err == nil {
		return stamp(decisions, model)
	}

	// Partial output: salvage individual objects.
	for _, m := range decisionObjectRe.FindAllString(raw, -1) {
		var d models.MatchDecision
		if err := json.Unmarshal([]byte(m), &d); err == nil && d.RecordID != "" {
			decisions = append(decisions, d)
		}
	}
	return stamp(decisions, model)
}

func stamp(decisions []models.MatchDecision, model string) []models.MatchDecision {
	for i := range decisions {
		if decisions[i].Model == "" {
			decisions[i].Model = model
		}
		if decisions[i].Confidence < 0 {
			decisions[i].Confidence = 0
		}
		if decisions[i].Confidence > 1 {
			decisions[i].Confidence = 1
		}
	}
	return decisions
}
