package models

import (
	"encoding/json"
	"strings"
)

// Candidate is one scored registry entry inside a CandidateSet.
type Candidate struct {
	College MasterCollege
	Score   float64
	Method  string
}

// CandidateSet is the ranked, per-record candidate list produced by the
// retrieval subsystem. Sets are rebuilt per matching attempt and must never
// be shared between records.
type CandidateSet struct {
	RecordID   int64
	Candidates []Candidate
}

// MatchDecision is the unit exchanged between pipeline stages and the LLM
// layer. RecordID may be a comma-joined list when records were grouped.
type MatchDecision struct {
	RecordID         string  `json:"record_id"`
	MatchedCollegeID string  `json:"matched_college_id"`
	MatchedState     string  `json:"matched_state"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason"`
	Model            string  `json:"model,omitempty"`
}

// UnmarshalJSON tolerates bare numeric record ids, which some models emit
// even when the prompt quotes them.
func (d *MatchDecision) UnmarshalJSON(data []byte) error {
	type alias MatchDecision
	aux := struct {
		RecordID json.RawMessage `json:"record_id"`
		*alias
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.RecordID = flexibleID(aux.RecordID)
	return nil
}

func flexibleID(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// Matched reports whether the decision proposes a college.
func (d *MatchDecision) Matched() bool {
	return d.MatchedCollegeID != ""
}

// RecordIDs splits a possibly comma-joined record id list.
func (d *MatchDecision) RecordIDs() []string {
	parts := strings.Split(d.RecordID, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CouncilVote is one model's decision for a record within a council round.
type CouncilVote struct {
	Model    string
	Decision MatchDecision
}
