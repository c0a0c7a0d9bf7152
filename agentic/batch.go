package agentic

import (
	"sort"

	"github.com/seatmatrix/matchlink/models"
)

const (
	minBatchRecords = 15
	maxBatchRecords = 25

	// Rough prompt cost of one record with its candidate list.
	tokensPerRecord = 200

	// Share of a model's context window the batch prompt may occupy.
	contextShare = 0.40

	// Context window assumed for models not in the table below.
	defaultContextTokens = 32768
)

// modelContextTokens lists context windows for the models we dispatch to.
var modelContextTokens = map[string]int{
	"gemini-1.5-flash":     1_000_000,
	"gemini-1.5-flash-8b":  1_000_000,
	"gemini-1.5-pro":       2_000_000,
	"gemini-2.0-flash-exp": 1_000_000,
}

// GroupKey scopes a batch to one state and course type so its candidate
// lists stay state-bounded.
type GroupKey struct {
	State  string
	Course models.CourseType
}

// Batch is one unit of LLM work: a slice of same-group records, each with
// its private candidate list, plus the models already tried for it.
type Batch struct {
	Key         GroupKey
	Records     []*models.SeatRecord
	Candidates  map[int64][]models.Candidate
	ModelsTried map[string]bool
}

// batchSizeFor derives the record count per batch from the model's context
// window, clamped to the [15, 25] band.
func batchSizeFor(model string) int {
	window, ok := modelContextTokens[model]
	if !ok {
		window = defaultContextTokens
	}
	n := int(float64(window) * contextShare / tokensPerRecord)
	if n < minBatchRecords {
		return minBatchRecords
	}
	if n > maxBatchRecords {
		return maxBatchRecords
	}
	return n
}

// groupRecords partitions records by (state, course type) and chunks each
// group into batches of at most size records. Candidate lists are keyed per
// record and never shared across batches.
func groupRecords(records []*models.SeatRecord, candidates map[int64][]models.Candidate, size int) []*Batch {
	groups := make(map[GroupKey][]*models.SeatRecord)
	for _, rec := range records {
		key := GroupKey{State: rec.BestState(), Course: rec.Stream()}
		groups[key] = append(groups[key], rec)
	}

	keys := make([]GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].State != keys[j].State {
			return keys[i].State < keys[j].State
		}
		return keys[i].Course < keys[j].Course
	})

	var batches []*Batch
	for _, key := range keys {
		recs := groups[key]
		for start := 0; start < len(recs); start += size {
			end := start + size
			if end > len(recs) {
				end = len(recs)
			}
			chunk := recs[start:end]
			cands := make(map[int64][]models.Candidate, len(chunk))
			for _, rec := range chunk {
				cands[rec.ID] = candidates[rec.ID]
			}
			batches = append(batches, &Batch{
				Key:         key,
				Records:     chunk,
				Candidates:  cands,
				ModelsTried: make(map[string]bool),
			})
		}
	}
	return batches
}
