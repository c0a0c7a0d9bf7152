package agentic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/seatmatrix/matchlink/models"
	"github.com/seatmatrix/matchlink/similarity"
)

const (
	fallbackRatioFloor = 90.0
	fallbackAddrBonus  = 1.0
	fallbackBonusCap   = 5.0
	fallbackKeywordLen = 4
)

// hybridFallback is the local scorer used when every model for a batch has
// been exhausted. It is deliberately conservative: a near-exact unique-word
// ratio plus state equality, with a small bonus per shared address keyword
// to break ties between campuses.
func hybridFallback(batch *Batch) []models.MatchDecision {
	var out []models.MatchDecision
	for _, rec := range batch.Records {
		recID := similarity.UniqueIdentifier(rec.BestCollegeName())
		if recID == "" {
			continue
		}
		recState := strings.ToUpper(strings.TrimSpace(rec.BestState()))

		var best *models.Candidate
		var bestScore float64
		for i := range batch.Candidates[rec.ID] {
			c := &batch.Candidates[rec.ID][i]
			if strings.ToUpper(strings.TrimSpace(c.College.State)) != recState {
				continue
			}
			score := similarity.Ratio(recID, similarity.UniqueIdentifier(c.College.BestName()))
			if score < fallbackRatioFloor {
				continue
			}
			overlap := similarity.TokenOverlap(rec.BestAddress(), c.College.Address, fallbackKeywordLen)
			bonus := float64(len(overlap)) * fallbackAddrBonus
			if bonus > fallbackBonusCap {
				bonus = fallbackBonusCap
			}
			if score+bonus > bestScore {
				bestScore = score + bonus
				best = c
			}
		}
		if best == nil {
			continue
		}
		out = append(out, models.MatchDecision{
			RecordID:         strconv.FormatInt(rec.ID, 10),
			MatchedCollegeID: best.College.ID,
			MatchedState:     best.College.State,
			Confidence:       0.90,
			Reason:           fmt.Sprintf("local fallback: unique-word ratio %.0f", bestScore),
			Model:            "hybrid_fallback",
		})
	}
	return out
}
