package agentic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatmatrix/matchlink/models"
)

func vote(model, recordID, collegeID string, confidence float64) models.CouncilVote {
	return models.CouncilVote{
		Model: model,
		Decision: models.MatchDecision{
			RecordID:         recordID,
			MatchedCollegeID: collegeID,
			Confidence:       confidence,
		},
	}
}

func TestCouncilUnanimousGetsBonus(t *testing.T) {
	out := tallyCouncil([]models.CouncilVote{
		vote("a", "1", "MED1", 0.90),
		vote("b", "1", "MED1", 0.80),
		vote("c", "1", "MED1", 0.85),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "MED1", out[0].MatchedCollegeID)
	assert.InDelta(t, 0.90, out[0].Confidence, 1e-9, "mean 0.85 plus the unanimity bonus")
	assert.Equal(t, "a+b+c", out[0].Model)
}

func TestCouncilMajorityWithSplitPenalty(t *testing.T) {
	out := tallyCouncil([]models.CouncilVote{
		vote("a", "1", "MED1", 0.90),
		vote("b", "1", "MED1", 0.90),
		vote("c", "1", "MED2", 0.99),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "MED1", out[0].MatchedCollegeID, "two votes beat one, whatever its confidence")
	assert.InDelta(t, 0.80, out[0].Confidence, 1e-9, "mean of the agreeing votes minus the split penalty")
}

func TestCouncilNullMajorityWins(t *testing.T) {
	out := tallyCouncil([]models.CouncilVote{
		vote("a", "1", "", 0.70),
		vote("b", "1", "", 0.70),
		vote("c", "1", "MED1", 0.95),
	})
	require.Len(t, out, 1)
	assert.False(t, out[0].Matched(), "a no-match majority stands")
}

func TestCouncilConfidenceClamped(t *testing.T) {
	out := tallyCouncil([]models.CouncilVote{
		vote("a", "1", "MED1", 0.99),
		vote("b", "1", "MED1", 0.99),
	})
	require.Len(t, out, 1)
	assert.LessOrEqual(t, out[0].Confidence, 1.0)
}

func TestCouncilTalliesPerRecord(t *testing.T) {
	out := tallyCouncil([]models.CouncilVote{
		vote("a", "1", "MED1", 0.90),
		vote("b", "1", "MED1", 0.90),
		vote("a", "2", "MED2", 0.90),
		vote("b", "2", "MED3", 0.95),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].RecordID)
	assert.Equal(t, "2", out[1].RecordID)
	assert.Equal(t, "MED1", out[0].MatchedCollegeID)
}
