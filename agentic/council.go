package agentic

import (
	"sort"
	"strings"

	"github.com/seatmatrix/matchlink/models"
)

const (
	unanimousBonus   = 0.05
	splitVotePenalty = 0.10
)

// tallyCouncil reduces per-model decision sets to one decision per record by
// majority over the proposed college id. A null proposal counts as a vote
// for "no match". Confidence is the mean of the agreeing votes, raised for
// a unanimous council and cut for a split one.
func tallyCouncil(votes []models.CouncilVote) []models.MatchDecision {
	byRecord := make(map[string][]models.CouncilVote)
	for _, v := range votes {
		byRecord[v.Decision.RecordID] = append(byRecord[v.Decision.RecordID], v)
	}

	ids := make([]string, 0, len(byRecord))
	for id := range byRecord {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.MatchDecision, 0, len(ids))
	for _, id := range ids {
		recVotes := byRecord[id]
		counts := make(map[string]int)
		for _, v := range recVotes {
			counts[v.Decision.MatchedCollegeID]++
		}

		winner, winnerCount := "", 0
		for collegeID, n := range counts {
			if n > winnerCount {
				winner, winnerCount = collegeID, n
			}
		}

		var sum float64
		var agreeing []models.CouncilVote
		var modelNames []string
		for _, v := range recVotes {
			if v.Decision.MatchedCollegeID == winner {
				agreeing = append(agreeing, v)
				sum += v.Decision.Confidence
				modelNames = append(modelNames, v.Model)
			}
		}

		d := agreeing[0].Decision
		d.Confidence = sum / float64(len(agreeing))
		if len(agreeing) == len(recVotes) {
			d.Confidence += unanimousBonus
		} else {
			d.Confidence -= splitVotePenalty
		}
		if d.Confidence > 1 {
			d.Confidence = 1
		}
		if d.Confidence < 0 {
			d.Confidence = 0
		}
		d.Model = strings.Join(modelNames, "+")
		out = append(out, d)
	}
	return out
}
