package agentic

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatmatrix/matchlink/models"
)

func TestBatchSizeForClampsToBand(t *testing.T) {
	assert.Equal(t, maxBatchRecords, batchSizeFor("gemini-1.5-pro"))
	assert.Equal(t, maxBatchRecords, batchSizeFor("some-unknown-model"))
}

func TestGroupRecordsSplitsByStateAndCourse(t *testing.T) {
	var records []*models.SeatRecord
	candidates := make(map[int64][]models.Candidate)
	for i := int64(1); i <= 30; i++ {
		state := "KARNATAKA"
		if i%3 == 0 {
			state = "KERALA"
		}
		rec := &models.SeatRecord{ID: i, NormalizedState: state, CourseType: "MBBS"}
		records = append(records, rec)
		candidates[i] = []models.Candidate{
			{College: models.MasterCollege{ID: fmt.Sprintf("MED%05d", i)}, Score: 90},
		}
	}

	batches := groupRecords(records, candidates, 25)
	require.Len(t, batches, 2)
	for _, b := range batches {
		for _, rec := range b.Records {
			assert.Equal(t, b.Key.State, rec.NormalizedState)
			require.Len(t, b.Candidates[rec.ID], 1, "each record keeps its own candidate list")
		}
	}
}

func TestGroupRecordsChunksLargeGroups(t *testing.T) {
	var records []*models.SeatRecord
	for i := int64(1); i <= 60; i++ {
		records = append(records, &models.SeatRecord{ID: i, NormalizedState: "KARNATAKA", CourseType: "MBBS"})
	}

	batches := groupRecords(records, map[int64][]models.Candidate{}, 25)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Records, 25)
	assert.Len(t, batches[1].Records, 25)
	assert.Len(t, batches[2].Records, 10)
}
