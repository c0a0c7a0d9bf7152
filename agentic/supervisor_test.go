package agentic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seatmatrix/matchlink/config"
	"github.com/seatmatrix/matchlink/db"
	"github.com/seatmatrix/matchlink/internal/testdb"
	"github.com/seatmatrix/matchlink/models"
	"github.com/seatmatrix/matchlink/registry"
	"github.com/seatmatrix/matchlink/retrieval"
	"github.com/seatmatrix/matchlink/validation"
)

// fakeClient scripts model responses per model name. A missing entry fails
// the call, which exercises the re-dispatch path.
type fakeClient struct {
	mu        sync.Mutex
	responses map[string]func(user string) (string, error)
	calls     []string
}

func (f *fakeClient) Generate(ctx context.Context, model, system, user string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, model)
	fn := f.responses[model]
	f.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("model %s unavailable", model)
	}
	return fn(user)
}

func (f *fakeClient) Workers() int { return 2 }

func (f *fakeClient) called(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == model {
			n++
		}
	}
	return n
}

// echoDecisions answers with one high-confidence decision per record,
// matching each record to the candidate whose address shares its city.
func echoDecisions(d *db.DB, t *testing.T) func(user string) (string, error) {
	return func(user string) (string, error) {
		type out struct {
			RecordID         string  `json:"record_id"`
			MatchedCollegeID *string `json:"matched_college_id"`
			MatchedState     string  `json:"matched_state"`
			Confidence       float64 `json:"confidence"`
			Reason           string  `json:"reason"`
		}
		var decisions []out
		rows, err := d.Seat.Query(`
			SELECT s.id, c.id
			FROM seat_data s
			JOIN state_college_link scl ON scl.address = s.normalized_address
			JOIN colleges c ON c.id = scl.college_id
			WHERE s.master_college_id IS NULL`)
		if err != nil {
			return "", err
		}
		defer rows.Close()
		for rows.Next() {
			var recID, colID string
			if err := rows.Scan(&recID, &colID); err != nil {
				return "", err
			}
			if !strings.Contains(user, "RECORD "+recID+"\n") {
				continue
			}
			id := colID
			decisions = append(decisions, out{
				RecordID: recID, MatchedCollegeID: &id,
				MatchedState: "KARNATAKA", Confidence: 0.95,
				Reason: "address city match",
			})
		}
		raw, err := json.Marshal(decisions)
		if err != nil {
			return "", err
		}
		return "```json\n" + string(raw) + "\n```", nil
	}
}

func testSupervisor(t *testing.T, d *db.DB, client ModelClient, cfg *config.Pipeline) *Supervisor {
	t.Helper()
	log := zap.NewNop().Sugar()
	reg := registry.New(d)
	ret := retrieval.New(reg, cfg.Diploma, log)
	guard := validation.NewGuard(reg, cfg.Diploma, log)
	return NewSupervisor(d, ret, guard, nil, client, cfg, log)
}

func agenticConfig() *config.Pipeline {
	return &config.Pipeline{
		Table:       "seat_data",
		WorkerCount: 2,
		MaxRounds:   2,
		Validate:    true,
		Models:      []string{"model-a", "model-b", "model-c"},
	}
}

func seedDistrictHospitals(t *testing.T, d *db.DB) []int64 {
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddCourse(t, d, 10, "MBBS")
	cities := []string{"VIJAYAPURA", "BALLARI", "DHARWAD", "KOLAR", "HASSAN", "MANDYA", "TUMAKURU", "UDUPI"}
	for i, city := range cities {
		testdb.AddCollege(t, d, fmt.Sprintf("MED%05d", i+1), "DISTRICT HOSPITAL", city, 1, "MEDICAL", 10)
	}

	var ids []int64
	for _, city := range []string{"VIJAYAPURA", "BALLARI", "DHARWAD"} {
		ids = append(ids, testdb.AddSeat(t, d, testdb.Seat{
			State: "KARNATAKA", Course: "MBBS",
			College: "DISTRICT HOSPITAL", Address: city,
			CourseType: "MBBS",
		}))
	}
	return ids
}

func TestSupervisorDisambiguatesDistrictHospitals(t *testing.T) {
	d := testdb.New(t)
	ids := seedDistrictHospitals(t, d)

	client := &fakeClient{responses: map[string]func(string) (string, error){
		"model-a": echoDecisions(d, t),
		"model-b": echoDecisions(d, t),
		"model-c": echoDecisions(d, t),
	}}

	sup := testSupervisor(t, d, client, agenticConfig())
	stats, err := sup.Run(context.Background(), "seat_data")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Matched)

	want := map[int64]string{ids[0]: "MED00001", ids[1]: "MED00002", ids[2]: "MED00003"}
	for id, college := range want {
		var got string
		var method string
		err := d.Seat.QueryRow(
			`SELECT master_college_id, college_match_method FROM seat_data WHERE id = ?`, id).
			Scan(&got, &method)
		require.NoError(t, err)
		assert.Equal(t, college, got, "record %d must land on its own city's campus", id)
		assert.Equal(t, "agentic_llm", method)
	}
}

func TestSupervisorRedispatchesFailedBatch(t *testing.T) {
	d := testdb.New(t)
	seedDistrictHospitals(t, d)

	// model-a always fails, so every batch must fall through to model-b.
	client := &fakeClient{responses: map[string]func(string) (string, error){
		"model-b": echoDecisions(d, t),
		"model-c": echoDecisions(d, t),
	}}

	cfg := agenticConfig()
	cfg.MaxRounds = 1
	sup := testSupervisor(t, d, client, cfg)
	stats, err := sup.Run(context.Background(), "seat_data")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Matched)
	assert.Positive(t, client.called("model-b")+client.called("model-c"))
}

func TestSupervisorRedispatchesZeroConfidenceBatch(t *testing.T) {
	d := testdb.New(t)
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddCourse(t, d, 10, "MBBS")
	testdb.AddCollege(t, d, "MED00001", "DISTRICT HOSPITAL", "BALLARI", 1, "MEDICAL", 10)
	id := testdb.AddSeat(t, d, testdb.Seat{
		State: "KARNATAKA", Course: "MBBS",
		College: "DISTRICT HOSPITAL", Address: "BALLARI",
		CourseType: "MBBS",
	})

	// model-a parses fine but carries no signal at all; the batch counts as
	// failed and must reach a model that can actually decide.
	zeroConfidence := func(user string) (string, error) {
		return fmt.Sprintf(`[{"record_id": "%d", "matched_college_id": "MED00001", "confidence": 0.0, "reason": "guess"}]`, id), nil
	}
	client := &fakeClient{responses: map[string]func(string) (string, error){
		"model-a": zeroConfidence,
		"model-b": echoDecisions(d, t),
		"model-c": echoDecisions(d, t),
	}}

	cfg := agenticConfig()
	cfg.MaxRounds = 1
	sup := testSupervisor(t, d, client, cfg)
	stats, err := sup.Run(context.Background(), "seat_data")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Matched)
	assert.Positive(t, client.called("model-b")+client.called("model-c"))

	var method string
	require.NoError(t, d.Seat.QueryRow(
		`SELECT college_match_method FROM seat_data WHERE id = ?`, id).Scan(&method))
	assert.Equal(t, "agentic_llm", method)
}

func TestSupervisorFallsBackLocallyWhenModelsExhausted(t *testing.T) {
	d := testdb.New(t)
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddCourse(t, d, 10, "MBBS")
	testdb.AddCollege(t, d, "MED00001", "VYDEHI INSTITUTE OF MEDICAL SCIENCES", "WHITEFIELD BANGALORE", 1, "MEDICAL", 10)
	id := testdb.AddSeat(t, d, testdb.Seat{
		State: "KARNATAKA", Course: "MBBS",
		College: "VYDEHI INSTITUTE OF MEDICAL SCIENCES", Address: "WHITEFIELD",
		CourseType: "MBBS",
	})

	client := &fakeClient{responses: map[string]func(string) (string, error){}}
	cfg := agenticConfig()
	cfg.MaxRounds = 1
	sup := testSupervisor(t, d, client, cfg)
	stats, err := sup.Run(context.Background(), "seat_data")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Matched)
	assert.EqualValues(t, 1, stats.Fallbacks)

	var method string
	require.NoError(t, d.Seat.QueryRow(
		`SELECT college_match_method FROM seat_data WHERE id = ?`, id).Scan(&method))
	assert.Equal(t, "hybrid_fallback", method)
}

func TestSupervisorFlagsUnresolvedAfterFinalRound(t *testing.T) {
	d := testdb.New(t)
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddCourse(t, d, 10, "MBBS")
	testdb.AddCollege(t, d, "MED00001", "VYDEHI INSTITUTE OF MEDICAL SCIENCES", "WHITEFIELD BANGALORE", 1, "MEDICAL", 10)
	id := testdb.AddSeat(t, d, testdb.Seat{
		State: "KARNATAKA", Course: "MBBS",
		College: "VYDEHI INSTITUTE OF MEDICAL SCIENCES", Address: "WHITEFIELD",
		CourseType: "MBBS",
	})

	// Models answer, but decline every record.
	decline := func(user string) (string, error) {
		return fmt.Sprintf(`[{"record_id": "%d", "matched_college_id": null, "confidence": 0.2, "reason": "unsure"}]`, id), nil
	}
	client := &fakeClient{responses: map[string]func(string) (string, error){
		"model-a": decline, "model-b": decline, "model-c": decline,
	}}

	cfg := agenticConfig()
	cfg.MaxRounds = 1
	sup := testSupervisor(t, d, client, cfg)
	stats, err := sup.Run(context.Background(), "seat_data")
	require.NoError(t, err)
	assert.Zero(t, stats.Matched)
	assert.Positive(t, stats.Flagged)

	var method string
	require.NoError(t, d.Seat.QueryRow(
		`SELECT college_match_method FROM seat_data WHERE id = ?`, id).Scan(&method))
	assert.Contains(t, []string{FlagNoMatch, FlagUnmatchable}, method)
}

func TestSupervisorVetoesCrossStateDecision(t *testing.T) {
	d := testdb.New(t)
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddState(t, d, 2, "KERALA")
	testdb.AddCourse(t, d, 10, "MBBS")
	testdb.AddCollege(t, d, "MED00001", "VYDEHI INSTITUTE OF MEDICAL SCIENCES", "WHITEFIELD BANGALORE", 1, "MEDICAL", 10)
	id := testdb.AddSeat(t, d, testdb.Seat{
		State: "KERALA", Course: "MBBS",
		College: "VYDEHI INSTITUTE OF MEDICAL SCIENCES", Address: "WHITEFIELD",
		CourseType: "MBBS",
	})

	sup := testSupervisor(t, d, &fakeClient{}, agenticConfig())
	rec := &models.SeatRecord{
		ID: id, NormalizedState: "KERALA",
		NormalizedCollegeName: "VYDEHI INSTITUTE OF MEDICAL SCIENCES",
		NormalizedAddress:     "WHITEFIELD", CourseType: "MBBS",
	}
	res := batchResult{
		batch: &Batch{
			Key:     GroupKey{State: "KERALA", Course: models.CourseMedical},
			Records: []*models.SeatRecord{rec},
			Candidates: map[int64][]models.Candidate{
				id: {{College: models.MasterCollege{ID: "MED00001", State: "KARNATAKA"}, Score: 95}},
			},
			ModelsTried: map[string]bool{},
		},
		decisions: []models.MatchDecision{{
			RecordID: fmt.Sprintf("%d", id), MatchedCollegeID: "MED00001",
			Confidence: 0.99, Model: "model-a",
		}},
	}

	var stats Stats
	n, err := sup.collect(context.Background(), "seat_data", res, true, &stats)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.EqualValues(t, 1, stats.Rejected)

	var method string
	require.NoError(t, d.Seat.QueryRow(
		`SELECT college_match_method FROM seat_data WHERE id = ?`, id).Scan(&method))
	assert.Equal(t, validation.FlagStateBlocked, method)
}
