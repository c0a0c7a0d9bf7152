// Package retrieval narrows the master college set to a small ranked
// candidate list per seat record before any model is consulted. Two
// strategies run in order: BM25 full-text retrieval where an index exists,
// then a unique-identifier fuzzy scan over the state/stream pool.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/seatmatrix/matchlink/config"
	"github.com/seatmatrix/matchlink/models"
	"github.com/seatmatrix/matchlink/registry"
	"github.com/seatmatrix/matchlink/similarity"
)

const (
	// MinScore is the floor below which a candidate is discarded outright.
	MinScore = 50.0
	// QualityFloor is the score a candidate needs before its record is
	// worth sending to a model at all.
	QualityFloor = 70.0
	// fullRatioSafetyNet rescues candidates whose full-name token-set score
	// is near-exact even when the unique-identifier score is low.
	fullRatioSafetyNet = 90.0
	// ftsFloor keeps strong BM25 hits even when re-scoring is weak.
	ftsFloor = 5.0
	// TopN bounds every candidate list.
	TopN = 10
)

// genericHospitalNames are record names so generic that a candidate must
// also share an address token before it may be offered to a model.
var genericHospitalNames = map[string]bool{
	"AREA HOSPITAL":       true,
	"DISTRICT HOSPITAL":   true,
	"GENERAL HOSPITAL":    true,
	"CIVIL HOSPITAL":      true,
	"GOVERNMENT HOSPITAL": true,
	"TALUK HOSPITAL":      true,
}

// Retriever builds per-record candidate sets from the registry.
type Retriever struct {
	reg     *registry.Registry
	diploma config.DiplomaConfig
	log     *zap.SugaredLogger
}

// New constructs a Retriever.
func New(reg *registry.Registry, diploma config.DiplomaConfig, log *zap.SugaredLogger) *Retriever {
	return &Retriever{reg: reg, diploma: diploma, log: log}
}

// StreamsFor maps a record's course type to the registry streams its
// college may belong to. DNB courses cascade into the medical pool because
// many DNB seats are hosted at medical colleges.
func (rt *Retriever) StreamsFor(rec *models.SeatRecord) []models.Stream {
	switch rec.Stream() {
	case models.CourseDental:
		return []models.Stream{models.StreamDental}
	case models.CourseDNB:
		return []models.Stream{models.StreamDNB, models.StreamMedical}
	case models.CourseDiploma:
		var out []models.Stream
		for _, s := range rt.diploma.Streams(rec.NormalizedCourseName) {
			out = append(out, models.Stream(s))
		}
		return out
	default:
		return []models.Stream{models.StreamMedical}
	}
}

// Candidates returns the ranked candidate set for one record. The returned
// set is freshly allocated; callers must never share it across records.
func (rt *Retriever) Candidates(ctx context.Context, rec *models.SeatRecord) (*models.CandidateSet, error) {
	streams := rt.StreamsFor(rec)
	set := &models.CandidateSet{RecordID: rec.ID}

	// Strategy 1: BM25 retrieval, stream tables tried in cascade order.
	for _, stream := range streams {
		if !rt.reg.HasFTS(stream) {
			continue
		}
		hits, err := rt.reg.SearchFTS(ctx, stream, rec.BestCollegeName(), rec.BestState(), TopN*3)
		if err != nil {
			rt.log.Warnw("full-text search failed, falling back", "record", rec.ID, "error", err)
			break
		}
		for _, h := range hits {
			score := scoreCandidate(rec, &h.College)
			if score >= MinScore || h.Score >= ftsFloor {
				if score < MinScore {
					score = MinScore
				}
				set.Candidates = append(set.Candidates, models.Candidate{
					College: h.College, Score: score, Method: "fts",
				})
			}
		}
		if len(set.Candidates) > 0 {
			break
		}
	}

	// Strategy 2: unique-identifier scan over the state/stream pool.
	if len(set.Candidates) == 0 {
		pool, err := rt.reg.CollegesByStateStream(ctx, rec.BestState(), streams)
		if err != nil {
			return nil, err
		}
		for i := range pool {
			score := scoreCandidate(rec, &pool[i])
			if score >= MinScore {
				set.Candidates = append(set.Candidates, models.Candidate{
					College: pool[i], Score: score, Method: "unique_id",
				})
			}
		}
	}

	set.Candidates = rt.filterGenericName(rec, set.Candidates)
	set.Candidates = filterAddressKeywords(rec, set.Candidates)

	sort.SliceStable(set.Candidates, func(i, j int) bool {
		return set.Candidates[i].Score > set.Candidates[j].Score
	})
	if len(set.Candidates) > TopN {
		set.Candidates = set.Candidates[:TopN]
	}
	return set, nil
}

// Quality keeps only candidates at or above the LLM quality floor.
func Quality(cands []models.Candidate) []models.Candidate {
	var out []models.Candidate
	for _, c := range cands {
		if c.Score >= QualityFloor {
			out = append(out, c)
		}
	}
	return out
}

// scoreCandidate implements the four-case unique-identifier comparison.
func scoreCandidate(rec *models.SeatRecord, college *models.MasterCollege) float64 {
	recName := rec.BestCollegeName()
	recUID := similarity.UniqueIdentifier(recName)
	candUID := similarity.UniqueIdentifier(college.BestName())

	var score float64
	switch {
	case recUID != "" && candUID != "":
		score = similarity.TokenSetRatio(recUID, candUID)
	case recUID == "" && candUID != "":
		// Fully generic record name: its address is the only identity.
		score = similarity.TokenSetRatio(rec.BestAddress(), candUID)
	case recUID != "" && candUID == "":
		score = similarity.TokenSetRatio(recUID, college.BestName())
	default:
		score = similarity.TokenSetRatio(prefix(rec.BestAddress(), 50), prefix(college.Address, 50))
	}

	if full := similarity.TokenSetRatio(recName, college.BestName()); full >= fullRatioSafetyNet && full > score {
		score = full
	}
	return score
}

// filterGenericName enforces the address-overlap requirement for records
// whose name is one of the fully generic hospital names.
func (rt *Retriever) filterGenericName(rec *models.SeatRecord, cands []models.Candidate) []models.Candidate {
	name := strings.ToUpper(strings.TrimSpace(rec.BestCollegeName()))
	if !genericHospitalNames[name] {
		return cands
	}
	recKeywords := similarity.AddressKeywords(rec.BestAddress(), 4)
	if len(recKeywords) == 0 {
		return nil
	}
	var out []models.Candidate
	for _, c := range cands {
		if similarity.Intersects(recKeywords, similarity.AddressKeywords(c.College.Address, 4)) {
			out = append(out, c)
		}
	}
	return out
}

// filterAddressKeywords keeps candidates sharing at least one address
// keyword with the record. A zero-overlap result keeps everything: an empty
// filter must never manufacture false negatives.
func filterAddressKeywords(rec *models.SeatRecord, cands []models.Candidate) []models.Candidate {
	recKeywords := similarity.AddressKeywords(rec.BestAddress(), 4)
	if len(recKeywords) == 0 || len(cands) <= 1 {
		return cands
	}
	if len(recKeywords) > 10 {
		recKeywords = recKeywords[:10]
	}
	var out []models.Candidate
	for _, c := range cands {
		if similarity.Intersects(recKeywords, similarity.AddressKeywords(c.College.Address, 4)) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return cands
	}
	return out
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
