package validation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seatmatrix/matchlink/config"
	"github.com/seatmatrix/matchlink/models"
	"github.com/seatmatrix/matchlink/registry"
	"github.com/seatmatrix/matchlink/similarity"
)

// Flag markers stamped on records when a decision is vetoed for a reason
// that would also block any future proposal.
const (
	FlagStreamBlocked      = "stream_blocked"
	FlagStateBlocked       = "state_blocked"
	FlagMultiCampusBlocked = "multi_campus_blocked"
)

const (
	nameRejectFloor = 65.0
	nameWarnCeil    = 80.0
	nullAddressName = 90.0

	keywordMinLen = 4

	// Names shorter than this with only generic tokens describe a class of
	// institution (DISTRICT HOSPITAL), not an institution, so campus
	// counting by name is meaningless for them.
	genericNameLen = 25
)

// Rejection is the expected, non-error outcome of a failed check. Flag is
// empty when the veto applies only to this proposal, not to the record.
type Rejection struct {
	Flag   string
	Reason string
}

// Guard cross-checks every proposed MatchDecision against the registry
// before it is committed. It trusts nothing the proposer echoed back: the
// candidate's state, address and stream are re-read from the registry by id.
type Guard struct {
	reg     *registry.Registry
	diploma config.DiplomaConfig
	log     *zap.SugaredLogger
}

// NewGuard builds a validation guard over the registry.
func NewGuard(reg *registry.Registry, diploma config.DiplomaConfig, log *zap.SugaredLogger) *Guard {
	return &Guard{reg: reg, diploma: diploma, log: log}
}

// Check runs the ordered validation chain for one record/decision pair.
// A nil Rejection means the decision may be committed.
func (g *Guard) Check(ctx context.Context, rec *models.SeatRecord, d *models.MatchDecision) (*Rejection, error) {
	college, err := g.reg.CollegeByID(ctx, d.MatchedCollegeID)
	if errors.Is(err, sql.ErrNoRows) {
		return &Rejection{Reason: fmt.Sprintf("college id %q not in registry", d.MatchedCollegeID)}, nil
	}
	if err != nil {
		return nil, err
	}

	if rej := g.checkStream(rec, &college); rej != nil {
		return rej, nil
	}
	if rej := checkState(rec, &college); rej != nil {
		return rej, nil
	}
	if rej := g.checkName(rec, &college); rej != nil {
		return rej, nil
	}
	return g.checkAddress(ctx, rec, &college)
}

func (g *Guard) checkStream(rec *models.SeatRecord, college *models.MasterCollege) *Rejection {
	stream := college.Stream()
	for _, allowed := range g.allowedStreams(rec) {
		if stream == allowed {
			return nil
		}
	}
	return &Rejection{
		Flag:   FlagStreamBlocked,
		Reason: fmt.Sprintf("%s record cannot match %s college %s", rec.Stream(), stream, college.ID),
	}
}

// allowedStreams lists the college streams a record's course type may
// resolve into. DNB records may fall through to medical colleges running
// DNB seats; diploma courses follow the configured stream lists.
func (g *Guard) allowedStreams(rec *models.SeatRecord) []models.Stream {
	switch rec.Stream() {
	case models.CourseDental:
		return []models.Stream{models.StreamDental}
	case models.CourseDNB:
		return []models.Stream{models.StreamDNB, models.StreamMedical}
	case models.CourseDiploma:
		var out []models.Stream
		for _, s := range g.diploma.Streams(rec.NormalizedCourseName) {
			out = append(out, models.Stream(s))
		}
		return out
	default:
		return []models.Stream{models.StreamMedical}
	}
}

func checkState(rec *models.SeatRecord, college *models.MasterCollege) *Rejection {
	want := strings.ToUpper(strings.TrimSpace(rec.BestState()))
	got := strings.ToUpper(strings.TrimSpace(college.State))
	if want == "" || want == got {
		return nil
	}
	return &Rejection{
		Flag:   FlagStateBlocked,
		Reason: fmt.Sprintf("record state %s but college %s is in %s", want, college.ID, got),
	}
}

func (g *Guard) checkName(rec *models.SeatRecord, college *models.MasterCollege) *Rejection {
	score := similarity.TokenSetRatio(rec.BestCollegeName(), college.BestName())
	if score < nameRejectFloor {
		return &Rejection{Reason: fmt.Sprintf("name similarity %.0f%% below floor for %s", score, college.ID)}
	}
	if score < nameWarnCeil {
		g.log.Warnw("low name similarity accepted",
			"record", rec.ID, "college", college.ID, "score", score)
	}
	return nil
}

// checkAddress walks the positive-signal hierarchy: bracketed college code,
// then pincode, then keyword overlap. A record without any address signal
// is rejected under the strict policy, and multi-campus colleges demand
// address overlap even when a weaker signal passed.
func (g *Guard) checkAddress(ctx context.Context, rec *models.SeatRecord, college *models.MasterCollege) (*Rejection, error) {
	recAddr := rec.BestAddress()
	colAddr := college.Address

	multi, err := g.multiCampus(ctx, college)
	if err != nil {
		return nil, err
	}

	if recAddr == "" {
		// No address to cross-check: only a lone campus with a very
		// strong name match is safe.
		if multi {
			return &Rejection{
				Flag:   FlagMultiCampusBlocked,
				Reason: fmt.Sprintf("record has no address and %s is multi-campus", college.ID),
			}, nil
		}
		if similarity.TokenSetRatio(rec.BestCollegeName(), college.BestName()) < nullAddressName {
			return &Rejection{Reason: "record has no address and name match is not near-exact"}, nil
		}
		return nil, nil
	}

	recCodes := similarity.CollegeCodes(recAddr)
	colCodes := similarity.CollegeCodes(colAddr)
	if len(recCodes) > 0 && len(colCodes) > 0 {
		if similarity.Intersects(recCodes, colCodes) {
			return nil, nil
		}
		return &Rejection{Reason: fmt.Sprintf("college code mismatch: record %v vs %s %v", recCodes, college.ID, colCodes)}, nil
	}

	accepted := false
	recPins := similarity.Pincodes(recAddr)
	colPins := similarity.Pincodes(colAddr)
	if len(recPins) > 0 && len(colPins) > 0 {
		if similarity.Intersects(recPins, colPins) {
			accepted = true
		} else if multi {
			return &Rejection{
				Flag:   FlagMultiCampusBlocked,
				Reason: fmt.Sprintf("pincode mismatch on multi-campus college %s", college.ID),
			}, nil
		}
	}

	if !accepted && !addressOverlaps(recAddr, colAddr) {
		if multi {
			return &Rejection{
				Flag:   FlagMultiCampusBlocked,
				Reason: fmt.Sprintf("no address signal for multi-campus college %s", college.ID),
			}, nil
		}
		return &Rejection{Reason: fmt.Sprintf("no address signal linking record to %s", college.ID)}, nil
	}

	// Sibling rows sharing the exact normalized name in this state still
	// need non-stopword token overlap between the two full addresses.
	if multi && !similarity.Intersects(
		similarity.AddressKeywords(recAddr, keywordMinLen),
		similarity.AddressKeywords(colAddr, keywordMinLen)) {
		return &Rejection{
			Flag:   FlagMultiCampusBlocked,
			Reason: fmt.Sprintf("zero address overlap with multi-campus college %s", college.ID),
		}, nil
	}
	return nil, nil
}

// addressOverlaps looks for shared address keywords, tolerating broken
// spacing in the record's address ("THIRUVANANTHAP URAM").
func addressOverlaps(recAddr, colAddr string) bool {
	colKeys := similarity.AddressKeywords(colAddr, keywordMinLen)
	for _, kw := range similarity.AddressKeywords(recAddr, keywordMinLen) {
		for _, ck := range colKeys {
			if kw == ck {
				return true
			}
		}
	}
	squashedRec := similarity.Squash(recAddr)
	for _, ck := range colKeys {
		if len(ck) >= 6 && strings.Contains(squashedRec, ck) {
			return true
		}
	}
	return false
}

func (g *Guard) multiCampus(ctx context.Context, college *models.MasterCollege) (bool, error) {
	name := college.NormalizedName
	if name == "" {
		name = college.Name
	}
	if len(name) < genericNameLen && similarity.IsGenericName(name) {
		return false, nil
	}
	n, err := g.reg.CampusCount(ctx, name, college.State)
	if err != nil {
		return false, err
	}
	return n > 1, nil
}
