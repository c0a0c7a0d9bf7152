package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/seatmatrix/matchlink/models"
	"github.com/seatmatrix/matchlink/similarity"
)

// FTSHit is one ranked hit from a per-stream full-text index.
type FTSHit struct {
	College models.MasterCollege
	Score   float64
}

// HasFTS reports whether the full-text table for a stream is available.
// Only the SQLite deployments carry FTS5 tables; on PostgreSQL the
// retrieval layer falls back to the unique-identifier scan.
func (r *Registry) HasFTS(stream models.Stream) bool {
	return r.db.HasFTS(string(stream))
}

// SearchFTS runs a BM25-ranked query over a stream's full-text table,
// filtered by state. Scores are negated bm25 values so larger is better.
func (r *Registry) SearchFTS(ctx context.Context, stream models.Stream, collegeName, state string, limit int) ([]FTSHit, error) {
	table := ftsTable(stream)
	if table == "" {
		return nil, fmt.Errorf("no full-text table for stream %s", stream)
	}

	query := ftsQuery(collegeName)
	if query == "" {
		return nil, nil
	}

	q := r.db.Master.Rebind(fmt.Sprintf(`
		SELECT id, name, state, address, bm25(%s) AS rank
		FROM %s
		WHERE %s MATCH ? AND state = ?
		ORDER BY rank
		LIMIT ?`, table, table, table))

	rows, err := r.db.Master.QueryContext(ctx, q, query, strings.ToUpper(strings.TrimSpace(state)), limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search on %s: %w", table, err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		var rank float64
		if err := rows.Scan(&h.College.ID, &h.College.Name, &h.College.State, &h.College.Address, &rank); err != nil {
			return nil, err
		}
		h.College.NormalizedName = h.College.Name
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func ftsTable(stream models.Stream) string {
	switch stream {
	case models.StreamMedical:
		return "medical_colleges_fts"
	case models.StreamDental:
		return "dental_colleges_fts"
	case models.StreamDNB:
		return "dnb_colleges_fts"
	}
	return ""
}

// ftsQuery builds an OR query from the identifying tokens of a college
// name. Tokens of two characters or fewer add noise, not signal.
func ftsQuery(name string) string {
	var terms []string
	for _, t := range similarity.Tokens(name) {
		if len(t) > 2 {
			terms = append(terms, fmt.Sprintf("%q", t))
		}
	}
	return strings.Join(terms, " OR ")
}
