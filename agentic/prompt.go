package agentic

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a medical college registry matching expert for Indian admission data.

You receive admission records and, for each record, a numbered list of candidate colleges from the official registry. Decide which candidate (if any) the record refers to.

Matching rules:
1. Match ONLY within a record's own candidate list. Never reuse a candidate from another record.
2. The college must be in the same state as the record. State mismatch is never acceptable.
3. Pay close attention to city and district names in addresses. Institutions like "DISTRICT HOSPITAL" exist in many cities of the same state; the address decides which one is meant.
4. Hospital chains and multi-campus institutions share a name across cities. Match the campus whose address agrees with the record.
5. Abbreviations are common: KIMS, ESIC, AIIMS and similar short forms expand to full institution names.
6. Only return a match when you are at least 90% confident. When unsure, return null.

Respond with ONLY a JSON array, one object per record:
[{"record_id": "<id>", "matched_college_id": "<candidate id or null>", "matched_state": "<state>", "confidence": 0.95, "reason": "<one line>"}]

Use JSON null (not the string "null") for matched_college_id when there is no match.`

// buildUserPrompt renders one batch: every record with its own candidate
// list, formatted as "ID | NAME, ADDRESS | STATE" rows.
func buildUserPrompt(batch *Batch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\nCourse type: %s\nRecords: %d\n",
		batch.Key.State, batch.Key.Course, len(batch.Records))

	for _, rec := range batch.Records {
		fmt.Fprintf(&b, "\nRECORD %d\n", rec.ID)
		fmt.Fprintf(&b, "  college: %s\n", rec.BestCollegeName())
		if addr := rec.BestAddress(); addr != "" {
			fmt.Fprintf(&b, "  address: %s\n", addr)
		}
		fmt.Fprintf(&b, "  course: %s\n", rec.NormalizedCourseName)
		b.WriteString("  candidates:\n")
		for _, c := range batch.Candidates[rec.ID] {
			fmt.Fprintf(&b, "    %s | %s, %s | %s\n",
				c.College.ID, c.College.BestName(), c.College.Address, c.College.State)
		}
	}
	b.WriteString("\nReturn the JSON array now.")
	return b.String()
}
