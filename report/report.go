package report

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/seatmatrix/matchlink/db"
	"github.com/seatmatrix/matchlink/matcher"
)

// PrintRun renders the end-of-pipeline summary: what each stage resolved,
// what the sweep cleared, and the final state of the table.
func PrintRun(table string, before db.MatchStats, res matcher.Result) {
	color.Cyan("\n=== Matching Pipeline Report: %s ===", table)

	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"Stage", "Resolved"})
	t.Append([]string{"Stage 1 states", fmt.Sprintf("%d", res.Stage1.StatesResolved)})
	t.Append([]string{"Stage 1 courses", fmt.Sprintf("%d", res.Stage1.CoursesResolved)})
	t.Append([]string{"Stage 1 colleges", fmt.Sprintf("%d", res.Stage1.CollegesResolved)})
	t.Append([]string{"Stage 2 fuzzy", fmt.Sprintf("%d", res.Stage2)})
	t.Append([]string{"Agentic consensus", fmt.Sprintf("%d", res.Agentic.Matched)})
	t.Append([]string{"Local fallback", fmt.Sprintf("%d", res.Agentic.Fallbacks)})
	t.Render()

	color.Yellow("\nOutcome Counts")
	t = tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"Outcome", "Count"})
	t.Append([]string{"Vetoed by validation", fmt.Sprintf("%d", res.Agentic.Rejected)})
	t.Append([]string{"Flagged unmatchable", fmt.Sprintf("%d", res.Agentic.Flagged)})
	t.Append([]string{"No qualifying candidates", fmt.Sprintf("%d", res.Agentic.NoCands)})
	t.Append([]string{"False matches cleared", fmt.Sprintf("%d", res.Cleared)})
	t.Render()

	PrintStats(before, res.Final)
}

// PrintSnapshot renders the current state of a table without a baseline.
func PrintSnapshot(table string, stats db.MatchStats) {
	color.Cyan("\n=== Match Statistics: %s ===", table)
	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"Total", "Matched", "Unmatched", "Percent"})
	t.Append([]string{
		fmt.Sprintf("%d", stats.Total),
		fmt.Sprintf("%d", stats.Matched),
		fmt.Sprintf("%d", stats.Total-stats.Matched),
		percent(stats.Matched, stats.Total),
	})
	t.Render()
	printMethods(stats)
}

// PrintStats renders before/after match rates and per-method counts.
func PrintStats(before, after db.MatchStats) {
	color.Yellow("\nMatch Rate")
	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"", "Total", "Matched", "Percent"})
	t.Append([]string{"Before", fmt.Sprintf("%d", before.Total),
		fmt.Sprintf("%d", before.Matched), percent(before.Matched, before.Total)})
	t.Append([]string{"After", fmt.Sprintf("%d", after.Total),
		fmt.Sprintf("%d", after.Matched), percent(after.Matched, after.Total)})
	t.Render()

	printMethods(after)
}

func printMethods(stats db.MatchStats) {
	if len(stats.ByMethod) == 0 {
		return
	}
	methods := make([]string, 0, len(stats.ByMethod))
	for m := range stats.ByMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	color.Yellow("\nMatches by Method")
	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"Method", "Count"})
	for _, m := range methods {
		t.Append([]string{m, fmt.Sprintf("%d", stats.ByMethod[m])})
	}
	t.Render()
}

func percent(part, total int64) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(total))
}
