// Package similarity implements the string scoring used across the matching
// pipeline: Levenshtein-based ratios, token-set similarity, and the
// unique-identifier extraction that keeps generic institutional words from
// inflating scores.
package similarity

import (
	"sort"
	"strings"
)

// Levenshtein computes the edit distance between two strings.
func Levenshtein(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := 0; j <= len(s2); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

// Ratio scores two strings 0..100 by normalized edit distance.
func Ratio(a, b string) float64 {
	if a == b {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	d := Levenshtein(a, b)
	return (1 - float64(d)/float64(maxLen)) * 100
}

// TokenSetRatio scores two strings 0..100 ignoring word order and duplicate
// tokens. A full subset relationship scores 100, which is what lets
// "KIMS" match "KIMS HOSPITAL" while plain Ratio would not.
func TokenSetRatio(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		if len(ta) == 0 && len(tb) == 0 {
			return 100
		}
		return 0
	}

	inter := make([]string, 0)
	onlyA := make([]string, 0)
	for t := range ta {
		if tb[t] {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	onlyB := make([]string, 0)
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(inter, " ")
	combA := joinNonEmpty(base, strings.Join(onlyA, " "))
	combB := joinNonEmpty(base, strings.Join(onlyB, " "))

	best := Ratio(combA, combB)
	if base != "" {
		if s := Ratio(base, combA); s > best {
			best = s
		}
		if s := Ratio(base, combB); s > best {
			best = s
		}
	}
	return best
}

// TokenOverlap returns the tokens (longer than minLen) shared by both strings.
func TokenOverlap(a, b string, minLen int) []string {
	ta := tokenSet(a)
	tb := tokenSet(b)
	var out []string
	for t := range ta {
		if len(t) > minLen && tb[t] {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokens(s) {
		set[t] = true
	}
	return set
}

// Tokens splits a string into upper-cased alphanumeric tokens.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		alnum := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		return !alnum
	})
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
