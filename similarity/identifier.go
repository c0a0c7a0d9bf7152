package similarity

import (
	"regexp"
	"strings"
)

// genericWords are institutional terms carried by nearly every college name.
// They contribute nothing to identity and inflate token-set scores, so the
// unique-identifier method strips them before scoring.
var genericWords = map[string]bool{
	"MEDICAL": true, "COLLEGE": true, "HOSPITAL": true, "INSTITUTE": true,
	"OF": true, "AND": true, "THE": true, "SCIENCES": true, "SCIENCE": true,
	"EDUCATION": true, "RESEARCH": true, "CENTRE": true, "CENTER": true,
	"DENTAL": true, "GOVERNMENT": true, "GOVT": true, "PRIVATE": true,
	"PVT": true, "UNIVERSITY": true, "ACADEMY": true, "SCHOOL": true,
	"FOUNDATION": true, "TRUST": true, "CHARITABLE": true, "SOCIETY": true,
	"FOR": true, "IN": true, "AT": true, "WITH": true, "STUDIES": true,
	"TRAINING": true, "POSTGRADUATE": true, "POST": true, "GRADUATE": true,
	"UNDER": true, "SUPER": true, "SPECIALTY": true, "SPECIALITY": true,
	"MULTI": true, "TEACHING": true, "GENERAL": true, "DISTRICT": true,
	"REGIONAL": true, "STATE": true, "NATIONAL": true, "INTERNATIONAL": true,
	"INDIAN": true, "INDIA": true, "AUTONOMOUS": true,
}

// addressStopwords are terms that never disambiguate an address.
var addressStopwords = map[string]bool{
	"HOSPITAL": true, "COLLEGE": true, "MEDICAL": true, "DENTAL": true,
	"INSTITUTE": true, "GOVT": true, "GOVERNMENT": true, "STATE": true,
	"AUTONOMOUS": true, "SOCIETY": true, "DISTRICT": true, "TALUK": true,
	"POST": true, "OFFICE": true, "ROAD": true, "STREET": true,
	"NAGAR": true, "NEAR": true, "OPP": true, "BEHIND": true,
	"INDIA": true, "PIN": true, "PINCODE": true, "EMAIL": true,
	"GMAIL": true, "COM": true, "WWW": true,
}

var (
	collegeCodeRe = regexp.MustCompile(`\((\d{6})\)`)
	bracketRe     = regexp.MustCompile(`\([^)]*\)`)
	pincodeRe     = regexp.MustCompile(`\b[1-9][0-9]{5}\b`)
	nonAlnumRe    = regexp.MustCompile(`[^A-Z0-9]`)
)

// UniqueIdentifier strips generic words and short tokens from a college
// name, leaving the part that actually identifies the institution.
// Returns "" when the name is fully generic ("DISTRICT HOSPITAL").
func UniqueIdentifier(name string) string {
	name = strings.ToUpper(name)
	// ESIC is an abbreviation for a hospital chain; expand so the tokens
	// survive the length filter consistently.
	name = strings.ReplaceAll(name, "E.S.I.C", "ESIC")

	var kept []string
	for _, t := range Tokens(name) {
		if len(t) <= 2 || genericWords[t] {
			continue
		}
		kept = append(kept, t)
	}
	return strings.Join(kept, " ")
}

// IsGenericName reports whether a college name carries no identifying token.
func IsGenericName(name string) bool {
	return UniqueIdentifier(name) == ""
}

// AddressKeywords extracts the non-stopword tokens of minLen or more
// characters from an address, excluding pure numbers.
func AddressKeywords(address string, minLen int) []string {
	var out []string
	for _, t := range Tokens(address) {
		if len(t) < minLen || addressStopwords[t] {
			continue
		}
		if isNumeric(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// CollegeCodes extracts the bracketed 6-digit registry codes from an address.
// These are the strongest identity signal an address can carry.
func CollegeCodes(address string) []string {
	var codes []string
	for _, m := range collegeCodeRe.FindAllStringSubmatch(address, -1) {
		codes = append(codes, m[1])
	}
	return codes
}

// Pincodes extracts 6-digit postal codes appearing outside brackets.
func Pincodes(address string) []string {
	stripped := bracketRe.ReplaceAllString(address, "")
	return pincodeRe.FindAllString(stripped, -1)
}

// Squash removes everything but letters and digits, used for the de-spaced
// address comparison that survives OCR splits like "THIRUVANANTHAP URAM".
func Squash(s string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToUpper(s), "")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Intersects reports whether two string slices share any element.
func Intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}
