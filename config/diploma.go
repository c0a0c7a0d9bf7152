package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DiplomaConfig classifies diploma course names into the streams whose
// colleges may legitimately offer them. Diplomas are the one course type
// that crosses the medical/DNB boundary, so the lists are configuration,
// not code.
type DiplomaConfig struct {
	// DNBOnly diplomas are offered exclusively at DNB-accredited hospitals.
	DNBOnly []string `yaml:"dnb_only"`
	// Overlapping diplomas are offered at both medical colleges and DNB
	// hospitals.
	Overlapping []string `yaml:"overlapping"`
}

type diplomaFile struct {
	DiplomaCourses DiplomaConfig `yaml:"diploma_courses"`
}

// LoadDiploma parses the diploma_courses section of a YAML config file.
func LoadDiploma(path string) (DiplomaConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return DiplomaConfig{}, err
	}
	var f diplomaFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return DiplomaConfig{}, err
	}
	return f.DiplomaCourses, nil
}

// normalizeDiploma collapses " IN " so "DIPLOMA IN ANAESTHESIA" and
// "DIPLOMA ANAESTHESIA" compare equal.
func normalizeDiploma(name string) string {
	return strings.ReplaceAll(strings.ToUpper(name), " IN ", " ")
}

// Streams returns the streams a diploma course may resolve into.
// Unlisted diplomas stay within the medical stream.
func (d DiplomaConfig) Streams(courseName string) []string {
	norm := normalizeDiploma(courseName)
	for _, c := range d.DNBOnly {
		if strings.Contains(norm, normalizeDiploma(c)) {
			return []string{"DNB"}
		}
	}
	for _, c := range d.Overlapping {
		if strings.Contains(norm, normalizeDiploma(c)) {
			return []string{"MEDICAL", "DNB"}
		}
	}
	return []string{"MEDICAL"}
}

// AllowsDNB reports whether the diploma may resolve to a DNB college.
func (d DiplomaConfig) AllowsDNB(courseName string) bool {
	for _, s := range d.Streams(courseName) {
		if s == "DNB" {
			return true
		}
	}
	return false
}
