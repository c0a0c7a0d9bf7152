package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDiplomaYAML(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diploma.yaml")
	err := os.WriteFile(path, []byte(`
diploma_courses:
  dnb_only:
    - DIPLOMA IN FAMILY MEDICINE
  overlapping:
    - DIPLOMA IN ANAESTHESIA
    - DIPLOMA IN OBSTETRICS AND GYNAECOLOGY
`), 0o644)
	require.NoError(t, err)
	return path
}

func TestLoadDiploma(t *testing.T) {
	d, err := LoadDiploma(writeDiplomaYAML(t))
	require.NoError(t, err)
	assert.Len(t, d.DNBOnly, 1)
	assert.Len(t, d.Overlapping, 2)
}

func TestDiplomaStreams(t *testing.T) {
	d, err := LoadDiploma(writeDiplomaYAML(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"DNB"}, d.Streams("DIPLOMA IN FAMILY MEDICINE"))
	assert.Equal(t, []string{"MEDICAL", "DNB"}, d.Streams("DIPLOMA IN ANAESTHESIA"))
	assert.Equal(t, []string{"MEDICAL"}, d.Streams("DIPLOMA IN CLINICAL PATHOLOGY"))
}

func TestDiplomaStreamsToleratesDroppedIn(t *testing.T) {
	d := DiplomaConfig{Overlapping: []string{"DIPLOMA IN ANAESTHESIA"}}
	assert.Equal(t, []string{"MEDICAL", "DNB"}, d.Streams("DIPLOMA ANAESTHESIA"),
		"upstream files drop the IN connective")
	assert.True(t, d.AllowsDNB("DIPLOMA ANAESTHESIA"))
	assert.False(t, d.AllowsDNB("DIPLOMA IN PSYCHIATRY"))
}

func TestLoadDiplomaMissingFile(t *testing.T) {
	_, err := LoadDiploma(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
