package estimator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMapping(t *testing.T, name, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadMappingYAML(t *testing.T) {
	path := writeMapping(t, "cal.yaml", `joints:
  0:
    - angles: [0.0, 0.0]
      field: [1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12]
    - angles: [45.0, -5.0]
      field: [12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1]
  2:
    - angles: [10.0, 1.0]
      field: [0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1]
`)

	m, err := LoadMapping(path)

	require.NoError(t, err)
	require.Len(t, m.Joints, 2)
	require.Len(t, m.Joints[0], 2)
	assert.Equal(t, [2]float64{0, 0}, m.Joints[0][0].Angles)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, m.Joints[0][0].Field)
	assert.Equal(t, [2]float64{45.0, -5.0}, m.Joints[0][1].Angles)
	require.Len(t, m.Joints[2], 1)
}

func TestLoadMappingPositionalJSON(t *testing.T) {
	path := writeMapping(t, "cal.json", `{
  "0": [
    [[1.5, -2.0], [[1, 2, 3], [4, 5, 6], [7, 8, 9], [10, 11, 12]]]
  ],
  "1": null,
  "3": [
    [[0.0, 0.0], [1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12]]
  ]
}`)

	m, err := LoadMapping(path)

	require.NoError(t, err)
	require.Len(t, m.Joints, 2, "null entries carry no calibration")
	require.Len(t, m.Joints[0], 1)
	assert.Equal(t, [2]float64{1.5, -2.0}, m.Joints[0][0].Angles)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, m.Joints[0][0].Field,
		"nested pixel rows flatten row-major")
	require.Len(t, m.Joints[3], 1)

	_, ok := m.Joints[1]
	assert.False(t, ok)
}

func TestLoadMappingMissingFile(t *testing.T) {
	_, err := LoadMapping(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}

func TestLoadMappingErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		doc     string
		wantErr string
	}{
		{
			name:    "non-numeric field data",
			file:    "bad_field.json",
			doc:     `{"0": [[[0, 0], ["x"]]]}`,
			wantErr: "field",
		},
		{
			name:    "entry is not a pair",
			file:    "bad_pair.json",
			doc:     `{"0": [[[0, 0]]]}`,
			wantErr: "want [angles, field]",
		},
		{
			name:    "non-integer joint key",
			file:    "bad_key.json",
			doc:     `{"thumb": []}`,
			wantErr: "not an index",
		},
		{
			name:    "malformed yaml",
			file:    "bad.yaml",
			doc:     "joints: [broken",
			wantErr: "mapping",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMapping(writeMapping(t, tt.file, tt.doc))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
