package data

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tiny() *Dataset {
	return &Dataset{
		Features:         [][]float64{{1, 0}, {2, 1}, {3, 0}, {4, 1}},
		Labels:           []float64{1, 0, 1, 1},
		Protected:        [][]float64{{0}, {1}, {0}, {1}},
		FeatureNames:     []string{"x", "sex"},
		ProtectedNames:   []string{"sex"},
		FavorableLabel:   1,
		UnfavorableLabel: 0,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Dataset)
		wantErr error
	}{
		{"ok", func(d *Dataset) {}, nil},
		{"short labels", func(d *Dataset) { d.Labels = d.Labels[:3] }, ErrShapeMismatch},
		{"short protected", func(d *Dataset) { d.Protected = d.Protected[:2] }, ErrShapeMismatch},
		{"ragged features", func(d *Dataset) { d.Features[2] = []float64{1} }, ErrShapeMismatch},
		{"ragged protected", func(d *Dataset) { d.Protected[1] = []float64{1, 2} }, ErrShapeMismatch},
		{"foreign label", func(d *Dataset) { d.Labels[0] = 2 }, ErrInvalidLabel},
		{"same codes", func(d *Dataset) { d.UnfavorableLabel = 1 }, ErrInvalidLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tiny()
			tt.mutate(d)
			err := d.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	d := tiny()
	d.Protected = d.Protected[:1]
	d.Labels[3] = 7
	err := d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.ErrorIs(t, err, ErrInvalidLabel)
}

func TestWithLabels_LeavesOriginalUntouched(t *testing.T) {
	d := tiny()
	out, err := d.WithLabels([]float64{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, out.Labels)
	assert.Equal(t, []float64{1, 0, 1, 1}, d.Labels)

	out.Features[0][0] = 99
	assert.Equal(t, 1.0, d.Features[0][0])

	_, err = d.WithLabels([]float64{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSubsetAndSplit(t *testing.T) {
	d := tiny()
	s := d.Subset([]int{3, 0})
	assert.Equal(t, []float64{1, 1}, s.Labels)
	assert.Equal(t, [][]float64{{1}, {0}}, s.Protected)

	big := GenerateSyntheticIncome(100, 1, 1)
	a, b := Split(big, 0.7, 5)
	assert.Equal(t, 70, a.Len())
	assert.Equal(t, 30, b.Len())
	a2, _ := Split(big, 0.7, 5)
	assert.Equal(t, a.Labels, a2.Labels)
}

func TestGenerateSyntheticIncome(t *testing.T) {
	d := GenerateSyntheticIncome(2000, 42, 1.5)
	require.NoError(t, d.Validate())
	sexCol, ok := d.ProtectedIndex(ColSex)
	require.True(t, ok)

	var fav, n [2]float64
	for i, y := range d.Labels {
		g := int(d.Protected[i][sexCol])
		n[g]++
		fav[g] += y
	}
	assert.Greater(t, fav[1]/n[1], fav[0]/n[0], "privileged group should have a higher base rate")
}

func TestCSVRoundTrip(t *testing.T) {
	d := GenerateSyntheticIncome(50, 3, 1)
	path := filepath.Join(t.TempDir(), "income.csv")
	require.NoError(t, WriteCSV(path, d, ColIncome))

	got, err := LoadCSV(path, Schema{Label: ColIncome, Protected: []string{ColSex, ColRace}, Favorable: 1, Unfavorable: 0})
	require.NoError(t, err)
	assert.Equal(t, d.FeatureNames, got.FeatureNames)
	assert.Equal(t, d.Labels, got.Labels)
	assert.Equal(t, d.Protected, got.Protected)
	assert.InDeltaSlice(t, d.Features[7], got.Features[7], 1e-12)

	excl, err := LoadCSV(path, Schema{Label: ColIncome, Protected: []string{ColSex}, Favorable: 1, ExcludeProtected: true})
	require.NoError(t, err)
	assert.NotContains(t, excl.FeatureNames, ColSex)
	assert.Contains(t, excl.FeatureNames, ColRace)

	_, err = LoadCSV(path, Schema{Label: "missing", Protected: []string{ColSex}, Favorable: 1})
	assert.Error(t, err)
}
