package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrdinalEncoder(t *testing.T) {
	e := &OrdinalEncoder{}
	require.NoError(t, e.Fit([][]string{{"b", "x"}, {"a", "x"}, {"c", "y"}, {"a", "y"}}))

	out, err := e.Transform([][]string{{"a", "y"}, {"c", "x"}, {"b", "x"}})
	require.NoError(t, err)
	require.Equal(t, [][]float64{{0, 1}, {2, 0}, {1, 0}}, out)

	_, err = e.Transform([][]string{{"d", "x"}})
	require.ErrorIs(t, err, ErrUnknownCategory)

	e.HandleUnknown = UnknownEncode
	out, err = e.Transform([][]string{{"d", "x"}})
	require.NoError(t, err)
	require.Equal(t, [][]float64{{UnknownCode, 0}}, out)
}

func TestOrdinalEncoder_NotFitted(t *testing.T) {
	_, err := (&OrdinalEncoder{}).Transform([][]string{{"a"}})
	require.ErrorIs(t, err, ErrNotFitted)
}

func TestMedianImputer(t *testing.T) {
	tests := []struct {
		name   string
		column []string
		median float64
	}{
		{name: "odd", column: []string{"1", "", "3", "NA", "10"}, median: 3},
		{name: "even", column: []string{"4", "1", "3", "2"}, median: 2.5},
		{name: "nan tokens", column: []string{"NaN", "nan", " 7 "}, median: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X := make([][]string, len(tt.column))
			for i, v := range tt.column {
				X[i] = []string{v}
			}
			m := &MedianImputer{}
			require.NoError(t, m.Fit(X))
			require.Equal(t, []float64{tt.median}, m.Medians)

			out, err := m.Transform([][]string{{""}, {"5"}})
			require.NoError(t, err)
			require.Equal(t, [][]float64{{tt.median}, {5}}, out)
		})
	}
}

func TestMedianImputer_Errors(t *testing.T) {
	m := &MedianImputer{}
	require.ErrorIs(t, m.Fit([][]string{{""}, {"NA"}}), ErrFit)
	require.ErrorIs(t, m.Fit([][]string{{"1"}, {"abc"}}), ErrFit)
	require.ErrorIs(t, m.Fit(nil), ErrFit)

	require.NoError(t, m.Fit([][]string{{"1"}}))
	_, err := m.Transform([][]string{{"abc"}})
	require.Error(t, err)
}

func TestStandardScaler(t *testing.T) {
	s := &StandardScaler{}
	require.NoError(t, s.Fit([][]float64{{1, 5}, {3, 5}}))
	require.Equal(t, []float64{2, 5}, s.Mean)
	// population std; a constant column keeps std 1
	require.Equal(t, []float64{1, 1}, s.Std)

	out, err := s.Transform([][]float64{{1, 5}, {3, 5}, {4, 6}})
	require.NoError(t, err)
	require.Equal(t, [][]float64{{-1, 0}, {1, 0}, {2, 1}}, out)
}

func TestColumnTransformer(t *testing.T) {
	X := [][]string{
		{"10", "F", "HIGH"},
		{"20", "M", "LOW"},
		{"", "M", "HIGH"},
	}
	c := NewColumnTransformer([]int{1, 2}, []int{0}, UnknownError)
	require.Equal(t, 3, c.OutputSize())
	require.NoError(t, c.Fit(X))

	// the missing age is imputed with the median 15 before scaling
	require.Equal(t, []float64{15}, c.Imputer.Medians)

	out, err := c.Transform(X[:2])
	require.NoError(t, err)
	require.Len(t, out, 2)
	std := c.Scaler.Std[0]
	require.InDeltaSlice(t, []float64{0, 0, -5 / std}, out[0], 1e-12)
	require.InDeltaSlice(t, []float64{1, 1, 5 / std}, out[1], 1e-12)

	// fitting does not touch the input rows
	require.Equal(t, "", X[2][0])
}

func TestColumnTransformer_ShortRow(t *testing.T) {
	c := NewColumnTransformer([]int{1, 2}, []int{0}, UnknownError)
	require.ErrorIs(t, c.Fit([][]string{{"1", "a"}}), ErrFit)
}
