package model

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func drugRows(n int) ([][]string, []string) {
	X := make([][]string, n)
	y := make([]string, n)
	sexes := []string{"F", "M"}
	bps := []string{"HIGH", "LOW", "NORMAL"}
	for i := range X {
		age := 20 + i%50
		ratio := 5.0 + float64(i%30)
		bp := bps[i%3]
		X[i] = []string{fmt.Sprint(age), sexes[i%2], bp, "NORMAL", fmt.Sprintf("%.1f", ratio)}
		switch {
		case ratio > 15:
			y[i] = "DrugY"
		case bp == "HIGH":
			y[i] = "drugA"
		default:
			y[i] = "drugX"
		}
	}
	return X, y
}

func newTestPipeline() *Pipeline {
	return NewPipeline(PipelineConfig{
		CategoricalFeatures: []int{1, 2, 3},
		NumericFeatures:     []int{0, 4},
		HandleUnknown:       UnknownError,
		NumTrees:            10,
		ForestSeed:          125,
	})
}

func TestPipeline_FitPredict(t *testing.T) {
	X, y := drugRows(90)
	p := newTestPipeline()
	require.False(t, p.Fitted())
	require.NoError(t, p.Fit(X, y))
	require.True(t, p.Fitted())

	// sorted, not order of appearance
	require.Equal(t, []string{"DrugY", "drugA", "drugX"}, p.Classes())

	first, err := p.Predict(X)
	require.NoError(t, err)
	second, err := p.Predict(X)
	require.NoError(t, err)
	require.Equal(t, first, second)

	correct := 0
	for i := range y {
		if first[i] == y[i] {
			correct++
		}
	}
	require.Greater(t, correct, 80)
}

func TestPipeline_SameSeedSamePredictions(t *testing.T) {
	X, y := drugRows(60)
	a, b := newTestPipeline(), newTestPipeline()
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	pa, err := a.Predict(X)
	require.NoError(t, err)
	pb, err := b.Predict(X)
	require.NoError(t, err)
	require.Equal(t, pa, pb)
}

func TestPipeline_Errors(t *testing.T) {
	p := newTestPipeline()
	_, err := p.Predict([][]string{{"1", "F", "HIGH", "NORMAL", "1"}})
	require.ErrorIs(t, err, ErrNotFitted)

	require.ErrorIs(t, p.Fit(nil, nil), ErrFit)
	require.ErrorIs(t, p.Fit([][]string{{"1", "F", "HIGH", "NORMAL", "1"}}, nil), ErrFit)

	X, y := drugRows(30)
	require.NoError(t, p.Fit(X, y))
	_, err = p.Predict([][]string{{"30", "F", "EXTREME", "NORMAL", "10"}})
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestModel_Types(t *testing.T) {
	X, y := drugRows(30)
	p := newTestPipeline()
	require.NoError(t, p.Fit(X, y))
	m := &Model{MetaData: NewMetadata([]string{"Age", "Sex", "BP", "Cholesterol", "Na_to_K", "Drug"}, 5, []int{1, 2, 3}, []int{0, 4}), Pipeline: p}

	types := m.Types()
	require.Contains(t, types, "rxforest/pkg/model.Pipeline")
	require.Contains(t, types, "rxforest/pkg/model/forest.Forest")
	require.Contains(t, types, "rxforest/pkg/model/forest.Node")
	for _, typ := range types {
		require.True(t, strings.HasPrefix(typ, "rxforest/pkg/model"), typ)
	}
}

func TestMetadata_Validate(t *testing.T) {
	columns := []string{"Age", "Sex", "BP", "Cholesterol", "Na_to_K", "Drug"}
	tests := []struct {
		name        string
		target      int
		categorical []int
		numeric     []int
		wantErr     bool
	}{
		{name: "drug layout", target: 5, categorical: []int{1, 2, 3}, numeric: []int{0, 4}},
		{name: "position past end", target: 5, categorical: []int{1, 2, 5}, numeric: []int{0, 4}, wantErr: true},
		{name: "two roles", target: 5, categorical: []int{0, 1}, numeric: []int{0}, wantErr: true},
		{name: "target out of range", target: 6, categorical: []int{1}, numeric: []int{0}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewMetadata(columns, tt.target, tt.categorical, tt.numeric).Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrFit)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMetadata_FeatureNames(t *testing.T) {
	m := NewMetadata([]string{"Drug", "Age", "Sex"}, 0, []int{1}, []int{0})
	require.Equal(t, []string{"Age", "Sex"}, m.FeatureNames())
	require.Equal(t, "Drug", m.TargetName())
	require.Equal(t, 2, m.FeatureCount())
}

func TestNewSortedNameMap(t *testing.T) {
	m := NewSortedNameMap([]string{"drugX", "DrugY", "drugA", "DrugY"})
	require.Equal(t, []string{"DrugY", "drugA", "drugX"}, m.Names())
	index, ok := m.ContainsName("drugA")
	require.True(t, ok)
	require.Equal(t, 1, index)
}

func TestPipeline_Validate(t *testing.T) {
	X, y := drugRows(40)
	p := newTestPipeline()
	require.Error(t, p.Validate(5))

	require.NoError(t, p.Fit(X, y))
	require.NoError(t, p.Validate(5))
	// the numeric position 4 does not exist in a row of four features
	require.Error(t, p.Validate(4))

	p.ClassMap = NewSortedNameMap([]string{"DrugY"})
	require.Error(t, p.Validate(5))

	p = newTestPipeline()
	require.NoError(t, p.Fit(X, y))
	p.Transform.Scaler.Std = p.Transform.Scaler.Std[:1]
	require.Error(t, p.Validate(5))
}

func TestNewPipeline_TreeLimits(t *testing.T) {
	p := NewPipeline(PipelineConfig{CategoricalFeatures: []int{0}, NumTrees: 3, MaxDepth: 4})
	require.Equal(t, 4, p.Forest.MaxDepth)
	require.Equal(t, 2, p.Forest.MinSamplesSplit)

	p = NewPipeline(PipelineConfig{CategoricalFeatures: []int{0}, NumTrees: 3, MinSamplesSplit: 10})
	require.Equal(t, 10, p.Forest.MinSamplesSplit)
}
