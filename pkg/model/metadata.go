package model

import (
	"fmt"
	"sort"
)

// NameMap implements a bidirectional mapping between a name and an index
type NameMap struct {
	NameToIndex map[string]int
	IndexToName map[int]string
}

func (f NameMap) Set(name string, index int) {
	f.NameToIndex[name] = index
	f.IndexToName[index] = name
}

func (f NameMap) Size() int {
	return len(f.IndexToName)
}

func (f NameMap) ContainsName(name string) (int, bool) {
	index, ok := f.NameToIndex[name]
	return index, ok
}

// Names returns the names ordered by index.
func (f NameMap) Names() []string {
	names := make([]string, f.Size())
	for i := range names {
		names[i] = f.IndexToName[i]
	}
	return names
}

func NewNameMap() NameMap {
	return NameMap{
		NameToIndex: map[string]int{},
		IndexToName: map[int]string{},
	}
}

// NewSortedNameMap indexes the distinct values in lexicographic order.
func NewSortedNameMap(values []string) NameMap {
	seen := map[string]struct{}{}
	distinct := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			distinct = append(distinct, v)
		}
	}
	sort.Strings(distinct)
	m := NewNameMap()
	for i, v := range distinct {
		m.Set(v, i)
	}
	return m
}

type Metadata struct {
	Columns []string

	// TargetColumn points to the column in the data row that contains the prediction target
	TargetColumn int

	// CategoricalFeatures and NumericFeatures are positions in the feature row,
	// i.e. after the target column has been dropped
	CategoricalFeatures []int
	NumericFeatures     []int

	// TargetMap contains a mapping of target category names to target category indexes
	TargetMap NameMap
}

func NewMetadata(columns []string, targetColumn int, categorical, numeric []int) *Metadata {
	return &Metadata{
		Columns:             columns,
		TargetColumn:        targetColumn,
		CategoricalFeatures: categorical,
		NumericFeatures:     numeric,
		TargetMap:           NewNameMap(),
	}
}

func (d *Metadata) FeatureCount() int {
	return len(d.Columns) - 1
}

// FeatureNames returns the header names of the feature row positions.
func (d *Metadata) FeatureNames() []string {
	names := make([]string, 0, d.FeatureCount())
	for i, col := range d.Columns {
		if i != d.TargetColumn {
			names = append(names, col)
		}
	}
	return names
}

func (d *Metadata) TargetName() string {
	return d.Columns[d.TargetColumn]
}

// Validate checks that every declared feature position exists and that no
// position has two roles.
func (d *Metadata) Validate() error {
	if d.TargetColumn < 0 || d.TargetColumn >= len(d.Columns) {
		return fmt.Errorf("%w: target column %d out of range for %d columns", ErrFit, d.TargetColumn, len(d.Columns))
	}
	roles := map[int]string{}
	check := func(positions []int, role string) error {
		for _, p := range positions {
			if p < 0 || p >= d.FeatureCount() {
				return fmt.Errorf("%w: %s feature position %d out of range for %d features", ErrFit, role, p, d.FeatureCount())
			}
			if other, ok := roles[p]; ok {
				return fmt.Errorf("%w: feature position %d declared both %s and %s", ErrFit, p, other, role)
			}
			roles[p] = role
		}
		return nil
	}
	if err := check(d.CategoricalFeatures, "categorical"); err != nil {
		return err
	}
	return check(d.NumericFeatures, "numeric")
}
