package io

import (
	"fmt"
	"math"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
)

// DataSet is a view of row-aligned features and labels through an index list.
type DataSet struct {
	Features    [][]string
	Labels      []string
	Rand        *rand.LockedRand
	dataIndices []int
}

func NewDataSet(features [][]string, labels []string, r *rand.LockedRand) *DataSet {
	dataIndices := make([]int, len(features))
	for i := range dataIndices {
		dataIndices[i] = i
	}
	return &DataSet{Features: features, Labels: labels, Rand: r, dataIndices: dataIndices}
}

func NewDataSetSplit(features [][]string, labels []string, indices []int) *DataSet {
	return &DataSet{Features: features, Labels: labels, dataIndices: indices}
}

func (d *DataSet) Size() int {
	return len(d.dataIndices)
}

// Rows materializes the view in index order.
func (d *DataSet) Rows() ([][]string, []string) {
	X := make([][]string, len(d.dataIndices))
	y := make([]string, len(d.dataIndices))
	for i, idx := range d.dataIndices {
		X[i] = d.Features[idx]
		y[i] = d.Labels[idx]
	}
	return X, y
}

// RandomSplit permutes the indices once and slices consecutive runs of the
// requested sizes out of the permutation.
func (d *DataSet) RandomSplit(sizes ...int) []*DataSet {
	perm := d.Rand.Perm(len(d.dataIndices))
	splits := make([]*DataSet, len(sizes))
	idx := 0
	for i := range sizes {
		splitIndices := make([]int, sizes[i])
		for j := range splitIndices {
			splitIndices[j] = d.dataIndices[perm[idx]]
			idx++
		}
		splits[i] = NewDataSetSplit(d.Features, d.Labels, splitIndices)
	}
	return splits
}

// Shuffle returns a copy of the table with its rows permuted. The input is
// left untouched.
func Shuffle(t *Table, r *rand.LockedRand) *Table {
	rows := make([][]string, len(t.Rows))
	for i, idx := range r.Perm(len(t.Rows)) {
		rows[i] = t.Rows[idx]
	}
	return &Table{Columns: t.Columns, Rows: rows, TargetColumn: t.TargetColumn}
}

// TestSize is the number of test rows for n rows: ceil(n * testFraction).
func TestSize(n int, testFraction float64) int {
	return int(math.Ceil(float64(n) * testFraction))
}

// TrainTestSplit partitions X and y with a permutation drawn from seed. The
// first TestSize indices of the permutation become the test partition.
func TrainTestSplit(X [][]string, y []string, testFraction float64, seed uint64) (XTrain, XTest [][]string, yTrain, yTest []string, err error) {
	if len(X) != len(y) {
		return nil, nil, nil, nil, fmt.Errorf("%d feature rows but %d labels", len(X), len(y))
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("test fraction %v must be in (0, 1)", testFraction)
	}
	data := NewDataSet(X, y, rand.NewLockedRand(seed))
	n := data.Size()
	nTest := TestSize(n, testFraction)
	nTrain := n - nTest
	if nTrain < 1 {
		return nil, nil, nil, nil, fmt.Errorf("%d rows leave no training rows with test fraction %v", n, testFraction)
	}
	splits := data.RandomSplit(nTest, nTrain)
	XTest, yTest = splits[0].Rows()
	XTrain, yTrain = splits[1].Rows()
	return XTrain, XTest, yTrain, yTest, nil
}
