// Package forest implements a bagged random forest of CART trees.
package forest

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"golang.org/x/sync/errgroup"
)

// Forest averages the class distributions of its trees.
type Forest struct {
	NumTrees        int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int // 0 => floor(sqrt(p))
	Bootstrap       bool
	Seed            uint64

	NumClasses int
	Trees      []*Tree
}

type Option func(*Forest)

func WithNumTrees(n int) Option        { return func(f *Forest) { f.NumTrees = n } }
func WithMaxDepth(d int) Option        { return func(f *Forest) { f.MaxDepth = d } }
func WithMinSamplesSplit(n int) Option { return func(f *Forest) { f.MinSamplesSplit = n } }
func WithMaxFeatures(k int) Option     { return func(f *Forest) { f.MaxFeatures = k } }
func WithBootstrap(b bool) Option      { return func(f *Forest) { f.Bootstrap = b } }
func WithSeed(seed uint64) Option      { return func(f *Forest) { f.Seed = seed } }

func New(opts ...Option) *Forest {
	f := &Forest{
		NumTrees:        100,
		MinSamplesSplit: 2,
		Bootstrap:       true,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fit trains the trees concurrently. Seeds for every tree are drawn up front
// from a generator seeded with f.Seed, so the fitted forest does not depend on
// scheduling.
func (f *Forest) Fit(X [][]float64, y []int, numClasses int) error {
	n := len(X)
	if n == 0 {
		return errors.New("forest: empty X")
	}
	if len(y) != n {
		return fmt.Errorf("forest: %d rows but %d labels", n, len(y))
	}
	if f.NumTrees <= 0 {
		return fmt.Errorf("forest: invalid number of trees %d", f.NumTrees)
	}
	maxFeatures := f.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(len(X[0]))))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	master := rand.NewLockedRand(f.Seed)
	sampleSeeds := make([]uint64, f.NumTrees)
	treeSeeds := make([]uint64, f.NumTrees)
	for i := range treeSeeds {
		sampleSeeds[i] = master.Uint64()
		treeSeeds[i] = master.Uint64()
	}

	trees := make([]*Tree, f.NumTrees)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		i := i
		g.Go(func() error {
			idx := make([]int, n)
			sampler := rand.NewLockedRand(sampleSeeds[i])
			for j := range idx {
				if f.Bootstrap {
					idx[j] = sampler.Intn(n)
				} else {
					idx[j] = j
				}
			}
			tree := NewTree(
				WithTreeMaxDepth(f.MaxDepth),
				WithTreeMinSamplesSplit(f.MinSamplesSplit),
				WithTreeMaxFeatures(maxFeatures),
				WithTreeSeed(treeSeeds[i]),
			)
			if err := tree.Fit(X, y, numClasses, idx); err != nil {
				return fmt.Errorf("forest: tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.Trees = trees
	f.NumClasses = numClasses
	return nil
}

// PredictProba returns the mean class distribution over all trees.
func (f *Forest) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		acc := make([]float64, f.NumClasses)
		for _, t := range f.Trees {
			for c, p := range t.PredictProba(x) {
				acc[c] += p
			}
		}
		for c := range acc {
			acc[c] /= float64(len(f.Trees))
		}
		out[i] = acc
	}
	return out
}

// Predict returns class indices. Ties go to the lowest index.
func (f *Forest) Predict(X [][]float64) []int {
	probas := f.PredictProba(X)
	out := make([]int, len(X))
	for i, p := range probas {
		out[i] = argmax(p)
	}
	return out
}

func argmax(data []float64) int {
	maxInd := 0
	for i := range data {
		if data[i] > data[maxInd] {
			maxInd = i
		}
	}
	return maxInd
}

// Validate checks that a forest built elsewhere, such as one decoded from a
// file, can predict rows of numFeatures values without indexing out of range.
func (f *Forest) Validate(numFeatures int) error {
	if f.NumClasses <= 0 {
		return fmt.Errorf("forest: invalid number of classes %d", f.NumClasses)
	}
	if len(f.Trees) == 0 {
		return errors.New("forest: no trees")
	}
	for i, t := range f.Trees {
		if t == nil || t.Root == nil {
			return fmt.Errorf("forest: tree %d is empty", i)
		}
		if err := validateNode(t.Root, numFeatures, f.NumClasses); err != nil {
			return fmt.Errorf("forest: tree %d: %w", i, err)
		}
	}
	return nil
}

func validateNode(n *Node, numFeatures, numClasses int) error {
	if n.Left == nil && n.Right == nil {
		if len(n.Probas) != numClasses {
			return fmt.Errorf("leaf has %d class probabilities, want %d", len(n.Probas), numClasses)
		}
		return nil
	}
	if n.Left == nil || n.Right == nil {
		return errors.New("split node is missing a child")
	}
	if n.Feature < 0 || n.Feature >= numFeatures {
		return fmt.Errorf("split feature %d out of range for %d features", n.Feature, numFeatures)
	}
	if err := validateNode(n.Left, numFeatures, numClasses); err != nil {
		return err
	}
	return validateNode(n.Right, numFeatures, numClasses)
}
