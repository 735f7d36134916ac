package forest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
)

// Node is either a split (Left and Right set) or a leaf holding the class
// distribution of the training rows that reached it.
type Node struct {
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node

	Samples int
	Probas  []float64
}

func (n *Node) IsLeaf() bool {
	return n.Left == nil
}

// Tree is a CART classifier using gini impurity and numeric threshold splits:
// x[Feature] <= Threshold goes left.
type Tree struct {
	MaxDepth        int // 0 => unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 => all features
	Seed            uint64

	NumClasses int
	Root       *Node
}

type TreeOption func(*Tree)

func WithTreeMaxDepth(d int) TreeOption        { return func(t *Tree) { t.MaxDepth = d } }
func WithTreeMinSamplesSplit(n int) TreeOption { return func(t *Tree) { t.MinSamplesSplit = n } }
func WithTreeMaxFeatures(k int) TreeOption     { return func(t *Tree) { t.MaxFeatures = k } }
func WithTreeSeed(seed uint64) TreeOption      { return func(t *Tree) { t.Seed = seed } }

func NewTree(opts ...TreeOption) *Tree {
	t := &Tree{
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Fit grows the tree on the rows of X listed in idx. Indices may repeat, which
// is how bootstrap samples are passed in. Labels are class indices in
// [0, numClasses).
func (t *Tree) Fit(X [][]float64, y []int, numClasses int, idx []int) error {
	if len(idx) == 0 {
		return errors.New("tree: no samples")
	}
	if len(X) != len(y) {
		return fmt.Errorf("tree: %d rows but %d labels", len(X), len(y))
	}
	p := len(X[idx[0]])
	for _, i := range idx {
		if len(X[i]) != p {
			return errors.New("tree: inconsistent number of features in X rows")
		}
		if y[i] < 0 || y[i] >= numClasses {
			return fmt.Errorf("tree: label %d out of range for %d classes", y[i], numClasses)
		}
	}
	t.NumClasses = numClasses
	g := &grower{tree: t, X: X, y: y, p: p, rnd: rand.NewLockedRand(t.Seed)}
	t.Root = g.build(idx, 0)
	return nil
}

// PredictProba returns the leaf class distribution reached by x.
func (t *Tree) PredictProba(x []float64) []float64 {
	node := t.Root
	for !node.IsLeaf() {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Probas
}

func (t *Tree) Depth() int {
	return depth(t.Root)
}

func depth(n *Node) int {
	if n == nil || n.IsLeaf() {
		return 0
	}
	l, r := depth(n.Left), depth(n.Right)
	if l > r {
		return l + 1
	}
	return r + 1
}

type grower struct {
	tree *Tree
	X    [][]float64
	y    []int
	p    int
	rnd  *rand.LockedRand
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

func (g *grower) build(idx []int, depth int) *Node {
	counts := g.counts(idx)
	node := &Node{Samples: len(idx)}
	if isPure(counts) ||
		len(idx) < g.tree.MinSamplesSplit ||
		(g.tree.MaxDepth > 0 && depth >= g.tree.MaxDepth) {
		node.Probas = probas(counts)
		return node
	}

	best, ok := g.bestSplit(idx, counts)
	if !ok {
		node.Probas = probas(counts)
		return node
	}
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = g.build(best.left, depth+1)
	node.Right = g.build(best.right, depth+1)
	return node
}

// bestSplit inspects features in random order. Once MaxFeatures features have
// been inspected it stops, unless no valid split has been found yet.
func (g *grower) bestSplit(idx []int, counts []int) (split, bool) {
	maxFeatures := g.tree.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > g.p {
		maxFeatures = g.p
	}
	parent := gini(counts, len(idx))
	best := split{feature: -1}
	for inspected, f := range g.rnd.Perm(g.p) {
		if inspected >= maxFeatures && best.feature >= 0 {
			break
		}
		if s, ok := g.splitFeature(idx, f, parent); ok && (best.feature < 0 || s.gain > best.gain) {
			best = s
		}
	}
	return best, best.feature >= 0
}

func (g *grower) splitFeature(idx []int, f int, parent float64) (split, bool) {
	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(a, b int) bool { return g.X[sorted[a]][f] < g.X[sorted[b]][f] })

	n := len(sorted)
	minLeaf := g.tree.MinSamplesLeaf
	left := make([]int, g.tree.NumClasses)
	right := g.counts(sorted)
	best := split{feature: -1}
	for s := 1; s < n; s++ {
		c := g.y[sorted[s-1]]
		left[c]++
		right[c]--
		lo, hi := g.X[sorted[s-1]][f], g.X[sorted[s]][f]
		if lo == hi || s < minLeaf || n-s < minLeaf {
			continue
		}
		weighted := (float64(s)*gini(left, s) + float64(n-s)*gini(right, n-s)) / float64(n)
		gain := parent - weighted
		if best.feature < 0 || gain > best.gain {
			best = split{feature: f, threshold: lo + (hi-lo)/2, gain: gain, left: sorted[:s], right: sorted[s:]}
		}
	}
	if best.feature < 0 {
		return best, false
	}
	best.left = append([]int(nil), best.left...)
	best.right = append([]int(nil), best.right...)
	return best, true
}

func (g *grower) counts(idx []int) []int {
	counts := make([]int, g.tree.NumClasses)
	for _, i := range idx {
		counts[g.y[i]]++
	}
	return counts
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	res := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		res -= p * p
	}
	return res
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func probas(counts []int) []float64 {
	n := 0
	for _, c := range counts {
		n += c
	}
	p := make([]float64, len(counts))
	for i, c := range counts {
		p[i] = float64(c) / float64(n)
	}
	return p
}
