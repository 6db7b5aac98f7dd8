// Package trees grows second-order regression trees and the ensembles built from them:
// a logistic booster, a quantile booster and a quantile regression forest.
package trees

import (
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// parallelSplitRows is the node size above which candidate features are scanned concurrently
const parallelSplitRows = 4096

// Params controls the growth of a single tree
type Params struct {
	MaxDepth       int
	MinChildWeight float64 // minimum hessian sum in each child
	MinSamplesLeaf int
	Lambda         float64 // L2 penalty on leaf weights
	Gamma          float64 // minimum loss reduction required to split
	MaxFeatures    int     // features sampled per split, 0 means all
}

type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
	leaf      bool
}

// Tree is a fitted binary regression tree
type Tree struct {
	nodes []node
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

type grower struct {
	cols   [][]float64
	grad   []float64
	hess   []float64
	params Params
	rng    *rand.Rand
	tree   *Tree
}

// Grow fits a tree on the given rows of x to the gradient statistics grad and hess.
// Leaf weights are -G/(H+λ). rng is only consulted when MaxFeatures subsamples features.
func Grow(x *mat.Dense, grad, hess []float64, rows []int, p Params, rng *rand.Rand) *Tree {
	_, d := x.Dims()
	cols := make([][]float64, d)
	for j := 0; j < d; j++ {
		cols[j] = mat.Col(nil, j, x)
	}
	return growColumns(cols, grad, hess, rows, p, rng)
}

func growColumns(cols [][]float64, grad, hess []float64, rows []int, p Params, rng *rand.Rand) *Tree {
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	g := &grower{cols: cols, grad: grad, hess: hess, params: p, rng: rng, tree: &Tree{}}
	own := make([]int, len(rows))
	copy(own, rows)
	g.build(own, 0)
	return g.tree
}

func (g *grower) build(rows []int, depth int) int {
	var G, H float64
	for _, r := range rows {
		G += g.grad[r]
		H += g.hess[r]
	}
	idx := len(g.tree.nodes)
	g.tree.nodes = append(g.tree.nodes, node{leaf: true, value: leafWeight(G, H, g.params.Lambda)})

	if depth >= g.params.MaxDepth || len(rows) < 2*g.params.MinSamplesLeaf {
		return idx
	}

	best, ok := g.bestSplit(rows, G, H)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	col := g.cols[best.feature]
	for _, r := range rows {
		if col[r] <= best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := g.build(left, depth+1)
	r := g.build(right, depth+1)
	g.tree.nodes[idx] = node{feature: best.feature, threshold: best.threshold, left: l, right: r}
	return idx
}

func (g *grower) candidateFeatures() []int {
	d := len(g.cols)
	if g.params.MaxFeatures <= 0 || g.params.MaxFeatures >= d || g.rng == nil {
		features := make([]int, d)
		for j := range features {
			features[j] = j
		}
		return features
	}
	perm := g.rng.Perm(d)[:g.params.MaxFeatures]
	sort.Ints(perm)
	return perm
}

func (g *grower) bestSplit(rows []int, G, H float64) (split, bool) {
	features := g.candidateFeatures()
	results := make([]split, len(features))
	found := make([]bool, len(features))

	if len(rows) >= parallelSplitRows && len(features) > 1 {
		var eg errgroup.Group
		eg.SetLimit(runtime.GOMAXPROCS(0))
		for i, f := range features {
			eg.Go(func() error {
				results[i], found[i] = g.scanFeature(f, rows, G, H)
				return nil
			})
		}
		_ = eg.Wait()
	} else {
		for i, f := range features {
			results[i], found[i] = g.scanFeature(f, rows, G, H)
		}
	}

	// reduce in feature order so ties resolve the same way regardless of scheduling
	var best split
	ok := false
	for i := range results {
		if found[i] && (!ok || results[i].gain > best.gain) {
			best = results[i]
			ok = true
		}
	}
	if !ok || best.gain <= math.Max(g.params.Gamma, 1e-12) {
		return split{}, false
	}
	return best, true
}

func (g *grower) scanFeature(f int, rows []int, G, H float64) (split, bool) {
	col := g.cols[f]
	order := make([]int, len(rows))
	copy(order, rows)
	sort.SliceStable(order, func(a, b int) bool { return col[order[a]] < col[order[b]] })

	lambda := g.params.Lambda
	parent := G * G / (H + lambda)
	minLeaf := g.params.MinSamplesLeaf

	var best split
	ok := false
	var GL, HL float64
	for i := 0; i < len(order)-1; i++ {
		r := order[i]
		GL += g.grad[r]
		HL += g.hess[r]
		nL := i + 1
		if nL < minLeaf || len(order)-nL < minLeaf {
			continue
		}
		cur, next := col[r], col[order[i+1]]
		if cur == next {
			continue
		}
		GR := G - GL
		HR := H - HL
		if HL < g.params.MinChildWeight || HR < g.params.MinChildWeight {
			continue
		}
		gain := GL*GL/(HL+lambda) + GR*GR/(HR+lambda) - parent
		if !ok || gain > best.gain {
			best = split{feature: f, threshold: (cur + next) / 2, gain: gain}
			ok = true
		}
	}
	return best, ok
}

func leafWeight(G, H, lambda float64) float64 {
	den := H + lambda
	if den <= 0 {
		return 0
	}
	return -G / den
}

// Leaf returns the index of the leaf row falls into
func (t *Tree) Leaf(row []float64) int {
	i := 0
	for !t.nodes[i].leaf {
		n := t.nodes[i]
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return i
}

// Predict returns the leaf weight for row
func (t *Tree) Predict(row []float64) float64 {
	return t.nodes[t.Leaf(row)].value
}

// SetLeafValue overrides the weight of the leaf at index idx
func (t *Tree) SetLeafValue(idx int, v float64) {
	t.nodes[idx].value = v
}

// Scale multiplies every leaf weight by eta
func (t *Tree) Scale(eta float64) {
	for i := range t.nodes {
		if t.nodes[i].leaf {
			t.nodes[i].value *= eta
		}
	}
}

// NumLeaves counts the terminal nodes
func (t *Tree) NumLeaves() int {
	n := 0
	for _, nd := range t.nodes {
		if nd.leaf {
			n++
		}
	}
	return n
}

// Depth returns the longest root-to-leaf path length
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		if t.nodes[i].leaf {
			return 0
		}
		l, r := walk(t.nodes[i].left), walk(t.nodes[i].right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(0)
}
