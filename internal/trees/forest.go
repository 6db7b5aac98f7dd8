package trees

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sort"

	"acore/domain/core"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ForestParams configures a quantile regression forest
type ForestParams struct {
	Tree        Params
	NEstimators int
	// Workers bounds concurrent tree fits; 0 uses GOMAXPROCS
	Workers int
}

type forestTree struct {
	tree    *Tree
	members map[int][]int // leaf index → bootstrap rows (with multiplicity)
}

// Forest is a quantile regression forest: bootstrap regression trees whose
// leaves keep their training rows, so any conditional quantile can be read off
// the weighted empirical distribution of the responses.
type Forest struct {
	params  ForestParams
	trees   []forestTree
	ySorted []float64
	order   []int // order[k] is the training row holding the k-th smallest response
	rank    []int // rank[row] is the position of row in order
	fitted  bool
}

// NewForest creates an unfitted forest
func NewForest(p ForestParams) *Forest {
	return &Forest{params: p}
}

// Fit grows the forest. Per-tree seeds are drawn from rng up front, so the
// result does not depend on how the concurrent fits are scheduled.
func (f *Forest) Fit(x *mat.Dense, y []float64, rng *rand.Rand) error {
	n, d := x.Dims()
	if n == 0 {
		return fmt.Errorf("forest: %w", core.ErrEmptyInput)
	}
	if len(y) != n {
		return fmt.Errorf("forest: %w", core.NewDimensionError("response", len(y), n))
	}
	if rng == nil {
		return fmt.Errorf("forest: a seeded generator is required")
	}

	cols := make([][]float64, d)
	for j := 0; j < d; j++ {
		cols[j] = mat.Col(nil, j, x)
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range y {
		grad[i] = -y[i]
		hess[i] = 1
	}

	seeds := make([][2]uint64, f.params.NEstimators)
	for t := range seeds {
		seeds[t] = [2]uint64{rng.Uint64(), rng.Uint64()}
	}

	workers := f.params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	trees := make([]forestTree, f.params.NEstimators)
	var eg errgroup.Group
	eg.SetLimit(workers)
	for t := range trees {
		eg.Go(func() error {
			local := rand.New(rand.NewPCG(seeds[t][0], seeds[t][1]))
			boot := make([]int, n)
			for i := range boot {
				boot[i] = local.IntN(n)
			}
			tree := growColumns(cols, grad, hess, boot, f.params.Tree, local)
			members := make(map[int][]int)
			for _, r := range boot {
				leaf := tree.Leaf(x.RawRowView(r))
				members[leaf] = append(members[leaf], r)
			}
			trees[t] = forestTree{tree: tree, members: members}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	f.trees = trees

	f.order = make([]int, n)
	for i := range f.order {
		f.order[i] = i
	}
	sort.SliceStable(f.order, func(a, b int) bool { return y[f.order[a]] < y[f.order[b]] })
	f.ySorted = make([]float64, n)
	f.rank = make([]int, n)
	for k, r := range f.order {
		f.ySorted[k] = y[r]
		f.rank[r] = k
	}
	f.fitted = true
	return nil
}

// PredictQuantile returns the weighted empirical α-quantile for every row of x
func (f *Forest) PredictQuantile(x *mat.Dense, alpha float64) ([]float64, error) {
	if !f.fitted {
		return nil, fmt.Errorf("forest: %w", core.ErrNotFitted)
	}
	n, _ := x.Dims()
	out := make([]float64, n)
	weights := make([]float64, len(f.ySorted))
	for i := 0; i < n; i++ {
		for k := range weights {
			weights[k] = 0
		}
		row := x.RawRowView(i)
		for _, ft := range f.trees {
			members := ft.members[ft.tree.Leaf(row)]
			if len(members) == 0 {
				continue
			}
			w := 1 / float64(len(members))
			for _, r := range members {
				weights[f.rank[r]] += w
			}
		}
		out[i] = stat.Quantile(alpha, stat.Empirical, f.ySorted, weights)
	}
	return out, nil
}
