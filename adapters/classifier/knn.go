package classifier

import (
	"fmt"
	"runtime"

	"acore/domain/core"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// DefaultNeighbors is the neighbourhood size of the "nn" classifier
const DefaultNeighbors = 5

// predictChunk is the number of query rows handled by one worker
const predictChunk = 1024

// KNN is a brute-force k-nearest-neighbour classifier with uniform weights
type KNN struct {
	k int
	x *mat.Dense
	y []float64
}

// NewKNN creates a kNN classifier using k neighbours
func NewKNN(k int) *KNN {
	return &KNN{k: k}
}

func (c *KNN) Fit(x *mat.Dense, y []float64) error {
	n, _ := x.Dims()
	if n == 0 {
		return fmt.Errorf("knn: %w", core.ErrEmptyInput)
	}
	if len(y) != n {
		return fmt.Errorf("knn: %w", core.NewDimensionError("labels", len(y), n))
	}
	c.x = mat.DenseCopyOf(x)
	c.y = append([]float64(nil), y...)
	return nil
}

// PredictProba returns the share of label-1 rows among the k nearest training rows
func (c *KNN) PredictProba(x *mat.Dense) ([]float64, error) {
	if c.x == nil {
		return nil, fmt.Errorf("knn: %w", core.ErrNotFitted)
	}
	n, _ := x.Dims()
	out := make([]float64, n)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < n; start += predictChunk {
		start, end := start, min(start+predictChunk, n)
		g.Go(func() error {
			idx := make([]int, 0, c.k)
			dist := make([]float64, 0, c.k)
			for i := start; i < end; i++ {
				idx, dist = nearest(c.x, x.RawRowView(i), c.k, idx[:0], dist[:0])
				var s float64
				for _, j := range idx {
					s += c.y[j]
				}
				out[i] = s / float64(len(idx))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// nearest returns the indices of the k rows of train closest to q, kept as a
// sorted insertion list. Ties keep the lower row index.
func nearest(train *mat.Dense, q []float64, k int, idx []int, dist []float64) ([]int, []float64) {
	n, _ := train.Dims()
	for r := 0; r < n; r++ {
		row := train.RawRowView(r)
		var d float64
		for j, v := range row {
			diff := v - q[j]
			d += diff * diff
		}
		if len(idx) == k && d >= dist[k-1] {
			continue
		}
		pos := len(idx)
		for pos > 0 && dist[pos-1] > d {
			pos--
		}
		if len(idx) < k {
			idx = append(idx, 0)
			dist = append(dist, 0)
		}
		copy(idx[pos+1:], idx[pos:len(idx)-1])
		copy(dist[pos+1:], dist[pos:len(dist)-1])
		idx[pos] = r
		dist[pos] = d
	}
	return idx, dist
}
