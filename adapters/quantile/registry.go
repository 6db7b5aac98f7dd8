// Package quantile provides the critical-value estimators and the named
// algorithm lists the calibration loop iterates over.
package quantile

import (
	"fmt"
	"os"
	"sort"

	"acore/domain/core"
	apperrors "acore/internal/errors"
	"acore/internal/trees"
	"acore/ports"

	"gopkg.in/yaml.v3"
)

// Algorithm ids understood by Build
const (
	AlgoLinear  = "linear"
	AlgoBoosted = "xgb"
	AlgoForest  = "qrf"
	AlgoKNN     = "knn"
)

var families = map[string]ports.AlgorithmFamily{
	AlgoLinear:  ports.FamilyLinear,
	AlgoBoosted: ports.FamilyGradientBoosting,
	AlgoForest:  ports.FamilyRandomForest,
	AlgoKNN:     ports.FamilyNearestNeighbors,
}

// Registry is an immutable, name-ordered list of quantile algorithms
type Registry struct {
	algorithms []ports.QuantileAlgorithm
}

// NewRegistry validates algos, fills in missing families and sorts them by name
func NewRegistry(algos []ports.QuantileAlgorithm) (*Registry, error) {
	seen := make(map[string]bool, len(algos))
	out := make([]ports.QuantileAlgorithm, 0, len(algos))
	for _, a := range algos {
		family, ok := families[a.AlgoID]
		if !ok {
			return nil, apperrors.WithCause(apperrors.CodeConfigInvalid,
				fmt.Sprintf("quantile algorithm %q uses unknown id %q", a.Name, a.AlgoID), core.ErrUnknownAlgorithm)
		}
		if a.Name == "" {
			return nil, apperrors.ConfigInvalid("quantile algorithm without a name")
		}
		if seen[a.Name] {
			return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "quantile algorithm %q listed twice", a.Name)
		}
		seen[a.Name] = true
		if a.Family == "" {
			a.Family = family
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return &Registry{algorithms: out}, nil
}

// Complete returns the full algorithm list
func Complete() *Registry {
	r, _ := NewRegistry(completeList())
	return r
}

// Small returns the short list used in debug runs
func Small() *Registry {
	r, _ := NewRegistry(smallList())
	return r
}

type registryFile struct {
	Algorithms []ports.QuantileAlgorithm `yaml:"algorithms"`
}

// LoadFile reads an algorithm list from a YAML file of the form
//
//	algorithms:
//	  - name: knn_k30
//	    algorithm: knn
//	    hyperparameters: {n_neighbors: 30}
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WithCause(apperrors.CodeConfigInvalid, "read quantile registry file", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.WithCause(apperrors.CodeConfigInvalid, "parse quantile registry file", err)
	}
	if len(file.Algorithms) == 0 {
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "quantile registry file %s lists no algorithms", path)
	}
	return NewRegistry(file.Algorithms)
}

// Algorithms returns the list in name order
func (r *Registry) Algorithms() []ports.QuantileAlgorithm {
	return append([]ports.QuantileAlgorithm(nil), r.algorithms...)
}

// Build returns a fresh, unfitted regressor for algo
func (r *Registry) Build(algo ports.QuantileAlgorithm) (ports.QuantileRegressor, error) {
	h := hyper(algo.Hyper)
	switch algo.AlgoID {
	case AlgoLinear:
		return NewLinear(h.int("max_iter", 100)), nil
	case AlgoBoosted:
		return &Boosted{booster: trees.NewQuantileBooster(trees.QuantileBoosterParams{
			Tree: trees.Params{
				MaxDepth:       h.int("max_depth", 3),
				MinSamplesLeaf: h.int("min_samples_leaf", 5),
				Lambda:         h.float("lambda", 1),
			},
			NEstimators:  h.int("n_estimators", 100),
			LearningRate: h.float("learning_rate", 0.1),
		})}, nil
	case AlgoForest:
		return &Forest{forest: trees.NewForest(trees.ForestParams{
			Tree: trees.Params{
				MaxDepth:       h.int("max_depth", 12),
				MinSamplesLeaf: h.int("min_samples_leaf", 5),
				MaxFeatures:    h.int("max_features", 0),
			},
			NEstimators: h.int("n_estimators", 100),
			Workers:     int(algo.ExtraConfig["workers"]),
		})}, nil
	case AlgoKNN:
		return NewKNN(h.int("n_neighbors", 30)), nil
	default:
		return nil, apperrors.WithCause(apperrors.CodeConfigInvalid,
			fmt.Sprintf("quantile algorithm %q", algo.Name), core.ErrUnknownAlgorithm)
	}
}

type hyper map[string]float64

func (h hyper) int(key string, def int) int {
	if v, ok := h[key]; ok {
		return int(v)
	}
	return def
}

func (h hyper) float(key string, def float64) float64 {
	if v, ok := h[key]; ok {
		return v
	}
	return def
}
