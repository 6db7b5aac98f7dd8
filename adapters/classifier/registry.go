// Package classifier holds the odds-classifier zoo and its name-conversion table.
package classifier

import (
	"fmt"
	"sort"
	"strings"

	"acore/domain/core"
	apperrors "acore/internal/errors"
	"acore/ports"
)

// conversion maps command-line ids to the display names used in result tables
var conversion = map[string]string{
	"xgb_d3_n100":  "XGBoost (d3, n100)",
	"xgb_d3_n500":  "XGBoost (d3, n500)",
	"xgb_d5_n500":  "XGBoost (d5, n500)",
	"xgb_d10_n100": "XGBoost \n (d10, n100)",
	"log_regr":     "Log. Regr.",
	"nn":           "NN",
	"qda":          "QDA",
}

// NormalizeName removes newlines and replaces spaces with dashes
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "\n", ""), " ", "-")
}

// Registry resolves odds classifiers by command-line id
type Registry struct {
	factories map[string]ports.ClassifierFactory
	names     map[string]string
}

// DefaultRegistry returns the built-in classifier zoo
func DefaultRegistry() *Registry {
	r := &Registry{
		factories: map[string]ports.ClassifierFactory{},
		names:     map[string]string{},
	}
	r.Register("xgb_d3_n100", conversion["xgb_d3_n100"], boosted(3, 100))
	r.Register("xgb_d3_n500", conversion["xgb_d3_n500"], boosted(3, 500))
	r.Register("xgb_d5_n500", conversion["xgb_d5_n500"], boosted(5, 500))
	r.Register("xgb_d10_n100", conversion["xgb_d10_n100"], boosted(10, 100))
	r.Register("log_regr", conversion["log_regr"], func() ports.ProbClassifier { return NewLogistic() })
	r.Register("nn", conversion["nn"], func() ports.ProbClassifier { return NewKNN(DefaultNeighbors) })
	r.Register("qda", conversion["qda"], func() ports.ProbClassifier { return NewQDA() })
	return r
}

// Register adds a classifier under id with a display name
func (r *Registry) Register(id, displayName string, factory ports.ClassifierFactory) {
	r.factories[id] = factory
	r.names[id] = displayName
}

// Lookup returns the spec for id with its normalised display name
func (r *Registry) Lookup(id string) (ports.ClassifierSpec, error) {
	factory, ok := r.factories[id]
	if !ok {
		return ports.ClassifierSpec{}, apperrors.WithCause(apperrors.CodeConfigInvalid,
			fmt.Sprintf("classifier %q is not one of %s", id, strings.Join(r.IDs(), ", ")), core.ErrUnknownClassifier)
	}
	return ports.ClassifierSpec{
		ID:          id,
		DisplayName: NormalizeName(r.names[id]),
		New:         factory,
	}, nil
}

// IDs lists the registered ids in sorted order
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
