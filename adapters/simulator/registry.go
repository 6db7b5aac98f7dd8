package simulator

import (
	"fmt"

	"acore/domain/core"
	"acore/domain/inference"
	apperrors "acore/internal/errors"
	"acore/ports"
)

// Registry maps run identifiers to loader factories
type Registry struct {
	factories map[inference.ModelID]ports.SimulatorFactory
	nuisance  map[inference.ModelID]bool
}

// DefaultRegistry knows the camelus, poisson and inferno loaders
func DefaultRegistry() *Registry {
	return &Registry{
		factories: map[inference.ModelID]ports.SimulatorFactory{
			inference.ModelCamelus: NewCamelus,
			inference.ModelPoisson: NewPoisson,
			inference.ModelInferno: NewInferno,
		},
		nuisance: map[inference.ModelID]bool{
			inference.ModelPoisson: true,
			inference.ModelInferno: true,
		},
	}
}

// Register adds or replaces a loader
func (r *Registry) Register(id inference.ModelID, factory ports.SimulatorFactory, supportsNuisance bool) {
	r.factories[id] = factory
	r.nuisance[id] = supportsNuisance
}

// SupportsNuisance reports whether the model can be configured with nuisance parameters
func (r *Registry) SupportsNuisance(id inference.ModelID) bool {
	return r.nuisance[id]
}

// Load builds the loader for id
func (r *Registry) Load(id inference.ModelID, opts ports.SimulatorOptions) (ports.Simulator, error) {
	factory, ok := r.factories[id]
	if !ok {
		return nil, apperrors.WithCause(apperrors.CodeConfigInvalid, fmt.Sprintf("no loader for run %q", id), core.ErrUnknownModel)
	}
	if opts.NuisanceParameters && !r.nuisance[id] {
		return nil, apperrors.WithCause(apperrors.CodeConfigInvalid, fmt.Sprintf("run %q does not support nuisance parameters", id), core.ErrNuisanceRejected)
	}
	return factory(opts)
}
