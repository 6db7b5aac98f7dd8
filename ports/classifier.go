package ports

import (
	"gonum.org/v1/gonum/mat"
)

// ProbClassifier is a binary probabilistic classifier.
// PredictProba returns P(label = 1 | row) for every row of x.
type ProbClassifier interface {
	Fit(x *mat.Dense, y []float64) error
	PredictProba(x *mat.Dense) ([]float64, error)
}

// ClassifierFactory returns an untrained classifier
type ClassifierFactory func() ProbClassifier

// ClassifierSpec is one entry of the odds-classifier registry
type ClassifierSpec struct {
	// ID is the command-line identifier, also used in output filenames
	ID string
	// DisplayName is the human readable name reported in the classifier column
	DisplayName string
	New         ClassifierFactory
}

// ClassifierRegistry resolves odds classifiers by identifier
type ClassifierRegistry interface {
	Lookup(id string) (ClassifierSpec, error)
	IDs() []string
}
