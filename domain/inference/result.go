package inference

import (
	"strconv"
)

// ResultRow is one output record per (B′, quantile algorithm) combination.
// Rows are immutable once appended to a run's table.
type ResultRow struct {
	BPrime          int    `json:"b_prime" db:"b_prime"`
	Classifier      string `json:"classifier" db:"classifier"`
	ClassCDE        string `json:"class_cde" db:"class_cde"`
	Run             string `json:"run" db:"run"`
	NEvalGrid       int    `json:"n_eval_grid" db:"n_eval_grid"`
	SampleCheck     int    `json:"sample_check" db:"sample_check"`
	SampleReference int    `json:"sample_reference" db:"sample_reference"`

	PercentCorrectCoverage     float64 `json:"percent_correct_coverage" db:"percent_correct_coverage"`
	AverageCoverage            float64 `json:"average_coverage" db:"average_coverage"`
	PercentCorrectCoverageLR   float64 `json:"percent_correct_coverage_lr" db:"percent_correct_coverage_lr"`
	AverageCoverageLR          float64 `json:"average_coverage_lr" db:"average_coverage_lr"`
	PercentCorrectCoverage1Std float64 `json:"percent_correct_coverage_1std" db:"percent_correct_coverage_1std"`
	AverageCoverage1Std        float64 `json:"average_coverage_1std" db:"average_coverage_1std"`
	PercentCorrectCoverage2Std float64 `json:"percent_correct_coverage_2std" db:"percent_correct_coverage_2std"`
	AverageCoverage2Std        float64 `json:"average_coverage_2std" db:"average_coverage_2std"`

	TestStatistics string `json:"test_statistics" db:"test_statistics"`
}

// ResultColumns is the exact column order of the output table
var ResultColumns = []string{
	"b_prime", "classifier", "class_cde", "run", "n_eval_grid", "sample_check",
	"sample_reference", "percent_correct_coverage", "average_coverage",
	"percent_correct_coverage_lr", "average_coverage_lr",
	"percent_correct_coverage_1std", "average_coverage_1std",
	"percent_correct_coverage_2std", "average_coverage_2std", "test_statistics",
}

// Record renders the row as strings in ResultColumns order
func (r ResultRow) Record() []string {
	return []string{
		strconv.Itoa(r.BPrime),
		r.Classifier,
		r.ClassCDE,
		r.Run,
		strconv.Itoa(r.NEvalGrid),
		strconv.Itoa(r.SampleCheck),
		strconv.Itoa(r.SampleReference),
		formatFloat(r.PercentCorrectCoverage),
		formatFloat(r.AverageCoverage),
		formatFloat(r.PercentCorrectCoverageLR),
		formatFloat(r.AverageCoverageLR),
		formatFloat(r.PercentCorrectCoverage1Std),
		formatFloat(r.AverageCoverage1Std),
		formatFloat(r.PercentCorrectCoverage2Std),
		formatFloat(r.AverageCoverage2Std),
		r.TestStatistics,
	}
}

// Values returns the row as loosely typed cells in ResultColumns order
func (r ResultRow) Values() []interface{} {
	return []interface{}{
		r.BPrime, r.Classifier, r.ClassCDE, r.Run, r.NEvalGrid, r.SampleCheck, r.SampleReference,
		r.PercentCorrectCoverage, r.AverageCoverage,
		r.PercentCorrectCoverageLR, r.AverageCoverageLR,
		r.PercentCorrectCoverage1Std, r.AverageCoverage1Std,
		r.PercentCorrectCoverage2Std, r.AverageCoverage2Std,
		r.TestStatistics,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
