// Package output writes result tables to the filesystem.
package output

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"acore/domain/run"
)

// DateLayout is the date stamp at the end of every result filename
const DateLayout = "2006-01-02"

// BaseName returns the result filename without extension. It encodes the
// classifier id, run, α (dot replaced by a dash), grid size, check-set size,
// largest B′, statistic and creation date in local time.
func BaseName(m *run.Manifest) string {
	alpha := strings.ReplaceAll(strconv.FormatFloat(m.Alpha, 'f', -1, 64), ".", "-")
	return fmt.Sprintf("b_prime_analysis_%s_%s_alpha%s_ngrid%d_sizecheck%d_bprimemax%d_logregint_%s_%s",
		m.ClassifierID, m.Model, alpha, m.NEvalGrid, m.SampleSizeCheck, m.MaxBPrime(), m.Statistic,
		m.CreatedAt.Local().Format(DateLayout))
}

// Path joins root, the model sub-directory and the base name with ext
func Path(root, outputDir string, m *run.Manifest, ext string) string {
	return filepath.Join(root, outputDir, BaseName(m)+ext)
}
