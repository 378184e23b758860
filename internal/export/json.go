package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

// DefaultFileName is the fixed report artifact name
const DefaultFileName = "benchmark-results.json"

// Options controls where reports land
type Options struct {
	Dir         string
	FileName    string
	Timestamped bool
}

// ReportPath returns the JSON path a report will be written to.
// Timestamped reports get the run ID appended to the base name.
func (o Options) ReportPath(report benchmark.Report) string {
	return filepath.Join(o.Dir, o.name(report, ".json"))
}

// CSVPath returns the CSV path sitting next to the JSON report
func (o Options) CSVPath(report benchmark.Report) string {
	return filepath.Join(o.Dir, o.name(report, ".csv"))
}

func (o Options) name(report benchmark.Report, ext string) string {
	file := o.FileName
	if file == "" {
		file = DefaultFileName
	}
	base := strings.TrimSuffix(file, filepath.Ext(file))
	if o.Timestamped && report.RunID != "" {
		base = fmt.Sprintf("%s-%s", base, report.RunID)
	}
	return base + ext
}

// PersistJSON writes the report, rounded to two decimals and pretty-printed, creating the
// report directory if needed. It returns the path written.
func PersistJSON(opts Options, report benchmark.Report) (string, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report.Rounded(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	path := opts.ReportPath(report)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}
