package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

// Comparison prints each non-baseline endpoint relative to results[0].
// Nothing is printed with fewer than two results.
func Comparison(w io.Writer, results []benchmark.EndpointRunResult, comparison map[string]benchmark.ComparisonRatio) {
	if len(results) < 2 {
		return
	}
	baseline := results[0]

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "PERFORMANCE COMPARISON (vs %s baseline)\n", baseline.Name)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	for _, r := range results[1:] {
		ratio, ok := comparison[r.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", r.Name)
		ratioLine(w, "RPS", ratio.RPSRatioPercent)
		ratioLine(w, "Latency", ratio.LatencyRatioPercent)
		ratioLine(w, "Memory (peak)", ratio.MemoryPeakRatioPercent)
		ratioLine(w, "Memory (avg)", ratio.MemoryAvgRatioPercent)
		ratioLine(w, "CPU", ratio.CPURatioPercent)
		if ratio.DegradationPercent != nil && *ratio.DegradationPercent > 0 {
			fmt.Fprintf(w, "  Performance degradation: %.2f%%\n", *ratio.DegradationPercent)
		}
	}
	fmt.Fprintln(w)
}

// ratioLine omits the line entirely when the ratio could not be computed
func ratioLine(w io.Writer, label string, v *float64) {
	if v == nil {
		return
	}
	fmt.Fprintf(w, "  %s: %.2f%% of baseline\n", label, *v)
}
