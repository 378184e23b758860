package display

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

const placeholder = "-"

// Summary prints one block per completed endpoint. Optional figures that were not
// collected render as "-".
func Summary(w io.Writer, results []benchmark.EndpointRunResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "BENCHMARK RESULTS SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	if len(results) == 0 {
		fmt.Fprintln(w, "\nNo endpoint completed.")
		return
	}

	for _, r := range results {
		fmt.Fprintf(w, "\n%s:\n", r.Name)
		fmt.Fprintf(w, "  Path: %s\n", r.Path)
		fmt.Fprintf(w, "  Avg RPS: %.2f\n", r.RPS)
		fmt.Fprintf(w, "  Requests: %d (%.2f%% success)\n", r.Requests, r.SuccessRatio*100)
		if len(r.StatusCodes) > 0 {
			fmt.Fprintf(w, "  Status codes: %s\n", formatCodes(r.StatusCodes))
		}
		fmt.Fprintf(w, "  Latency (mean): %.2fms\n", r.Latency.Mean)
		fmt.Fprintf(w, "  Latency (p50): %.2fms\n", r.Latency.P50)
		fmt.Fprintf(w, "  Latency (p95): %.2fms\n", r.Latency.P95)
		fmt.Fprintf(w, "  Latency (p99): %.2fms\n", r.Latency.P99)
		fmt.Fprintf(w, "  Avg Throughput: %s/s\n", benchmark.FormatBytes(int64(r.ThroughputBytesPerSec)))

		cg := r.CgroupStats
		fmt.Fprintf(w, "  Container memory (avg): %s\n", orDash(cg.MemAvgMB, "%.2f MB"))
		fmt.Fprintf(w, "  Container memory (peak): %s\n", orDash(cg.MemPeakMB, "%.2f MB"))
		fmt.Fprintf(w, "  Container memory samples: %d\n", cg.MemSamples)
		fmt.Fprintf(w, "  CPU (avg): %s\n", orDash(cg.CPUAvgPercent, "%.2f%%"))
		fmt.Fprintf(w, "  CPU limit: %s\n", orDash(cg.CPULimit, "%.2f cores"))

		ps := r.ProcessStats
		fmt.Fprintf(w, "  Heap (peak): %s\n", orDash(ps.PeakHeapMB, "%.2f MB"))
		fmt.Fprintf(w, "  Heap (avg): %s\n", orDash(ps.AvgHeapMB, "%.2f MB"))
		fmt.Fprintf(w, "  Heap samples: %s\n", uintOrDash(ps.SampleCount))
		fmt.Fprintf(w, "  V8 used heap: %s\n", orDash(ps.V8UsedHeapMB, "%.2f MB"))
		fmt.Fprintf(w, "  Heap delta: %s\n", orDash(ps.HeapDeltaMB, "%+.2f MB"))

		for _, e := range r.Errors {
			fmt.Fprintf(w, "  Error: %s\n", e)
		}
	}
}

// Table prints every endpoint side by side, one metric per row
func Table(w io.Writer, results []benchmark.EndpointRunResult) {
	if len(results) == 0 {
		return
	}

	width := 15 + 20*len(results)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "COMPARISON - Context Propagation")
	fmt.Fprintln(w, strings.Repeat("=", width))

	fmt.Fprintf(w, "%-15s", "Metric")
	for _, r := range results {
		fmt.Fprintf(w, "%-20s", truncate(r.Name, 19))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", width))

	rows := []struct {
		label string
		cell  func(benchmark.EndpointRunResult) string
	}{
		{"RPS", func(r benchmark.EndpointRunResult) string { return fmt.Sprintf("%.0f req/s", r.RPS) }},
		{"Latency mean", func(r benchmark.EndpointRunResult) string { return fmt.Sprintf("%.2f ms", r.Latency.Mean) }},
		{"Latency p95", func(r benchmark.EndpointRunResult) string { return fmt.Sprintf("%.2f ms", r.Latency.P95) }},
		{"Latency p99", func(r benchmark.EndpointRunResult) string { return fmt.Sprintf("%.2f ms", r.Latency.P99) }},
		{"Mem avg", func(r benchmark.EndpointRunResult) string { return orDash(r.CgroupStats.MemAvgMB, "%.1f MB") }},
		{"Mem peak", func(r benchmark.EndpointRunResult) string { return orDash(r.CgroupStats.MemPeakMB, "%.1f MB") }},
		{"CPU avg", func(r benchmark.EndpointRunResult) string { return orDash(r.CgroupStats.CPUAvgPercent, "%.1f%%") }},
		{"Heap peak", func(r benchmark.EndpointRunResult) string { return orDash(r.ProcessStats.PeakHeapMB, "%.1f MB") }},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%-15s", row.label)
		for _, r := range results {
			fmt.Fprintf(w, "%-20s", row.cell(r))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, strings.Repeat("=", width))
}

func orDash(v *float64, format string) string {
	if v == nil {
		return placeholder
	}
	return fmt.Sprintf(format, *v)
}

func uintOrDash(v *uint64) string {
	if v == nil {
		return placeholder
	}
	return fmt.Sprintf("%d", *v)
}

func formatCodes(codes map[string]int) string {
	keys := make([]string, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, code := range keys {
		parts[i] = fmt.Sprintf("%s=%d", code, codes[code])
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
