package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

var csvHeader = []string{
	"Name", "Path", "RPS",
	"LatencyMeanMs", "LatencyP50Ms", "LatencyP95Ms", "LatencyP99Ms",
	"ThroughputBytesPerSec",
	"MemAvgMB", "MemPeakMB", "CPUAvgPercent", "CPULimit",
	"HeapPeakMB", "HeapAvgMB", "HeapSamples", "V8UsedHeapMB",
}

// ResultsToCSV exports one row per endpoint for plotting. Missing values are empty cells.
func ResultsToCSV(results []benchmark.EndpointRunResult, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range results {
		r = r.Rounded()
		row := []string{
			r.Name,
			r.Path,
			fmt.Sprintf("%.2f", r.RPS),
			fmt.Sprintf("%.2f", r.Latency.Mean),
			fmt.Sprintf("%.2f", r.Latency.P50),
			fmt.Sprintf("%.2f", r.Latency.P95),
			fmt.Sprintf("%.2f", r.Latency.P99),
			fmt.Sprintf("%.2f", r.ThroughputBytesPerSec),
			cell(r.CgroupStats.MemAvgMB),
			cell(r.CgroupStats.MemPeakMB),
			cell(r.CgroupStats.CPUAvgPercent),
			cell(r.CgroupStats.CPULimit),
			cell(r.ProcessStats.PeakHeapMB),
			cell(r.ProcessStats.AvgHeapMB),
			uintCell(r.ProcessStats.SampleCount),
			cell(r.ProcessStats.V8UsedHeapMB),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV file: %w", err)
	}
	return nil
}

func cell(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

func uintCell(v *uint64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(*v, 10)
}
