package loadgen

import (
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

// maxReportedErrors caps the distinct error strings carried into a result
const maxReportedErrors = 10

// toLoadResult converts closed vegeta metrics into a LoadResult
func toLoadResult(m *vegeta.Metrics) *benchmark.LoadResult {
	result := &benchmark.LoadResult{
		RequestsPerSecAvg: m.Rate,
		Latency: benchmark.LatencyStats{
			Mean: millis(m.Latencies.Mean),
			P50:  millis(m.Latencies.P50),
			P95:  millis(m.Latencies.P95),
			P99:  millis(m.Latencies.P99),
		},
		Requests:     m.Requests,
		SuccessRatio: m.Success,
		StatusCodes:  make(map[string]int, len(m.StatusCodes)),
	}

	// Wait covers the tail of requests still in flight when the attack ended
	if window := (m.Duration + m.Wait).Seconds(); window > 0 {
		result.ThroughputBytesPerSecAvg = float64(m.BytesIn.Total) / window
	}

	for code, n := range m.StatusCodes {
		result.StatusCodes[code] = n
	}

	errs := m.Errors
	if len(errs) > maxReportedErrors {
		errs = errs[:maxReportedErrors]
	}
	result.Errors = append([]string(nil), errs...)

	return result
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
