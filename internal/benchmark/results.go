package benchmark

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// CgroupStats contains container-level resource figures for the measurement window
type CgroupStats struct {
	MemAvgMB      *float64 `json:"memAvgMb"`
	MemPeakMB     *float64 `json:"memPeakMb"`
	MemSamples    int      `json:"memSampleCount"`
	CPUAvgPercent *float64 `json:"cpuAvgPercent"`
	CPULimit      *float64 `json:"cpuLimit"`
}

// ProcessStats contains heap figures reported by the service under test
type ProcessStats struct {
	PeakHeapMB       *float64 `json:"peakHeapMb"`
	AvgHeapMB        *float64 `json:"avgHeapMb"`
	SampleCount      *uint64  `json:"sampleCount"`
	V8UsedHeapMB     *float64 `json:"v8UsedHeapMb"`
	HeapUsedBeforeMB *float64 `json:"heapUsedBeforeMb"`
	HeapUsedAfterMB  *float64 `json:"heapUsedAfterMb"`
	HeapDeltaMB      *float64 `json:"heapDeltaMb"`
}

// EndpointRunResult is produced once an endpoint's full phase sequence completes
type EndpointRunResult struct {
	Name                  string         `json:"name"`
	Path                  string         `json:"path"`
	RPS                   float64        `json:"rps"`
	Latency               LatencyStats   `json:"latency"`
	ThroughputBytesPerSec float64        `json:"throughputBytesPerSec"`
	Requests              uint64         `json:"requests"`
	SuccessRatio          float64        `json:"successRatio"`
	StatusCodes           map[string]int `json:"statusCodes,omitempty"`
	Errors                []string       `json:"errors,omitempty"`
	CgroupStats           CgroupStats    `json:"cgroupStats"`
	ProcessStats          ProcessStats   `json:"processStats"`
}

// Rounded returns a copy with every numeric field rounded to two decimals
func (r EndpointRunResult) Rounded() EndpointRunResult {
	r.RPS = Round2(r.RPS)
	r.Latency = LatencyStats{
		Mean: Round2(r.Latency.Mean),
		P50:  Round2(r.Latency.P50),
		P95:  Round2(r.Latency.P95),
		P99:  Round2(r.Latency.P99),
	}
	r.ThroughputBytesPerSec = Round2(r.ThroughputBytesPerSec)
	r.SuccessRatio = Round2(r.SuccessRatio)
	r.CgroupStats.MemAvgMB = Round2Ptr(r.CgroupStats.MemAvgMB)
	r.CgroupStats.MemPeakMB = Round2Ptr(r.CgroupStats.MemPeakMB)
	r.CgroupStats.CPUAvgPercent = Round2Ptr(r.CgroupStats.CPUAvgPercent)
	r.CgroupStats.CPULimit = Round2Ptr(r.CgroupStats.CPULimit)
	r.ProcessStats.PeakHeapMB = Round2Ptr(r.ProcessStats.PeakHeapMB)
	r.ProcessStats.AvgHeapMB = Round2Ptr(r.ProcessStats.AvgHeapMB)
	r.ProcessStats.V8UsedHeapMB = Round2Ptr(r.ProcessStats.V8UsedHeapMB)
	r.ProcessStats.HeapUsedBeforeMB = Round2Ptr(r.ProcessStats.HeapUsedBeforeMB)
	r.ProcessStats.HeapUsedAfterMB = Round2Ptr(r.ProcessStats.HeapUsedAfterMB)
	r.ProcessStats.HeapDeltaMB = Round2Ptr(r.ProcessStats.HeapDeltaMB)
	return r
}

// ComparisonRatio compares one endpoint against the baseline, in percent
type ComparisonRatio struct {
	RPSRatioPercent        *float64 `json:"rpsRatioPercent"`
	LatencyRatioPercent    *float64 `json:"latencyRatioPercent"`
	MemoryPeakRatioPercent *float64 `json:"memoryPeakRatioPercent"`
	MemoryAvgRatioPercent  *float64 `json:"memoryAvgRatioPercent"`
	CPURatioPercent        *float64 `json:"cpuRatioPercent"`
	DegradationPercent     *float64 `json:"degradationPercent"`
}

// SuiteConfig records the parameters a report was produced with
type SuiteConfig struct {
	URL              string         `json:"url"`
	Connections      uint           `json:"connections"`
	DurationSeconds  uint           `json:"durationSeconds"`
	Pipelining       uint           `json:"pipelining"`
	Warmup           LoadConfig     `json:"warmup"`
	SampleIntervalMs int64          `json:"sampleIntervalMs"`
	Endpoints        []EndpointSpec `json:"endpoints"`
}

// Report is the artifact written once at the end of a run
type Report struct {
	RunID      string                     `json:"runId"`
	Timestamp  time.Time                  `json:"timestamp"`
	Config     SuiteConfig                `json:"config"`
	Results    []EndpointRunResult        `json:"results"`
	Comparison map[string]ComparisonRatio `json:"comparison"`
}

// NewReport assembles the report for a finished suite, assigning a fresh run ID
func NewReport(cfg SuiteConfig, results []EndpointRunResult, at time.Time) Report {
	return Report{
		RunID:      ulid.Make().String(),
		Timestamp:  at.UTC(),
		Config:     cfg,
		Results:    results,
		Comparison: Compare(results),
	}
}

// Rounded returns a copy of the report with all numeric values rounded to two decimals
func (r Report) Rounded() Report {
	results := make([]EndpointRunResult, len(r.Results))
	for i, res := range r.Results {
		results[i] = res.Rounded()
	}
	comparison := make(map[string]ComparisonRatio, len(r.Comparison))
	for name, c := range r.Comparison {
		comparison[name] = ComparisonRatio{
			RPSRatioPercent:        Round2Ptr(c.RPSRatioPercent),
			LatencyRatioPercent:    Round2Ptr(c.LatencyRatioPercent),
			MemoryPeakRatioPercent: Round2Ptr(c.MemoryPeakRatioPercent),
			MemoryAvgRatioPercent:  Round2Ptr(c.MemoryAvgRatioPercent),
			CPURatioPercent:        Round2Ptr(c.CPURatioPercent),
			DegradationPercent:     Round2Ptr(c.DegradationPercent),
		}
	}
	r.Results = results
	r.Comparison = comparison
	return r
}
