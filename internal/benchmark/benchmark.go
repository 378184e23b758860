package benchmark

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const bytesPerMB = 1024 * 1024

// EndpointSpec names one context-propagation strategy and the path serving it
type EndpointSpec struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Path string `json:"path" yaml:"path" validate:"required,startswith=/"`
}

// LoadConfig describes one fixed-connection, fixed-duration load run
type LoadConfig struct {
	TargetURL       string `json:"url" validate:"required,url"`
	Connections     uint   `json:"connections" validate:"gt=0"`
	DurationSeconds uint   `json:"durationSeconds" validate:"gt=0"`
	Pipelining      uint   `json:"pipelining"`
}

// Duration returns the configured run length
func (c LoadConfig) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// LatencyStats holds latency figures in milliseconds
type LatencyStats struct {
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
}

// LoadResult is the aggregate outcome of one load run
type LoadResult struct {
	RequestsPerSecAvg        float64
	Latency                  LatencyStats
	ThroughputBytesPerSecAvg float64
	Requests                 uint64
	SuccessRatio             float64
	StatusCodes              map[string]int
	Errors                   []string
}

// CPUSnapshot is a point-in-time reading of cgroup CPU counters in microseconds
type CPUSnapshot struct {
	UsageMicros  *uint64
	UserMicros   *uint64
	SystemMicros *uint64
}

// CPUUsage is derived from two CPU snapshots and the wall time between them
type CPUUsage struct {
	DeltaMicros   *uint64
	ElapsedMillis int64
	AvgPercent    *float64
	CPULimit      *float64
}

// MemoryStats reduces a sequence of cgroup memory samples
type MemoryStats struct {
	SampleCount int
	AvgBytes    *float64
	PeakBytes   *uint64
}

// FormatBytes renders a byte count with a binary unit suffix
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Round2 rounds half away from zero to two decimal places
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Round2Ptr rounds an optional value, keeping nil as nil
func Round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round2(*v)
	return &r
}

// BytesToMB converts an optional byte count to megabytes
func BytesToMB(v *float64) *float64 {
	if v == nil {
		return nil
	}
	mb := *v / bytesPerMB
	return &mb
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// Uint returns a pointer to v
func Uint(v uint64) *uint64 {
	return &v
}
