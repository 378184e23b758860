package cgroup

import (
	"time"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

// CalculateCPUUsage derives average CPU utilisation from two snapshots.
//
// AvgPercent = delta / (elapsedMillis * 1000 * max(cores, 1)) * 100, left unclamped so it can
// exceed 100 under a multi-core quota. It is nil when either snapshot is missing, the counter
// went backwards, or elapsed is not positive.
func CalculateCPUUsage(start, end *benchmark.CPUSnapshot, elapsed time.Duration, cores float64, limitOK bool) benchmark.CPUUsage {
	usage := benchmark.CPUUsage{
		ElapsedMillis: elapsed.Milliseconds(),
	}
	if limitOK && cores != NoLimit {
		usage.CPULimit = benchmark.Float(cores)
	}

	startMicros, endMicros := totalMicros(start), totalMicros(end)
	if startMicros == nil || endMicros == nil || *endMicros < *startMicros {
		return usage
	}
	usage.DeltaMicros = benchmark.Uint(*endMicros - *startMicros)

	if usage.ElapsedMillis <= 0 {
		return usage
	}

	divisor := 1.0
	if usage.CPULimit != nil && *usage.CPULimit > 1 {
		divisor = *usage.CPULimit
	}
	percent := float64(*usage.DeltaMicros) / (float64(usage.ElapsedMillis) * 1000 * divisor) * 100
	usage.AvgPercent = &percent

	return usage
}

// totalMicros prefers the aggregate counter and falls back to user+system
func totalMicros(s *benchmark.CPUSnapshot) *uint64 {
	if s == nil {
		return nil
	}
	if s.UsageMicros != nil {
		return s.UsageMicros
	}
	if s.UserMicros != nil && s.SystemMicros != nil {
		return benchmark.Uint(*s.UserMicros + *s.SystemMicros)
	}
	return nil
}
