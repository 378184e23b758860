package benchmark

// Compare computes ratios of every result against results[0], the baseline.
// Fewer than two results yield an empty mapping.
func Compare(results []EndpointRunResult) map[string]ComparisonRatio {
	comparison := make(map[string]ComparisonRatio)
	if len(results) < 2 {
		return comparison
	}

	baseline := results[0]
	for _, result := range results[1:] {
		comparison[result.Name] = CompareAgainst(baseline, result)
	}
	return comparison
}

// CompareAgainst computes the ratios of candidate relative to baseline.
// Each component is nil when either operand is missing or the baseline is zero.
func CompareAgainst(baseline, candidate EndpointRunResult) ComparisonRatio {
	ratio := ComparisonRatio{
		RPSRatioPercent:        percentOf(&candidate.RPS, &baseline.RPS),
		LatencyRatioPercent:    percentOf(&candidate.Latency.Mean, &baseline.Latency.Mean),
		MemoryPeakRatioPercent: percentOf(candidate.CgroupStats.MemPeakMB, baseline.CgroupStats.MemPeakMB),
		MemoryAvgRatioPercent:  percentOf(candidate.CgroupStats.MemAvgMB, baseline.CgroupStats.MemAvgMB),
		CPURatioPercent:        percentOf(candidate.CgroupStats.CPUAvgPercent, baseline.CgroupStats.CPUAvgPercent),
	}

	if baseline.RPS > 0 {
		degradation := 0.0
		if candidate.RPS < baseline.RPS {
			degradation = (baseline.RPS - candidate.RPS) / baseline.RPS * 100
		}
		ratio.DegradationPercent = &degradation
	}

	return ratio
}

func percentOf(value, base *float64) *float64 {
	if value == nil || base == nil || *base == 0 {
		return nil
	}
	p := *value / *base * 100
	return &p
}
