package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark/cgroup"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark/sampler"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/target"
)

// LoadDriver is satisfied by *loadgen.Driver
type LoadDriver interface {
	Run(ctx context.Context, path string, cfg benchmark.LoadConfig) (*benchmark.LoadResult, error)
}

// Collaborator is satisfied by *target.Client
type Collaborator interface {
	Reset(ctx context.Context)
	GC(ctx context.Context)
	Memory(ctx context.Context) *target.MemorySnapshot
}

// ResourceProbe is satisfied by *cgroup.Probe
type ResourceProbe interface {
	sampler.MemoryReader
	DetectCPULimit() (float64, bool)
	ReadCPUStat() *benchmark.CPUSnapshot
}

// Pauses are the fixed waits between phases
type Pauses struct {
	Settle      time.Duration
	ShortSettle time.Duration
	Cooldown    time.Duration
}

// DefaultPauses match the timings the suite has always used
var DefaultPauses = Pauses{
	Settle:      time.Second,
	ShortSettle: 500 * time.Millisecond,
	Cooldown:    5 * time.Second,
}

// Config drives one suite run
type Config struct {
	Load           benchmark.LoadConfig
	Warmup         benchmark.LoadConfig
	SampleInterval time.Duration
	Pauses         Pauses
}

// Sequencer measures endpoints one at a time through the full phase sequence
type Sequencer struct {
	driver  LoadDriver
	collab  Collaborator
	probe   ResourceProbe
	sampler *sampler.Sampler
	cfg     Config
	log     logrus.FieldLogger

	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

func New(driver LoadDriver, collab Collaborator, probe ResourceProbe, cfg Config, log logrus.FieldLogger) *Sequencer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sequencer{
		driver:  driver,
		collab:  collab,
		probe:   probe,
		sampler: sampler.New(probe, cfg.SampleInterval),
		cfg:     cfg,
		log:     log,
		sleep:   pause,
		now:     time.Now,
	}
}

// RunSuite measures every endpoint in order. An endpoint whose run fails is logged and
// skipped; the returned slice holds only the endpoints that completed.
func (s *Sequencer) RunSuite(ctx context.Context, endpoints []benchmark.EndpointSpec) []benchmark.EndpointRunResult {
	results := make([]benchmark.EndpointRunResult, 0, len(endpoints))

	for i, ep := range endpoints {
		if ctx.Err() != nil {
			s.log.WithError(ctx.Err()).Warn("suite interrupted")
			break
		}
		if i > 0 {
			s.log.WithField("pause", s.cfg.Pauses.Cooldown).Info("cooling down")
			s.sleep(ctx, s.cfg.Pauses.Cooldown)
		}

		result, err := s.RunEndpoint(ctx, ep)
		if err != nil {
			s.log.WithError(err).WithField("endpoint", ep.Name).Error("endpoint benchmark failed")
			continue
		}
		results = append(results, *result)
	}

	return results
}

// RunEndpoint executes reset, settle, warm-up, measure and collect for a single endpoint
func (s *Sequencer) RunEndpoint(ctx context.Context, ep benchmark.EndpointSpec) (*benchmark.EndpointRunResult, error) {
	log := s.log.WithFields(logrus.Fields{"endpoint": ep.Name, "path": ep.Path})

	// Phase 1: clean slate
	log.Info("resetting counters")
	s.collab.Reset(ctx)
	s.collab.GC(ctx)
	s.sleep(ctx, s.cfg.Pauses.Settle)

	// Phase 2: warm-up, results discarded
	log.WithFields(logrus.Fields{
		"connections": s.cfg.Warmup.Connections,
		"duration":    s.cfg.Warmup.Duration(),
	}).Info("warming up")
	if _, err := s.driver.Run(ctx, ep.Path, s.cfg.Warmup); err != nil {
		log.WithError(err).Warn("warm-up failed")
	}

	// Phase 3: drop whatever the warm-up left behind
	s.collab.Reset(ctx)
	s.collab.GC(ctx)
	s.sleep(ctx, s.cfg.Pauses.ShortSettle)
	before := s.collab.Memory(ctx)

	// Phase 4: measurement
	log.WithFields(logrus.Fields{
		"connections": s.cfg.Load.Connections,
		"duration":    s.cfg.Load.Duration(),
	}).Info("measuring")
	cores, limitOK := s.probe.DetectCPULimit()
	cpuStart := s.probe.ReadCPUStat()
	handle := s.sampler.Start(ctx)
	started := s.now()

	load, err := s.driver.Run(ctx, ep.Path, s.cfg.Load)

	cpuEnd := s.probe.ReadCPUStat()
	elapsed := s.now().Sub(started)
	memory := handle.Stop()
	if err != nil {
		return nil, fmt.Errorf("measure %s: %w", ep.Name, err)
	}

	// Phase 5: collect
	after := s.collab.Memory(ctx)
	cpu := cgroup.CalculateCPUUsage(cpuStart, cpuEnd, elapsed, cores, limitOK)

	result := assemble(ep, load, cpu, memory, before, after)
	log.WithFields(logrus.Fields{
		"rps":         fmt.Sprintf("%.2f", result.RPS),
		"p99_ms":      fmt.Sprintf("%.2f", result.Latency.P99),
		"mem_samples": memory.SampleCount,
	}).Info("endpoint complete")

	return result, nil
}

// assemble combines the load result, resource figures and collaborator counters
func assemble(
	ep benchmark.EndpointSpec,
	load *benchmark.LoadResult,
	cpu benchmark.CPUUsage,
	memory benchmark.MemoryStats,
	before, after *target.MemorySnapshot,
) *benchmark.EndpointRunResult {
	result := &benchmark.EndpointRunResult{
		Name:                  ep.Name,
		Path:                  ep.Path,
		RPS:                   load.RequestsPerSecAvg,
		Latency:               load.Latency,
		ThroughputBytesPerSec: load.ThroughputBytesPerSecAvg,
		Requests:              load.Requests,
		SuccessRatio:          load.SuccessRatio,
		StatusCodes:           load.StatusCodes,
		Errors:                load.Errors,
		CgroupStats: benchmark.CgroupStats{
			MemAvgMB:      benchmark.BytesToMB(memory.AvgBytes),
			MemSamples:    memory.SampleCount,
			CPUAvgPercent: cpu.AvgPercent,
			CPULimit:      cpu.CPULimit,
		},
	}
	if memory.PeakBytes != nil {
		result.CgroupStats.MemPeakMB = benchmark.BytesToMB(benchmark.Float(float64(*memory.PeakBytes)))
	}

	if fig, ok := after.Endpoint(ep.Path); ok {
		result.ProcessStats.PeakHeapMB = fig.Peak
		result.ProcessStats.AvgHeapMB = fig.Avg
		result.ProcessStats.SampleCount = fig.SampleCount
	}
	if after != nil && after.V8 != nil {
		result.ProcessStats.V8UsedHeapMB = benchmark.BytesToMB(after.V8.UsedHeapSize)
	}

	heapBefore, heapAfter := before.HeapUsedMB(), after.HeapUsedMB()
	result.ProcessStats.HeapUsedBeforeMB = heapBefore
	result.ProcessStats.HeapUsedAfterMB = heapAfter
	if heapBefore != nil && heapAfter != nil {
		result.ProcessStats.HeapDeltaMB = benchmark.Float(*heapAfter - *heapBefore)
	}

	return result
}

// pause waits for d or until ctx is done
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
