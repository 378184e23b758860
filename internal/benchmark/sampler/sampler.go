package sampler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark/statistics"
)

// DefaultInterval is the polling period used when none is configured
const DefaultInterval = 250 * time.Millisecond

// MemoryReader is satisfied by *cgroup.Probe
type MemoryReader interface {
	ReadMemoryCurrent() *uint64
	ReadMemoryPeak() *uint64
}

// Sampler polls a memory counter in the background while a measurement runs
type Sampler struct {
	reader   MemoryReader
	interval time.Duration
}

// New creates a Sampler; a non-positive interval falls back to DefaultInterval
func New(reader MemoryReader, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{reader: reader, interval: interval}
}

// Handle is one running poll loop. The samples it collects belong to it alone.
type Handle struct {
	reader MemoryReader
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	samples []uint64

	stopOnce sync.Once
	stats    benchmark.MemoryStats
}

// Start begins polling every interval until Stop is called or ctx is done.
// No sample is taken at start; the first one arrives after one interval.
func (s *Sampler) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	h := &Handle{
		reader: s.reader,
		cancel: cancel,
		group:  group,
	}

	interval := s.interval
	group.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if v := h.reader.ReadMemoryCurrent(); v != nil {
					h.mu.Lock()
					h.samples = append(h.samples, *v)
					h.mu.Unlock()
				}
			}
		}
	})

	return h
}

// Stop cancels the poll loop, waits for it to exit and reduces the collected samples.
// Calling Stop more than once returns the same stats.
func (h *Handle) Stop() benchmark.MemoryStats {
	h.stopOnce.Do(func() {
		h.cancel()
		_ = h.group.Wait()

		h.mu.Lock()
		samples := make([]uint64, len(h.samples))
		copy(samples, h.samples)
		h.mu.Unlock()

		h.stats = Reduce(samples, h.reader.ReadMemoryPeak())
	})
	return h.stats
}

// Reduce computes average and peak memory. The kernel-reported peak, when present,
// takes precedence over the largest local sample.
func Reduce(samples []uint64, kernelPeak *uint64) benchmark.MemoryStats {
	stats := benchmark.MemoryStats{SampleCount: len(samples)}

	if len(samples) > 0 {
		values := statistics.FromUint64(samples)
		stats.AvgBytes = benchmark.Float(statistics.Mean(values))
		stats.PeakBytes = benchmark.Uint(uint64(statistics.Max(values)))
	}
	if kernelPeak != nil {
		stats.PeakBytes = benchmark.Uint(*kernelPeak)
	}

	return stats
}
