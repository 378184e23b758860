package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/target"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeDriver struct {
	rec     *recorder
	rps     map[string]float64
	failing map[string]bool
	warmErr error
}

func (d *fakeDriver) Run(ctx context.Context, path string, cfg benchmark.LoadConfig) (*benchmark.LoadResult, error) {
	warmup := cfg.Connections == 10
	if warmup {
		d.rec.add("warmup " + path)
		if d.warmErr != nil {
			return nil, d.warmErr
		}
	} else {
		d.rec.add("measure " + path)
	}
	if d.failing[path] {
		return nil, errors.New("connection refused")
	}
	return &benchmark.LoadResult{
		RequestsPerSecAvg: d.rps[path],
		Latency:           benchmark.LatencyStats{Mean: 2, P50: 1.5, P95: 4, P99: 6},
		Requests:          uint64(d.rps[path]) * 30,
		SuccessRatio:      1,
		StatusCodes:       map[string]int{"200": int(d.rps[path]) * 30},
	}, nil
}

type fakeCollab struct {
	rec      *recorder
	memCalls int
	noData   bool
	path     string
}

func (c *fakeCollab) Reset(context.Context) { c.rec.add("reset") }
func (c *fakeCollab) GC(context.Context) { c.rec.add("gc") }

func (c *fakeCollab) Memory(context.Context) *target.MemorySnapshot {
	c.rec.add("memory")
	if c.noData {
		return nil
	}
	c.memCalls++
	heap := 40.0 + float64(c.memCalls)
	used := float64(64 * 1024 * 1024)
	peak, avg, samples := 50.5, 45.25, uint64(900)
	return &target.MemorySnapshot{
		Current: &target.HeapFigures{HeapUsed: &heap},
		V8:      &target.V8Figures{UsedHeapSize: &used},
		Endpoints: map[string]target.EndpointFigures{
			c.path: {Peak: &peak, Avg: &avg, SampleCount: &samples},
		},
	}
}

type fakeProbe struct {
	mu     sync.Mutex
	cpu    uint64
	noData bool
}

func (p *fakeProbe) ReadMemoryCurrent() *uint64 { return benchmark.Uint(100 * 1024 * 1024) }
func (p *fakeProbe) ReadMemoryPeak() *uint64 {
	if p.noData {
		return nil
	}
	return benchmark.Uint(200 * 1024 * 1024)
}

func (p *fakeProbe) DetectCPULimit() (float64, bool) { return 2, !p.noData }

func (p *fakeProbe) ReadCPUStat() *benchmark.CPUSnapshot {
	if p.noData {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cpu += 500_000
	return &benchmark.CPUSnapshot{UsageMicros: benchmark.Uint(p.cpu)}
}

func testConfig() Config {
	return Config{
		Load:           benchmark.LoadConfig{TargetURL: "http://localhost:3000", Connections: 100, DurationSeconds: 30, Pipelining: 1},
		Warmup:         benchmark.LoadConfig{TargetURL: "http://localhost:3000", Connections: 10, DurationSeconds: 5, Pipelining: 1},
		SampleInterval: time.Millisecond,
	}
}

func newTestSequencer(driver LoadDriver, collab Collaborator, probe ResourceProbe, log logrus.FieldLogger) (*Sequencer, *[]time.Duration) {
	seq := New(driver, collab, probe, testConfig(), log)
	var pauses []time.Duration
	seq.sleep = func(_ context.Context, d time.Duration) { pauses = append(pauses, d) }
	return seq, &pauses
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var suite = []benchmark.EndpointSpec{
	{Name: "Singleton", Path: "/bench/singleton"},
	{Name: "Request Scope", Path: "/bench/request-scope"},
	{Name: "CLS", Path: "/bench/cls"},
}

func TestRunEndpointPhaseOrder(t *testing.T) {
	rec := &recorder{}
	driver := &fakeDriver{rec: rec, rps: map[string]float64{"/bench/cls": 1000}}
	collab := &fakeCollab{rec: rec, path: "/bench/cls"}
	seq, pauses := newTestSequencer(driver, collab, &fakeProbe{}, quietLogger())
	seq.cfg.Pauses = DefaultPauses

	result, err := seq.RunEndpoint(context.Background(), suite[2])
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, []string{
		"reset", "gc",
		"warmup /bench/cls",
		"reset", "gc",
		"memory",
		"measure /bench/cls",
		"memory",
	}, rec.snapshot())
	assert.Equal(t, []time.Duration{time.Second, 500 * time.Millisecond}, *pauses)
}

func TestRunEndpointAssemblesResult(t *testing.T) {
	rec := &recorder{}
	driver := &fakeDriver{rec: rec, rps: map[string]float64{"/bench/cls": 1000}}
	collab := &fakeCollab{rec: rec, path: "/bench/cls"}
	seq, _ := newTestSequencer(driver, collab, &fakeProbe{}, quietLogger())
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seq.now = func() time.Time {
		now := clock
		clock = clock.Add(time.Second)
		return now
	}

	result, err := seq.RunEndpoint(context.Background(), suite[2])
	require.NoError(t, err)

	assert.Equal(t, "CLS", result.Name)
	assert.Equal(t, "/bench/cls", result.Path)
	assert.Equal(t, 1000.0, result.RPS)
	assert.Equal(t, 6.0, result.Latency.P99)
	assert.Equal(t, 1.0, result.SuccessRatio)

	require.NotNil(t, result.CgroupStats.MemPeakMB)
	assert.Equal(t, 200.0, *result.CgroupStats.MemPeakMB)
	require.NotNil(t, result.CgroupStats.CPULimit)
	assert.Equal(t, 2.0, *result.CgroupStats.CPULimit)
	require.NotNil(t, result.CgroupStats.CPUAvgPercent)
	// 500ms of CPU over 1s of wall time on 2 cores
	assert.InDelta(t, 25.0, *result.CgroupStats.CPUAvgPercent, 1e-9)

	require.NotNil(t, result.ProcessStats.PeakHeapMB)
	assert.Equal(t, 50.5, *result.ProcessStats.PeakHeapMB)
	assert.Equal(t, 45.25, *result.ProcessStats.AvgHeapMB)
	assert.Equal(t, uint64(900), *result.ProcessStats.SampleCount)
	assert.Equal(t, 64.0, *result.ProcessStats.V8UsedHeapMB)
	assert.Equal(t, 41.0, *result.ProcessStats.HeapUsedBeforeMB)
	assert.Equal(t, 42.0, *result.ProcessStats.HeapUsedAfterMB)
	assert.Equal(t, 1.0, *result.ProcessStats.HeapDeltaMB)
}

func TestRunEndpointWithoutOptionalData(t *testing.T) {
	rec := &recorder{}
	driver := &fakeDriver{rec: rec, rps: map[string]float64{"/bench/cls": 800}}
	collab := &fakeCollab{rec: rec, noData: true}
	seq, _ := newTestSequencer(driver, collab, &fakeProbe{noData: true}, quietLogger())

	result, err := seq.RunEndpoint(context.Background(), suite[2])
	require.NoError(t, err)

	assert.Equal(t, 800.0, result.RPS)
	assert.Nil(t, result.CgroupStats.CPUAvgPercent)
	assert.Nil(t, result.CgroupStats.CPULimit)
	assert.Equal(t, benchmark.ProcessStats{}, result.ProcessStats)
}

func TestWarmupFailureIsNotFatal(t *testing.T) {
	rec := &recorder{}
	driver := &fakeDriver{rec: rec, rps: map[string]float64{"/bench/cls": 500}, warmErr: errors.New("warm-up refused")}
	log, hook := test.NewNullLogger()
	seq, _ := newTestSequencer(driver, &fakeCollab{rec: rec, path: "/bench/cls"}, &fakeProbe{}, log)

	result, err := seq.RunEndpoint(context.Background(), suite[2])
	require.NoError(t, err)
	assert.Equal(t, 500.0, result.RPS)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "warm-up failed" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRunSuiteSkipsFailedEndpoint(t *testing.T) {
	rec := &recorder{}
	driver := &fakeDriver{
		rec:     rec,
		rps:     map[string]float64{"/bench/singleton": 1000, "/bench/cls": 900},
		failing: map[string]bool{"/bench/request-scope": true},
	}
	log, hook := test.NewNullLogger()
	seq, pauses := newTestSequencer(driver, &fakeCollab{rec: rec}, &fakeProbe{}, log)
	seq.cfg.Pauses = Pauses{Cooldown: 5 * time.Second}

	results := seq.RunSuite(context.Background(), suite)

	require.Len(t, results, 2)
	assert.Equal(t, "Singleton", results[0].Name)
	assert.Equal(t, "CLS", results[1].Name)

	comparison := benchmark.Compare(results)
	require.Len(t, comparison, 1)
	require.Contains(t, comparison, "CLS")
	assert.InDelta(t, 90.0, *comparison["CLS"].RPSRatioPercent, 1e-9)

	var failed []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			failed = append(failed, entry.Data["endpoint"].(string))
		}
	}
	assert.Equal(t, []string{"Request Scope"}, failed)

	cooldowns := 0
	for _, d := range *pauses {
		if d == 5*time.Second {
			cooldowns++
		}
	}
	assert.Equal(t, 2, cooldowns)
}

func TestRunSuiteStopsWhenCancelled(t *testing.T) {
	rec := &recorder{}
	driver := &fakeDriver{rec: rec, rps: map[string]float64{}}
	seq, _ := newTestSequencer(driver, &fakeCollab{rec: rec}, &fakeProbe{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, seq.RunSuite(ctx, suite))
	assert.Empty(t, rec.snapshot())
}

func TestPauseReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := time.Now()
	pause(ctx, time.Hour)

	assert.Less(t, time.Since(started), time.Second)
}
