package loadgen

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

func loadConfig(url string, seconds uint) benchmark.LoadConfig {
	return benchmark.LoadConfig{
		TargetURL:       url,
		Connections:     4,
		DurationSeconds: seconds,
		Pipelining:      1,
	}
}

func TestRunAgainstHealthyServer(t *testing.T) {
	var mu sync.Mutex
	var missing atomic.Int64
	ids := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" || r.URL.Path != "/bench/cls" {
			missing.Add(1)
		}
		mu.Lock()
		ids[id]++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	driver := New(Config{RequestIDHeader: "X-Request-Id"})
	result, err := driver.Run(context.Background(), "/bench/cls", loadConfig(srv.URL+"/", 1))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Greater(t, result.Requests, uint64(0))
	assert.Greater(t, result.RequestsPerSecAvg, 0.0)
	assert.Greater(t, result.ThroughputBytesPerSecAvg, 0.0)
	assert.Equal(t, 1.0, result.SuccessRatio)
	assert.Equal(t, int(result.Requests), result.StatusCodes["200"])
	assert.Empty(t, result.Errors)
	assert.LessOrEqual(t, result.Latency.P50, result.Latency.P95)
	assert.LessOrEqual(t, result.Latency.P95, result.Latency.P99)

	assert.Zero(t, missing.Load())
	mu.Lock()
	defer mu.Unlock()
	for id, n := range ids {
		assert.Equal(t, 1, n, "request id %s reused", id)
	}
}

func TestRunPartialFailuresAreNotAnError(t *testing.T) {
	var n atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1)%2 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	result, err := New(Config{}).Run(context.Background(), "/bench/singleton", loadConfig(srv.URL, 1))
	require.NoError(t, err)

	assert.Greater(t, result.SuccessRatio, 0.0)
	assert.Less(t, result.SuccessRatio, 1.0)
	assert.Positive(t, result.StatusCodes["500"])
	assert.Positive(t, result.StatusCodes["200"])
	assert.LessOrEqual(t, len(result.Errors), maxReportedErrors)
}

func TestRunUnreachableTarget(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	result, err := New(Config{RequestTimeout: time.Second}).Run(
		context.Background(), "/bench/request-scope", loadConfig("http://"+addr, 1))

	assert.Nil(t, result)
	var driverErr *LoadDriverError
	require.True(t, errors.As(err, &driverErr))
	assert.Equal(t, "/bench/request-scope", driverErr.Endpoint)
	assert.ErrorIs(t, err, ErrNoResponses)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	started := time.Now()
	result, err := New(Config{}).Run(ctx, "/bench/cls", loadConfig(srv.URL, 30))

	require.NoError(t, err)
	assert.Positive(t, result.Requests)
	assert.Less(t, time.Since(started), 10*time.Second)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	driver := New(Config{})

	_, err := driver.Run(context.Background(), "/x", benchmark.LoadConfig{TargetURL: "http://localhost", DurationSeconds: 1})
	assert.Error(t, err)

	_, err = driver.Run(context.Background(), "/x", benchmark.LoadConfig{TargetURL: "http://localhost", Connections: 1})
	assert.Error(t, err)

	_, err = driver.Run(context.Background(), "/x", benchmark.LoadConfig{Connections: 1, DurationSeconds: 1})
	assert.ErrorContains(t, err, "invalid load config")
}

func TestLoadDriverErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := error(&LoadDriverError{Endpoint: "/bench/cls", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/bench/cls")
}
