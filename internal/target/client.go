package target

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds every collaborator call
const DefaultTimeout = 5 * time.Second

const (
	memoryPath = "/bench/memory"
	resetPath  = "/bench/memory/reset"
	gcPath     = "/bench/gc"
)

// HeapFigures is the process-level heap view; values are megabytes
type HeapFigures struct {
	HeapUsed  *float64 `json:"heapUsed"`
	HeapTotal *float64 `json:"heapTotal"`
	RSS       *float64 `json:"rss"`
	External  *float64 `json:"external"`
}

// V8Figures is the runtime heap view; values are bytes
type V8Figures struct {
	UsedHeapSize  *float64 `json:"usedHeapSize"`
	TotalHeapSize *float64 `json:"totalHeapSize"`
	HeapSizeLimit *float64 `json:"heapSizeLimit"`
}

// EndpointFigures are the per-path counters kept by the service, peak and avg in megabytes
type EndpointFigures struct {
	Peak        *float64 `json:"peak"`
	Avg         *float64 `json:"avg"`
	SampleCount *uint64  `json:"sampleCount"`
}

// MemorySnapshot is the body of GET /bench/memory
type MemorySnapshot struct {
	Current   *HeapFigures               `json:"current"`
	V8        *V8Figures                 `json:"v8"`
	Endpoints map[string]EndpointFigures `json:"endpoints"`
}

// Endpoint returns the counters recorded for path, if any
func (s *MemorySnapshot) Endpoint(path string) (EndpointFigures, bool) {
	if s == nil || s.Endpoints == nil {
		return EndpointFigures{}, false
	}
	fig, ok := s.Endpoints[path]
	return fig, ok
}

// HeapUsedMB returns current.heapUsed when reported
func (s *MemorySnapshot) HeapUsedMB() *float64 {
	if s == nil || s.Current == nil {
		return nil
	}
	return s.Current.HeapUsed
}

// Client talks to the introspection endpoints of the service under test.
// Reset, GC and Memory never fail: an unreachable or misbehaving service means no data.
type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
}

// New returns a client for the service at baseURL; timeout <= 0 uses DefaultTimeout
func New(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Reset clears every per-endpoint counter
func (c *Client) Reset(ctx context.Context) {
	if err := c.get(ctx, resetPath, nil); err != nil {
		c.log.WithError(err).Debug("memory reset unavailable")
	}
}

// GC asks the service to run a garbage collection pass
func (c *Client) GC(ctx context.Context) {
	if err := c.get(ctx, gcPath, nil); err != nil {
		c.log.WithError(err).Debug("gc request unavailable")
	}
}

// Memory reads the current memory statistics, nil when they cannot be obtained
func (c *Client) Memory(ctx context.Context) *MemorySnapshot {
	var snap MemorySnapshot
	if err := c.get(ctx, memoryPath, &snap); err != nil {
		c.log.WithError(err).Debug("memory statistics unavailable")
		return nil
	}
	return &snap
}

// WaitForReady polls the memory endpoint until it answers or timeout elapses
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	policy := backoff.WithContext(backoff.NewConstantBackOff(500*time.Millisecond), ctx)
	err := backoff.Retry(func() error {
		return c.get(ctx, memoryPath, nil)
	}, policy)
	if err != nil {
		return fmt.Errorf("timeout waiting for %s after %v: %w", c.baseURL, timeout, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if into == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
