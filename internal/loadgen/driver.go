package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	vegeta "github.com/tsenart/vegeta/v12/lib"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

// DefaultRequestTimeout bounds a single request
const DefaultRequestTimeout = 10 * time.Second

var validate = validator.New()

// ErrNoResponses means not a single request got an HTTP response during the run
var ErrNoResponses = errors.New("target never responded")

// LoadDriverError reports a run that could not be established at all
type LoadDriverError struct {
	Endpoint string
	Err      error
}

func (e *LoadDriverError) Error() string {
	return fmt.Sprintf("load run against %s failed: %v", e.Endpoint, e.Err)
}

func (e *LoadDriverError) Unwrap() error {
	return e.Err
}

// Config tunes the HTTP client side of the driver
type Config struct {
	// RequestIDHeader carries a fresh UUID on every request; empty disables it
	RequestIDHeader string
	RequestTimeout  time.Duration
}

// Driver runs closed-loop HTTP load: every worker sends its next request as soon as the
// previous one completes, for the configured duration.
type Driver struct {
	cfg Config
}

// New builds a driver, defaulting RequestTimeout when unset
func New(cfg Config) *Driver {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Driver{cfg: cfg}
}

// Run loads targetURL+path with cfg.Connections connections for cfg.Duration() and blocks
// until all in-flight requests drain. Requests that fail individually are counted, not fatal.
//
// Go's HTTP transport does not pipeline, so cfg.Pipelining is honoured as extra concurrent
// workers sharing the same capped connection pool.
func (d *Driver) Run(ctx context.Context, path string, cfg benchmark.LoadConfig) (*benchmark.LoadResult, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid load config: %w", err)
	}

	pipelining := cfg.Pipelining
	if pipelining == 0 {
		pipelining = 1
	}
	workers := uint64(cfg.Connections * pipelining)
	url := strings.TrimRight(cfg.TargetURL, "/") + path

	attacker := vegeta.NewAttacker(
		vegeta.Workers(workers),
		vegeta.MaxWorkers(workers),
		vegeta.Connections(int(cfg.Connections)),
		vegeta.MaxConnections(int(cfg.Connections)),
		vegeta.KeepAlive(true),
		vegeta.Timeout(d.cfg.RequestTimeout),
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			attacker.Stop()
		case <-done:
		}
	}()

	// Freq 0 removes pacing: each worker issues requests back to back
	rate := vegeta.Rate{Freq: 0, Per: time.Second}

	var metrics vegeta.Metrics
	var responded uint64
	for res := range attacker.Attack(d.targeter(url), rate, cfg.Duration(), path) {
		metrics.Add(res)
		if res.Code != 0 {
			responded++
		}
	}
	metrics.Close()

	if responded == 0 {
		cause := ErrNoResponses
		if len(metrics.Errors) > 0 {
			cause = fmt.Errorf("%w: %s", ErrNoResponses, metrics.Errors[0])
		}
		if err := ctx.Err(); err != nil {
			cause = fmt.Errorf("%w: %w", cause, err)
		}
		return nil, &LoadDriverError{Endpoint: path, Err: cause}
	}

	return toLoadResult(&metrics), nil
}

func (d *Driver) targeter(url string) vegeta.Targeter {
	header := d.cfg.RequestIDHeader
	return func(tgt *vegeta.Target) error {
		if tgt == nil {
			return vegeta.ErrNilTarget
		}
		tgt.Method = http.MethodGet
		tgt.URL = url
		tgt.Body = nil
		tgt.Header = http.Header{"Accept": []string{"application/json"}}
		if header != "" {
			tgt.Header.Set(header, uuid.NewString())
		}
		return nil
	}
}
