package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/runner"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultEnvFiles are loaded, when present, before the environment is parsed
var DefaultEnvFiles = []string{".env", ".env.local"}

type LoadOptions struct {
	BaseURL         string `env:"BENCH_BASE_URL" envDefault:"http://localhost:3000" validate:"required,url"`
	Connections     uint   `env:"BENCH_CONNECTIONS" envDefault:"100" validate:"gt=0"`
	DurationSeconds uint   `env:"BENCH_DURATION_SECONDS" envDefault:"30" validate:"gt=0"`
	Pipelining      uint   `env:"BENCH_PIPELINING" envDefault:"1" validate:"gt=0"`

	WarmupConnections     uint `env:"BENCH_WARMUP_CONNECTIONS" envDefault:"10" validate:"gt=0"`
	WarmupDurationSeconds uint `env:"BENCH_WARMUP_DURATION_SECONDS" envDefault:"5" validate:"gt=0"`

	RequestIDHeader string `env:"BENCH_REQUEST_ID_HEADER" envDefault:"X-Request-Id"`
}

type TimingOptions struct {
	SampleInterval      time.Duration `env:"BENCH_SAMPLE_INTERVAL" envDefault:"250ms" validate:"gt=0"`
	Settle              time.Duration `env:"BENCH_SETTLE" envDefault:"1s" validate:"gte=0"`
	ShortSettle         time.Duration `env:"BENCH_SHORT_SETTLE" envDefault:"500ms" validate:"gte=0"`
	Cooldown            time.Duration `env:"BENCH_COOLDOWN" envDefault:"5s" validate:"gte=0"`
	CollaboratorTimeout time.Duration `env:"BENCH_COLLABORATOR_TIMEOUT" envDefault:"5s" validate:"gt=0"`
	ReadyTimeout        time.Duration `env:"BENCH_READY_TIMEOUT" envDefault:"30s" validate:"gte=0"`
}

type ReportOptions struct {
	Dir         string `env:"BENCH_REPORT_DIR" envDefault:"./reports" validate:"required"`
	FileName    string `env:"BENCH_REPORT_FILE" envDefault:"benchmark-results.json" validate:"required"`
	Timestamped bool   `env:"BENCH_REPORT_TIMESTAMPED" envDefault:"false"`
	CSV         bool   `env:"BENCH_REPORT_CSV" envDefault:"true"`
}

type Configuration struct {
	Load   LoadOptions
	Timing TimingOptions
	Report ReportOptions

	CgroupRoot  string `env:"BENCH_CGROUP_ROOT" envDefault:"/sys/fs/cgroup"`
	SuiteFile   string `env:"BENCH_SUITE_FILE"`
	HistoryDSN  string `env:"BENCH_HISTORY_DSN"`
	ComposeFile string `env:"BENCH_COMPOSE_FILE"`
	LogLevel    string `env:"BENCH_LOG_LEVEL" envDefault:"info" validate:"oneof=silent error warn info debug trace"`
}

// LoadEnv loads whichever of envFiles exist and reports how many were found.
// Variables already present in the environment win.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files, parses the environment and validates the result
func Load(envFiles []string) (*Configuration, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	return Parse()
}

// Parse builds a Configuration from the current environment only
func Parse() (*Configuration, error) {
	c := &Configuration{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return c, nil
}

// LoadConfig is the measurement run configuration
func (c *Configuration) LoadConfig() benchmark.LoadConfig {
	return benchmark.LoadConfig{
		TargetURL:       c.Load.BaseURL,
		Connections:     c.Load.Connections,
		DurationSeconds: c.Load.DurationSeconds,
		Pipelining:      c.Load.Pipelining,
	}
}

// WarmupConfig is the lighter run that precedes each measurement
func (c *Configuration) WarmupConfig() benchmark.LoadConfig {
	return benchmark.LoadConfig{
		TargetURL:       c.Load.BaseURL,
		Connections:     c.Load.WarmupConnections,
		DurationSeconds: c.Load.WarmupDurationSeconds,
		Pipelining:      c.Load.Pipelining,
	}
}

// RunnerConfig maps the configuration onto the sequencer's settings
func (c *Configuration) RunnerConfig() runner.Config {
	return runner.Config{
		Load:           c.LoadConfig(),
		Warmup:         c.WarmupConfig(),
		SampleInterval: c.Timing.SampleInterval,
		Pauses: runner.Pauses{
			Settle:      c.Timing.Settle,
			ShortSettle: c.Timing.ShortSettle,
			Cooldown:    c.Timing.Cooldown,
		},
	}
}

// SuiteConfig is the configuration echoed into the report
func (c *Configuration) SuiteConfig(endpoints []benchmark.EndpointSpec) benchmark.SuiteConfig {
	return benchmark.SuiteConfig{
		URL:              c.Load.BaseURL,
		Connections:      c.Load.Connections,
		DurationSeconds:  c.Load.DurationSeconds,
		Pipelining:       c.Load.Pipelining,
		Warmup:           c.WarmupConfig(),
		SampleIntervalMs: c.Timing.SampleInterval.Milliseconds(),
		Endpoints:        endpoints,
	}
}
