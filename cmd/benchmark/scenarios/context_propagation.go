package scenarios

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

// ContextPropagation is the default suite. The first endpoint is the baseline every
// other endpoint is compared against.
//
// Strategies measured:
//   - Singleton: one shared logger, no per-request context at all
//   - Request Scope: the DI container builds a fresh provider chain per request
//   - CLS: continuation-local storage keeps per-request state without re-instantiation
var ContextPropagation = []benchmark.EndpointSpec{
	{Name: "Singleton", Path: "/bench/singleton"},
	{Name: "Request Scope", Path: "/bench/request-scope"},
	{Name: "CLS (nestjs-cls)", Path: "/bench/cls"},
}

// ErrEmptySuite is returned for a suite file that lists no endpoints
var ErrEmptySuite = errors.New("suite lists no endpoints")

type suiteFile struct {
	Endpoints []benchmark.EndpointSpec `yaml:"endpoints" validate:"dive"`
}

// Load returns the default suite when path is empty, otherwise the endpoints listed in
// the YAML file at path.
func Load(path string) ([]benchmark.EndpointSpec, error) {
	if path == "" {
		return append([]benchmark.EndpointSpec(nil), ContextPropagation...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite file: %w", err)
	}

	var suite suiteFile
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parse suite file: %w", err)
	}
	if len(suite.Endpoints) == 0 {
		return nil, ErrEmptySuite
	}
	if err := validator.New().Struct(suite); err != nil {
		return nil, fmt.Errorf("invalid suite file: %w", err)
	}

	seen := make(map[string]bool, len(suite.Endpoints))
	for _, ep := range suite.Endpoints {
		if seen[ep.Name] {
			return nil, fmt.Errorf("invalid suite file: duplicate endpoint name %q", ep.Name)
		}
		seen[ep.Name] = true
	}

	return suite.Endpoints, nil
}
