package scenarios

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

func writeSuite(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefault(t *testing.T) {
	endpoints, err := Load("")
	require.NoError(t, err)

	require.Len(t, endpoints, 3)
	assert.Equal(t, "Singleton", endpoints[0].Name)
	assert.Equal(t, "/bench/request-scope", endpoints[1].Path)
	assert.Equal(t, "/bench/cls", endpoints[2].Path)

	endpoints[0].Name = "mutated"
	assert.Equal(t, "Singleton", ContextPropagation[0].Name)
}

func TestLoadFile(t *testing.T) {
	path := writeSuite(t, `
endpoints:
  - name: Singleton
    path: /bench/singleton
  - name: CLS
    path: /bench/cls
`)

	endpoints, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []benchmark.EndpointSpec{
		{Name: "Singleton", Path: "/bench/singleton"},
		{Name: "CLS", Path: "/bench/cls"},
	}, endpoints)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty list", "endpoints: []\n", "no endpoints"},
		{"missing name", "endpoints:\n  - path: /bench/cls\n", "invalid suite file"},
		{"relative path", "endpoints:\n  - name: CLS\n    path: bench/cls\n", "invalid suite file"},
		{"duplicate name", "endpoints:\n  - {name: A, path: /a}\n  - {name: A, path: /b}\n", "duplicate"},
		{"not yaml", "endpoints: [unclosed\n", "parse suite file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSuite(t, tt.content))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read suite file")
}
