package container

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config defines how the service under test is brought up
type Config struct {
	Name         string                          // Display name, e.g. "NestJS app"
	ComposeFile  string                          // Path to docker-compose file
	WaitForReady func(ctx context.Context) error // Service-specific readiness check
}

// Runner executes a command and returns its combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands on the host
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Lifecycle starts and stops a docker compose project
type Lifecycle struct {
	cfg Config
	run Runner
	log logrus.FieldLogger
}

func New(cfg Config, run Runner, log logrus.FieldLogger) *Lifecycle {
	if run == nil {
		run = ExecRunner
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Lifecycle{cfg: cfg, run: run, log: log}
}

// Start brings the compose project up and blocks until the readiness check passes
func (l *Lifecycle) Start(ctx context.Context) error {
	l.log.WithField("compose_file", l.cfg.ComposeFile).Infof("starting fresh %s container", l.cfg.Name)

	output, err := l.run(ctx, "docker", "compose", "-f", l.cfg.ComposeFile, "up", "-d")
	if err != nil {
		return fmt.Errorf("failed to start container: %w\noutput: %s", err, strings.TrimSpace(string(output)))
	}

	if l.cfg.WaitForReady != nil {
		l.log.Infof("waiting for %s to initialize", l.cfg.Name)
		if err := l.cfg.WaitForReady(ctx); err != nil {
			return fmt.Errorf("%s failed to start: %w", l.cfg.Name, err)
		}
	}

	l.log.Info("container ready")
	return nil
}

// Stop tears the project down, removing volumes. Failures are logged only since the
// containers might already be gone.
func (l *Lifecycle) Stop(ctx context.Context) {
	l.log.Info("cleaning up container")

	if output, err := l.run(ctx, "docker", "compose", "-f", l.cfg.ComposeFile, "down", "-v"); err != nil {
		l.log.WithError(err).WithField("output", strings.TrimSpace(string(output))).Warn("container cleanup failed")
		return
	}

	l.log.Info("container stopped and removed")
}
