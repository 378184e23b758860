package cgroup

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
)

// DefaultRoot is where the cgroup filesystem is mounted
const DefaultRoot = "/sys/fs/cgroup"

// NoLimit is returned by DetectCPULimit when no CPU quota is enforced
const NoLimit = 0.0

// USER_HZ for cpuacct.stat tick counters
const clockTicksPerSecond = 100

// Version identifies the cgroup filesystem layout
type Version int

const (
	VersionUnknown Version = iota
	V1
	V2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

// Candidate files, v2 first, then the v1 layouts
var (
	cpuMaxPaths     = []string{"cpu.max"}
	cpuQuotaPaths   = []string{"cpu/cpu.cfs_quota_us", "cpu,cpuacct/cpu.cfs_quota_us", "cpuacct,cpu/cpu.cfs_quota_us"}
	cpuPeriodPaths  = []string{"cpu/cpu.cfs_period_us", "cpu,cpuacct/cpu.cfs_period_us", "cpuacct,cpu/cpu.cfs_period_us"}
	cpuStatPaths    = []string{"cpu.stat"}
	cpuacctUsage    = []string{"cpuacct/cpuacct.usage", "cpu,cpuacct/cpuacct.usage", "cpuacct,cpu/cpuacct.usage"}
	cpuacctStat     = []string{"cpuacct/cpuacct.stat", "cpu,cpuacct/cpuacct.stat", "cpuacct,cpu/cpuacct.stat"}
	memCurrentPaths = []string{"memory.current", "memory/memory.usage_in_bytes"}
	memPeakPaths    = []string{"memory.peak", "memory/memory.max_usage_in_bytes"}
	v2MarkerPath    = "cgroup.controllers"
	v1MemoryDirPath = "memory"
)

// Probe reads CPU and memory counters from cgroup pseudo-files.
// Every reader is best-effort: a missing or unparseable file yields no data, never an error.
type Probe struct {
	root string
	log  logrus.FieldLogger
}

// New creates a probe rooted at root (DefaultRoot when empty)
func New(root string, log logrus.FieldLogger) *Probe {
	if root == "" {
		root = DefaultRoot
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Probe{root: root, log: log}
}

// DetectVersion reports which cgroup layout is mounted at the probe root
func (p *Probe) DetectVersion() Version {
	if _, err := os.Stat(filepath.Join(p.root, v2MarkerPath)); err == nil {
		return V2
	}
	if info, err := os.Stat(filepath.Join(p.root, v1MemoryDirPath)); err == nil && info.IsDir() {
		return V1
	}
	return VersionUnknown
}

// DetectCPULimit returns the number of cores granted by the CPU quota.
// It returns NoLimit when the quota is unlimited and ok=false when no quota file is readable.
func (p *Probe) DetectCPULimit() (cores float64, ok bool) {
	if content, path, found := p.readFirst(cpuMaxPaths); found {
		fields := strings.Fields(content)
		if len(fields) >= 1 && fields[0] == "max" {
			return NoLimit, true
		}
		if len(fields) >= 2 {
			quota, qerr := strconv.ParseInt(fields[0], 10, 64)
			period, perr := strconv.ParseInt(fields[1], 10, 64)
			if qerr == nil && perr == nil && quota >= 0 && period > 0 {
				return float64(quota) / float64(period), true
			}
		}
		p.log.WithField("path", path).Debug("unparseable cpu.max")
	}

	quota, quotaOK := p.readInt(cpuQuotaPaths)
	if !quotaOK {
		p.log.Debug("no cpu quota available")
		return 0, false
	}
	if quota < 0 {
		return NoLimit, true
	}
	period, periodOK := p.readInt(cpuPeriodPaths)
	if !periodOK || period <= 0 {
		p.log.Debug("no cpu period available")
		return 0, false
	}
	return float64(quota) / float64(period), true
}

// ReadCPUStat snapshots cumulative CPU time, or returns nil when no counter is readable
func (p *Probe) ReadCPUStat() *benchmark.CPUSnapshot {
	if content, _, found := p.readFirst(cpuStatPaths); found {
		values := parseKeyValues(content)
		snapshot := &benchmark.CPUSnapshot{
			UsageMicros:  values["usage_usec"],
			UserMicros:   values["user_usec"],
			SystemMicros: values["system_usec"],
		}
		if snapshot.UsageMicros != nil || snapshot.UserMicros != nil || snapshot.SystemMicros != nil {
			return snapshot
		}
	}

	snapshot := &benchmark.CPUSnapshot{}
	if nanos, ok := p.readUint(cpuacctUsage); ok {
		snapshot.UsageMicros = benchmark.Uint(nanos / 1000)
	}
	if content, _, found := p.readFirst(cpuacctStat); found {
		values := parseKeyValues(content)
		if user := values["user"]; user != nil {
			snapshot.UserMicros = benchmark.Uint(*user * 1_000_000 / clockTicksPerSecond)
		}
		if system := values["system"]; system != nil {
			snapshot.SystemMicros = benchmark.Uint(*system * 1_000_000 / clockTicksPerSecond)
		}
	}

	if snapshot.UsageMicros == nil && snapshot.UserMicros == nil && snapshot.SystemMicros == nil {
		p.log.Debug("no cpu stat available")
		return nil
	}
	return snapshot
}

// ReadMemoryCurrent returns current cgroup memory usage in bytes, or nil
func (p *Probe) ReadMemoryCurrent() *uint64 {
	if v, ok := p.readUint(memCurrentPaths); ok {
		return &v
	}
	p.log.Debug("no memory usage counter available")
	return nil
}

// ReadMemoryPeak returns the kernel-reported peak memory usage in bytes, or nil
func (p *Probe) ReadMemoryPeak() *uint64 {
	if v, ok := p.readUint(memPeakPaths); ok {
		return &v
	}
	p.log.Debug("no memory peak counter available")
	return nil
}

// readFirst returns the content of the first candidate file that can be read
func (p *Probe) readFirst(candidates []string) (content, path string, found bool) {
	for _, candidate := range candidates {
		path = filepath.Join(p.root, candidate)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return string(data), path, true
	}
	return "", "", false
}

// readUint returns the first candidate whose first token parses as an unsigned integer
func (p *Probe) readUint(candidates []string) (uint64, bool) {
	for _, candidate := range candidates {
		data, err := os.ReadFile(filepath.Join(p.root, candidate))
		if err != nil {
			continue
		}
		if v, ok := parseFirstUint(data); ok {
			return v, true
		}
	}
	return 0, false
}

// readInt is readUint for counters that may be negative (cfs_quota_us = -1)
func (p *Probe) readInt(candidates []string) (int64, bool) {
	for _, candidate := range candidates {
		data, err := os.ReadFile(filepath.Join(p.root, candidate))
		if err != nil {
			continue
		}
		fields := strings.Fields(string(data))
		if len(fields) == 0 {
			continue
		}
		if v, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func parseFirstUint(data []byte) (uint64, bool) {
	fields := bytes.Fields(data)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(string(fields[0]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseKeyValues parses "key value" lines as found in cpu.stat and cpuacct.stat
func parseKeyValues(content string) map[string]*uint64 {
	values := make(map[string]*uint64)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		values[fields[0]] = &value
	}
	return values
}
