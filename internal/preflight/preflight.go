// Package preflight verifies the host can run a deployment before compose is invoked.
package preflight

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"golang.org/x/sys/unix"
)

const (
	// DefaultRequiredDisk is the free space needed for pulled images and volumes.
	DefaultRequiredDisk = 2 * 1024 * 1024 * 1024

	// lowMemoryThreshold triggers a warning, not a failure.
	lowMemoryThreshold = 2 * 1024 * 1024 * 1024
)

// HostProbe reads host state.
type HostProbe interface {
	ListeningPorts(ctx context.Context) (map[uint32]bool, error)
	AvailableDisk(path string) (uint64, error)
	AvailableMemory(ctx context.Context) (uint64, error)
}

// Result holds the outcome of the checks. Errors block the deployment,
// warnings are only reported.
type Result struct {
	Passed   bool
	Errors   []string
	Warnings []string
}

// Error joins the blocking problems into one message.
func (r *Result) Error() string {
	return strings.Join(r.Errors, "; ")
}

type Config struct {
	Probe        HostProbe
	CacheDir     string
	RequiredDisk uint64
}

type Checker struct {
	probe        HostProbe
	cacheDir     string
	requiredDisk uint64
}

func New(cfg Config) *Checker {
	probe := cfg.Probe
	if probe == nil {
		probe = &gopsutilProbe{}
	}
	required := cfg.RequiredDisk
	if required == 0 {
		required = DefaultRequiredDisk
	}
	return &Checker{
		probe:        probe,
		cacheDir:     cfg.CacheDir,
		requiredDisk: required,
	}
}

// Check runs all checks for the given host ports.
func (c *Checker) Check(ctx context.Context, ports []uint32) *Result {
	var errs, warnings []string

	if err := c.checkPorts(ctx, ports); err != nil {
		errs = append(errs, err.Error())
	}

	if err := c.checkDisk(); err != nil {
		errs = append(errs, err.Error())
	}

	if available, err := c.probe.AvailableMemory(ctx); err == nil && available < lowMemoryThreshold {
		warnings = append(warnings, fmt.Sprintf("only %d MiB of memory available, containers may fail to start", available/1024/1024))
	}

	return &Result{
		Passed:   len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

func (c *Checker) checkPorts(ctx context.Context, ports []uint32) error {
	if len(ports) == 0 {
		return nil
	}
	listening, err := c.probe.ListeningPorts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list listening ports: %w", err)
	}

	var busy []string
	for _, p := range ports {
		if listening[p] {
			busy = append(busy, fmt.Sprint(p))
		}
	}
	if len(busy) == 0 {
		return nil
	}
	sort.Strings(busy)
	return fmt.Errorf("ports already in use: %s", strings.Join(busy, ", "))
}

// CacheDir is where manifests are downloaded and disk space is measured.
func (c *Checker) CacheDir() string {
	return c.cacheDir
}

func (c *Checker) checkDisk() error {
	if c.cacheDir == "" {
		return nil
	}
	available, err := c.probe.AvailableDisk(c.cacheDir)
	if err != nil {
		return fmt.Errorf("failed to check disk space: %w", err)
	}
	if available < c.requiredDisk {
		return fmt.Errorf("insufficient disk space: need %d bytes, have %d bytes", c.requiredDisk, available)
	}
	return nil
}

type gopsutilProbe struct{}

func (g *gopsutilProbe) ListeningPorts(ctx context.Context) (map[uint32]bool, error) {
	conns, err := net.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}
	ports := make(map[uint32]bool)
	for _, c := range conns {
		if c.Status == "LISTEN" {
			ports[c.Laddr.Port] = true
		}
	}
	return ports, nil
}

func (g *gopsutilProbe) AvailableDisk(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

func (g *gopsutilProbe) AvailableMemory(ctx context.Context) (uint64, error) {
	m, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return m.Available, nil
}
