package resource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/sys/unix"

	"mockingbird/internal/config"
	"mockingbird/internal/logging"
)

const gpuEnvOverride = "MOCKINGBIRD_GPU"

// GPU describes one detected compute accelerator.
type GPU struct {
	Device string `json:"device"`
	Kind   string `json:"kind"`
}

// Hardware is a point-in-time snapshot of the compute resources the guard
// bases its decisions on.
type Hardware struct {
	GPUs        []GPU
	TotalMemory uint64
	FreeMemory  uint64
	CPUCount    int
	ProbedAt    time.Time
}

// HasGPU reports whether any GPU-class accelerator was detected.
func (h Hardware) HasGPU() bool {
	return len(h.GPUs) > 0
}

// TotalMemoryGiB returns total system memory in GiB.
func (h Hardware) TotalMemoryGiB() float64 {
	return float64(h.TotalMemory) / (1 << 30)
}

// FreeMemoryGiB returns currently free system memory in GiB.
func (h Hardware) FreeMemoryGiB() float64 {
	return float64(h.FreeMemory) / (1 << 30)
}

// Device returns the compute device the hardware supports: cuda when an
// accelerator is present, otherwise cpu.
func (h Hardware) Device() string {
	if h.HasGPU() {
		return "cuda"
	}
	return "cpu"
}

// Prober detects hardware capabilities once per daemon start. Detection
// sources can be overridden through configuration (for containers, where
// sysfs lies about the host) and through options (for tests).
type Prober struct {
	cfg    *config.Config
	logger *slog.Logger
	scan   func(ctx context.Context) ([]GPU, error)
	memory func() (total, free uint64, err error)
}

// ProberOption adjusts how a Prober gathers hardware facts.
type ProberOption func(*Prober)

// WithGPUScanner replaces the udev device scan.
func WithGPUScanner(scan func(ctx context.Context) ([]GPU, error)) ProberOption {
	return func(p *Prober) { p.scan = scan }
}

// WithMemoryReader replaces the sysinfo memory read.
func WithMemoryReader(read func() (total, free uint64, err error)) ProberOption {
	return func(p *Prober) { p.memory = read }
}

// NewProber builds a Prober bound to the given configuration.
func NewProber(cfg *config.Config, logger *slog.Logger, opts ...ProberOption) *Prober {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Prober{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "resource-probe"),
		scan:   scanUdevGPUs,
		memory: readSysinfoMemory,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe gathers the hardware snapshot. Detection failures degrade to the
// conservative answer (no GPU, zero memory headroom) rather than erroring,
// since a daemon on exotic hardware must still be able to run CPU-only.
func (p *Prober) Probe(ctx context.Context) Hardware {
	hw := Hardware{
		CPUCount: runtime.NumCPU(),
		ProbedAt: time.Now().UTC(),
	}

	gpus, source, err := p.detectGPUs(ctx)
	if err != nil {
		p.logger.Warn("gpu detection failed; assuming cpu-only host",
			logging.Error(err),
			logging.String("source", source),
		)
	}
	hw.GPUs = gpus

	if override := p.memoryOverrideGiB(); override > 0 {
		hw.TotalMemory = uint64(override) << 30
		hw.FreeMemory = hw.TotalMemory
	} else if total, free, err := p.memory(); err != nil {
		p.logger.Warn("memory detection failed", logging.Error(err))
	} else {
		hw.TotalMemory = total
		hw.FreeMemory = free
	}

	p.logger.Info("hardware probed",
		logging.Int("gpus", len(hw.GPUs)),
		logging.String("gpu_source", source),
		logging.String("device", hw.Device()),
		logging.Float64("total_memory_gib", hw.TotalMemoryGiB()),
		logging.Int("cpu_count", hw.CPUCount),
	)
	return hw
}

// detectGPUs resolves the accelerator list. Precedence: MOCKINGBIRD_GPU env
// var, then resources.gpu_override from config, then the udev crawl.
func (p *Prober) detectGPUs(ctx context.Context) ([]GPU, string, error) {
	if value, ok := os.LookupEnv(gpuEnvOverride); ok {
		return parseGPUOverride(value), "env", nil
	}
	if p.cfg != nil {
		if value := strings.TrimSpace(p.cfg.Resources.GPUOverride); value != "" {
			return parseGPUOverride(value), "config", nil
		}
	}
	gpus, err := p.scan(ctx)
	return gpus, "udev", err
}

// parseGPUOverride interprets an override value. "none", "off", and "0"
// force CPU-only operation; anything else names a single accelerator.
func parseGPUOverride(value string) []GPU {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "", "none", "off", "0":
		return nil
	}
	return []GPU{{Device: trimmed, Kind: "override"}}
}

func (p *Prober) memoryOverrideGiB() int {
	if p.cfg == nil {
		return 0
	}
	return p.cfg.Resources.MemoryOverrideGiB
}

// scanUdevGPUs walks existing udev devices looking for compute-capable
// accelerators: drm render nodes and dedicated accel devices. Display-only
// connectors and card minors are ignored so a headless iGPU host is not
// mistaken for a CUDA-capable one twice over.
func scanUdevGPUs(ctx context.Context) ([]GPU, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error)
	quit := crawler.ExistingDevices(queue, errs, gpuMatcher())

	var gpus []GPU
	seen := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			close(quit)
			return gpus, ctx.Err()
		case device, more := <-queue:
			if !more {
				return gpus, nil
			}
			gpu, ok := gpuFromDevice(device)
			if !ok {
				continue
			}
			if _, dup := seen[gpu.Device]; dup {
				continue
			}
			seen[gpu.Device] = struct{}{}
			gpus = append(gpus, gpu)
		case err := <-errs:
			close(quit)
			return gpus, fmt.Errorf("udev crawl: %w", err)
		}
	}
}

// gpuMatcher matches drm render nodes (DEVNAME dri/renderD*) and any device
// in the accel subsystem.
func gpuMatcher() netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{
			"SUBSYSTEM": "drm",
			"DEVNAME":   `dri/renderD\d+`,
		},
	})
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{
			"SUBSYSTEM": "accel",
		},
	})
	return rules
}

func gpuFromDevice(device crawler.Device) (GPU, bool) {
	devname := device.Env["DEVNAME"]
	if devname == "" {
		return GPU{}, false
	}
	kind := device.Env["SUBSYSTEM"]
	if kind == "" {
		kind = path.Base(path.Dir(device.KObj))
	}
	return GPU{Device: "/dev/" + devname, Kind: kind}, true
}

func readSysinfoMemory() (uint64, uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	return uint64(info.Totalram) * unit, uint64(info.Freeram) * unit, nil
}
