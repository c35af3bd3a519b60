package resource_test

import (
	"context"
	"errors"
	"testing"

	"mockingbird/internal/resource"
	"mockingbird/internal/testsupport"
)

func staticMemory(totalGiB, freeGiB uint64) func() (uint64, uint64, error) {
	return func() (uint64, uint64, error) {
		return totalGiB << 30, freeGiB << 30, nil
	}
}

func TestProbeUsesInjectedSources(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	prober := resource.NewProber(cfg, nil,
		resource.WithGPUScanner(func(context.Context) ([]resource.GPU, error) {
			return []resource.GPU{{Device: "/dev/dri/renderD128", Kind: "drm"}}, nil
		}),
		resource.WithMemoryReader(staticMemory(32, 20)),
	)

	hw := prober.Probe(context.Background())
	if !hw.HasGPU() {
		t.Fatal("expected GPU from injected scanner")
	}
	if hw.Device() != "cuda" {
		t.Fatalf("Device() = %q, want cuda", hw.Device())
	}
	if got := hw.TotalMemoryGiB(); got != 32 {
		t.Fatalf("TotalMemoryGiB() = %v, want 32", got)
	}
	if got := hw.FreeMemoryGiB(); got != 20 {
		t.Fatalf("FreeMemoryGiB() = %v, want 20", got)
	}
	if hw.CPUCount < 1 {
		t.Fatalf("CPUCount = %d, want at least 1", hw.CPUCount)
	}
	if hw.ProbedAt.IsZero() {
		t.Fatal("ProbedAt not set")
	}
}

func TestProbeEnvOverrideWinsOverScan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	t.Setenv("MOCKINGBIRD_GPU", "/dev/dri/renderD129")

	prober := resource.NewProber(cfg, nil,
		resource.WithGPUScanner(func(context.Context) ([]resource.GPU, error) {
			t.Fatal("scanner must not run while the env override is set")
			return nil, nil
		}),
		resource.WithMemoryReader(staticMemory(8, 4)),
	)

	hw := prober.Probe(context.Background())
	if len(hw.GPUs) != 1 {
		t.Fatalf("expected 1 GPU, got %d", len(hw.GPUs))
	}
	if hw.GPUs[0].Device != "/dev/dri/renderD129" {
		t.Fatalf("unexpected device %q", hw.GPUs[0].Device)
	}
	if hw.GPUs[0].Kind != "override" {
		t.Fatalf("unexpected kind %q", hw.GPUs[0].Kind)
	}
}

func TestProbeEnvOverrideNoneForcesCPU(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	t.Setenv("MOCKINGBIRD_GPU", "none")

	prober := resource.NewProber(cfg, nil,
		resource.WithGPUScanner(func(context.Context) ([]resource.GPU, error) {
			t.Fatal("scanner must not run while the env override is set")
			return nil, nil
		}),
		resource.WithMemoryReader(staticMemory(8, 4)),
	)

	hw := prober.Probe(context.Background())
	if hw.HasGPU() {
		t.Fatal("override none must force CPU-only")
	}
	if hw.Device() != "cpu" {
		t.Fatalf("Device() = %q, want cpu", hw.Device())
	}
}

func TestProbeConfigOverrides(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Resources.GPUOverride = "fake-accel"
	cfg.Resources.MemoryOverrideGiB = 6

	prober := resource.NewProber(cfg, nil,
		resource.WithGPUScanner(func(context.Context) ([]resource.GPU, error) {
			t.Fatal("scanner must not run while the config override is set")
			return nil, nil
		}),
		resource.WithMemoryReader(func() (uint64, uint64, error) {
			t.Fatal("memory reader must not run while the memory override is set")
			return 0, 0, nil
		}),
	)

	hw := prober.Probe(context.Background())
	if len(hw.GPUs) != 1 || hw.GPUs[0].Device != "fake-accel" {
		t.Fatalf("unexpected GPUs %+v", hw.GPUs)
	}
	if got := hw.TotalMemoryGiB(); got != 6 {
		t.Fatalf("TotalMemoryGiB() = %v, want 6", got)
	}
}

func TestProbeScanFailureDegradesToCPU(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	prober := resource.NewProber(cfg, nil,
		resource.WithGPUScanner(func(context.Context) ([]resource.GPU, error) {
			return nil, errors.New("sysfs unreadable")
		}),
		resource.WithMemoryReader(staticMemory(16, 8)),
	)

	hw := prober.Probe(context.Background())
	if hw.HasGPU() {
		t.Fatal("scan failure must not invent a GPU")
	}
	if hw.Device() != "cpu" {
		t.Fatalf("Device() = %q, want cpu", hw.Device())
	}
	if got := hw.TotalMemoryGiB(); got != 16 {
		t.Fatalf("memory must still be probed after scan failure, got %v GiB", got)
	}
}
