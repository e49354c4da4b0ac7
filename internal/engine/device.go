package engine

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"captiond/internal/config"
)

// Accelerator names reported by SelectDevice.
const (
	DeviceCUDA  config.Device = "cuda"
	DeviceMetal config.Device = "metal"
)

// Probe abstracts the host inspection used by SelectDevice.
type Probe struct {
	LookPath func(file string) (string, error)
	Getenv   func(key string) string
	Run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	GOOS     string
	GOARCH   string
}

// HostProbe inspects the real machine.
func HostProbe() Probe {
	return Probe{
		LookPath: exec.LookPath,
		Getenv:   os.Getenv,
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		GOOS:   runtime.GOOS,
		GOARCH: runtime.GOARCH,
	}
}

// SelectDevice resolves the configured preference into a concrete device.
// Any explicit value is returned as is; "auto" (or empty) probes for an
// accelerator and falls back to cpu.
func SelectDevice(pref config.Device, p Probe) config.Device {
	pref = config.Device(strings.ToLower(strings.TrimSpace(string(pref))))
	if pref != "" && pref != config.DeviceAuto {
		return pref
	}
	if hasCUDA(p) {
		return DeviceCUDA
	}
	if p.GOOS == "darwin" && p.GOARCH == "arm64" {
		return DeviceMetal
	}
	return config.DeviceCPU
}

// IsAccelerator reports whether d names something other than the CPU.
func IsAccelerator(d config.Device) bool {
	return d != "" && d != config.DeviceCPU && d != config.DeviceAuto
}

// GPUIndex returns n for a "cuda:<n>" device.
func GPUIndex(d config.Device) (int, bool) {
	v, ok := strings.CutPrefix(strings.ToLower(string(d)), string(DeviceCUDA)+":")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func hasCUDA(p Probe) bool {
	if p.Getenv != nil {
		if v := strings.TrimSpace(p.Getenv("CUDA_VISIBLE_DEVICES")); v != "" && v != "-1" && v != "none" {
			return true
		}
	}
	if p.LookPath == nil || p.Run == nil {
		return false
	}
	bin, err := p.LookPath("nvidia-smi")
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := p.Run(ctx, bin, "-L")
	return err == nil && strings.Contains(string(out), "GPU")
}
