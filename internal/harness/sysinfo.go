package harness

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// systemProbe samples process and platform telemetry attached to each
// TestResult. Swappable in tests.
type systemProbe func() (peakMemoryBytes uint64, thermalState string)

// defaultProbe reads peak RSS and thermal state from the Linux proc/sysfs
// interfaces, falling back to runtime statistics and "nominal" off-platform.
// Telemetry is best effort and never fails a test.
func defaultProbe() (uint64, string) {
	return peakMemoryBytes(), thermalState("/sys/class/thermal")
}

// peakMemoryBytes returns the process high-water RSS from /proc/self/status
// (VmHWM), or the Go runtime's total obtained memory when unavailable.
func peakMemoryBytes() uint64 {
	if data, err := os.ReadFile("/proc/self/status"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if !strings.HasPrefix(line, "VmHWM:") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if kb, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
					return kb * 1024
				}
			}
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys
}

// thermalState classifies the hottest thermal zone under root into the
// coarse states nominal/fair/serious/critical. Returns "nominal" when no
// zone is readable.
func thermalState(root string) string {
	zones, err := filepath.Glob(filepath.Join(root, "thermal_zone*", "temp"))
	if err != nil || len(zones) == 0 {
		return "nominal"
	}
	maxMilliC := 0
	found := false
	for _, zone := range zones {
		data, err := os.ReadFile(zone)
		if err != nil {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			continue
		}
		found = true
		if v > maxMilliC {
			maxMilliC = v
		}
	}
	if !found {
		return "nominal"
	}
	switch {
	case maxMilliC >= 90000:
		return "critical"
	case maxMilliC >= 80000:
		return "serious"
	case maxMilliC >= 70000:
		return "fair"
	default:
		return "nominal"
	}
}
