package testutil

import (
	"time"

	"github.com/boardscout/boardscout/internal/registry"
)

// Raw OS output samples used across extractor, pipeline, and scheduler
// tests.
const (
	ProcLoadavg = "0.52 0.58 0.59 1/189 31972\n"

	ProcUptime = "18294.71 70783.21\n"

	ThermalZoneTemp = "45000\n"

	CPUInfoFragment = "processor\t: 0\n" +
		"model name\t: ARMv7 Processor rev 4 (v7l)\n" +
		"cpu MHz\t\t: 1200.000\n" +
		"cache size\t: 512 KB\n"

	MemInfoFragment = "MemTotal:        1917292 kB\n" +
		"MemFree:          268664 kB\n" +
		"MemAvailable:     958646 kB\n" +
		"Buffers:          103712 kB\n"

	ProcNetDev = "Inter-|   Receive                                                |  Transmit\n" +
		" face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed\n" +
		"    lo:  818112    8201    0    0    0     0          0         0  818112    8201    0    0    0     0       0          0\n" +
		"  eth0: 1638400   12024    0    0    0     0          0         0  409600    8012    0    0    0     0       0          0\n" +
		" wlan0:  204800    1501    0    0    0     0          0         0  102400     750    0    0    0     0       0          0\n"
)

// Catalog builds a validated single-module registry for tests.
func Catalog(t interface{ Fatalf(string, ...any) }, yaml string) *registry.Registry {
	reg, err := registry.Load([]byte(yaml), registry.Options{DefaultInterval: 30 * time.Second})
	if err != nil {
		t.Fatalf("load test catalog: %v", err)
	}
	return reg
}
