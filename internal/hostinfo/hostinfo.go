// Package hostinfo publishes one-shot host facts at startup so the state
// store can identify which device a stream of readings belongs to.
package hostinfo

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/boardscout/boardscout/pkg/metric"
)

// Readings gathers host identity facts. Failures are soft: whatever gopsutil
// cannot determine on this platform is simply omitted.
func Readings(ctx context.Context) []metric.Reading {
	now := time.Now().UTC()
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil
	}

	readings := []metric.Reading{
		{Name: "agent.host.name", Value: info.Hostname, Timestamp: now, Quality: metric.QualityGood},
		{Name: "agent.host.os", Value: info.OS, Timestamp: now, Quality: metric.QualityGood},
		{Name: "agent.host.platform", Value: info.Platform, Timestamp: now, Quality: metric.QualityGood},
		{Name: "agent.host.kernel", Value: info.KernelVersion, Timestamp: now, Quality: metric.QualityGood},
		{Name: "agent.host.arch", Value: info.KernelArch, Timestamp: now, Quality: metric.QualityGood},
	}
	if info.BootTime > 0 {
		boot := time.Unix(int64(info.BootTime), 0).UTC()
		readings = append(readings, metric.Reading{
			Name:      "agent.host.boot_time",
			Value:     boot.Format(time.RFC3339),
			Timestamp: now,
			Quality:   metric.QualityGood,
		})
	}
	return readings
}

// Publish delivers the host facts through the given publisher.
func Publish(ctx context.Context, pub metric.Publisher) error {
	for _, r := range Readings(ctx) {
		if err := pub.Publish(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
