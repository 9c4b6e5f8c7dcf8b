// Package probe implements the Probe Loop (spec §4.3): a single background
// task, ticking at a configurable interval, that updates every stream's
// health. The ticker+stop-channel shape is grounded in the teacher's
// api_sidecar/internal/handlers/cleanup.go CleanupMonitor.
package probe

import (
	"math/rand"
	"time"

	"github.com/nearhome/streamgate/internal/logging"
	"github.com/nearhome/streamgate/internal/registry"
)

// Sample is one synthesized probe outcome.
type Sample struct {
	Connectivity  string
	LatencyMs     *float64
	PacketLossPct *float64
	JitterMs      *float64
	Error         string
}

// Distribution produces a probe Sample for a ready stream. It is pluggable
// so a real prober can replace the placeholder distribution without
// touching the loop, per spec §9.
type Distribution func() Sample

// DefaultDistribution is the spec's fixed placeholder distribution: 78%
// online, 15% degraded, 7% offline, with bounded numeric ranges per tier.
func DefaultDistribution() Sample {
	roll := rand.Float64()
	switch {
	case roll < 0.78:
		return Sample{
			Connectivity:  registry.ConnectivityOnline,
			LatencyMs:     ptr(70 + rand.Float64()*60),
			PacketLossPct: ptr(rand.Float64() * 0.3),
			JitterMs:      ptr(3 + rand.Float64()*9),
		}
	case roll < 0.93:
		return Sample{
			Connectivity:  registry.ConnectivityDegraded,
			LatencyMs:     ptr(160 + rand.Float64()*160),
			PacketLossPct: ptr(1 + rand.Float64()*4),
			JitterMs:      ptr(15 + rand.Float64()*30),
		}
	default:
		return Sample{
			Connectivity: registry.ConnectivityOffline,
			Error:        "stream unreachable",
		}
	}
}

func ptr(v float64) *float64 { return &v }

// Loop is the Probe Loop background task.
type Loop struct {
	registry     *registry.Registry
	interval     time.Duration
	distribution Distribution
	logger       logging.Logger
	now          func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Loop. distribution may be nil to use DefaultDistribution.
func New(reg *registry.Registry, interval time.Duration, distribution Distribution, logger logging.Logger) *Loop {
	if distribution == nil {
		distribution = DefaultDistribution
	}
	return &Loop{
		registry:     reg,
		interval:     interval,
		distribution: distribution,
		logger:       logger,
		now:          time.Now,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start runs the loop in a background goroutine until Stop is called.
func (l *Loop) Start() {
	go func() {
		defer close(l.doneCh)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.tick()
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

// tick applies one probe transform to every entry. An error or panic on a
// single entry must never interrupt the global cycle (spec §4.3/§5): each
// entry is probed under its own recover, so a panic in one entry's
// transform (for example from a custom Distribution) is logged when a
// logger is set and the remaining entries are still probed.
func (l *Loop) tick() {
	for _, entry := range l.registry.Iterate() {
		entry := entry
		func() {
			defer func() {
				if r := recover(); r != nil && l.logger != nil {
					l.logger.WithFields(logging.Fields{
						"tenant_id": entry.TenantID,
						"camera_id": entry.CameraID,
						"panic":     r,
					}).Error("probe tick panicked for entry")
				}
			}()
			l.probeOne(entry.TenantID, entry.CameraID)
		}()
	}
}

func (l *Loop) probeOne(tenantID, cameraID string) {
	l.registry.UpdateProbe(tenantID, cameraID, func(e *registry.Entry) {
		now := l.now()
		switch e.Status {
		case registry.StatusStopped:
			e.Health = registry.Health{
				Connectivity: registry.ConnectivityOffline,
				Error:        "deprovisioned",
				CheckedAt:    now,
			}
		case registry.StatusProvisioning:
			e.Status = registry.StatusReady
			e.Health = registry.Health{Connectivity: registry.ConnectivityOnline, CheckedAt: now}
		case registry.StatusReady:
			sample := l.distribution()
			e.Health = registry.Health{
				Connectivity:  sample.Connectivity,
				LatencyMs:     sample.LatencyMs,
				PacketLossPct: sample.PacketLossPct,
				JitterMs:      sample.JitterMs,
				Error:         sample.Error,
				CheckedAt:     now,
			}
		}
		e.UpdatedAt = now
	})
}
