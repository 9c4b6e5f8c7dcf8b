package main

import (
	"time"

	"github.com/nearhome/streamgate/internal/obs"
	"github.com/nearhome/streamgate/internal/registry"
	"github.com/nearhome/streamgate/internal/session"
)

// gaugeRefresher periodically recomputes the stream/session gauge vectors
// from the registry and session manager, since Prometheus gauges reflect a
// point-in-time snapshot rather than being incremented inline on every
// mutation.
type gaugeRefresher struct {
	registry *registry.Registry
	sessions *session.Manager
	metrics  *obs.Metrics

	stopCh chan struct{}
	doneCh chan struct{}
}

func newGaugeRefresher(reg *registry.Registry, sessions *session.Manager, metrics *obs.Metrics) *gaugeRefresher {
	return &gaugeRefresher{
		registry: reg,
		sessions: sessions,
		metrics:  metrics,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (g *gaugeRefresher) start() {
	go func() {
		defer close(g.doneCh)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		g.refresh()
		for {
			select {
			case <-g.stopCh:
				return
			case <-ticker.C:
				g.refresh()
			}
		}
	}()
}

func (g *gaugeRefresher) stop() {
	close(g.stopCh)
	<-g.doneCh
}

func (g *gaugeRefresher) refresh() {
	for status, count := range g.registry.Counts() {
		g.metrics.StreamsTotal.WithLabelValues(status).Set(float64(count))
	}
	for connectivity, count := range g.registry.ConnectivityCounts() {
		g.metrics.StreamConnectivityTotal.WithLabelValues(connectivity).Set(float64(count))
	}
	for status, count := range g.sessions.Counts() {
		g.metrics.StreamSessionsTotal.WithLabelValues(status).Set(float64(count))
	}
}
