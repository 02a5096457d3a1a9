package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PortalMetrics records counters for the client portal surface.
type PortalMetrics struct {
	eventsIngested   *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	downloads        *prometheus.CounterVec
	exportsAssembled prometheus.Counter
}

// NewPortalMetrics registers the portal metrics on the provided registerer.
func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	if reg == nil {
		return &PortalMetrics{}
	}
	eventsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_events_ingested",
		Help: "Engagement events accepted by the analytics pipeline.",
	}, []string{"event_type"})
	eventsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_events_dropped",
		Help: "Engagement events lost before reaching the event log.",
	}, []string{"event_type"})
	downloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_downloads",
		Help: "Download attempts partitioned by ledger outcome.",
	}, []string{"outcome"})
	exportsAssembled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_exports_assembled",
		Help: "Bulk archive exports started.",
	})
	reg.MustRegister(eventsIngested, eventsDropped, downloads, exportsAssembled)
	return &PortalMetrics{
		eventsIngested:   eventsIngested,
		eventsDropped:    eventsDropped,
		downloads:        downloads,
		exportsAssembled: exportsAssembled,
	}
}

// IncEventIngested increments the ingest counter for the event type.
func (p *PortalMetrics) IncEventIngested(eventType string) {
	if p == nil || p.eventsIngested == nil {
		return
	}
	p.eventsIngested.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncEventDropped increments the drop counter for the event type.
func (p *PortalMetrics) IncEventDropped(eventType string) {
	if p == nil || p.eventsDropped == nil {
		return
	}
	p.eventsDropped.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDownload increments the download counter for the given outcome.
func (p *PortalMetrics) IncDownload(outcome string) {
	if p == nil || p.downloads == nil {
		return
	}
	p.downloads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncExportAssembled increments the bulk export counter.
func (p *PortalMetrics) IncExportAssembled() {
	if p == nil || p.exportsAssembled == nil {
		return
	}
	p.exportsAssembled.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
