package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPortalMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPortalMetrics(reg)

	m.IncEventIngested("proposal_viewed")
	m.IncEventIngested("proposal_viewed")
	m.IncEventDropped("media_viewed")
	m.IncDownload("allowed")
	m.IncDownload("denied")
	m.IncExportAssembled()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "engagement_events_ingested", "event_type", "proposal_viewed"); err != nil {
		t.Fatalf("fetch ingested: %v", err)
	} else if got != 2 {
		t.Fatalf("expected ingested=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "engagement_events_dropped", "event_type", "media_viewed"); err != nil {
		t.Fatalf("fetch dropped: %v", err)
	} else if got != 1 {
		t.Fatalf("expected dropped=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "portal_downloads", "outcome", "denied"); err != nil {
		t.Fatalf("fetch downloads: %v", err)
	} else if got != 1 {
		t.Fatalf("expected denied=1, got %f", got)
	}
}

func TestPortalMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewPortalMetrics(nil)
	m.IncEventIngested("proposal_viewed")
	m.IncDownload("allowed")
	m.IncExportAssembled()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
