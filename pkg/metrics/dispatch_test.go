package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDispatchMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)
	consumer := "chat-notifier"

	m.ObserveDuration(consumer, 120*time.Millisecond)
	m.IncEvent(consumer, OutcomeHandled)
	m.IncEvent(consumer, OutcomeSkipped)
	m.AddNotifications(consumer, 2)
	m.AddPushes(consumer, 3)
	m.AddPushes(consumer, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := counterValue(mfs, "events_total", map[string]string{"consumer": consumer, "outcome": OutcomeHandled}); err != nil {
		t.Fatalf("fetch events: %v", err)
	} else if got != 1 {
		t.Fatalf("expected handled=1, got %f", got)
	}

	if got, err := counterValue(mfs, "notifications_written_total", map[string]string{"consumer": consumer}); err != nil {
		t.Fatalf("fetch notifications: %v", err)
	} else if got != 2 {
		t.Fatalf("expected notifications=2, got %f", got)
	}

	if got, err := counterValue(mfs, "pushes_sent_total", map[string]string{"consumer": consumer}); err != nil {
		t.Fatalf("fetch pushes: %v", err)
	} else if got != 3 {
		t.Fatalf("expected pushes=3, got %f", got)
	}

	if got, err := histogramSum(mfs, "event_handle_duration_seconds", map[string]string{"consumer": consumer}); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestDispatchMetricsNilReceiverIsSafe(t *testing.T) {
	var m *DispatchMetrics
	m.IncEvent("x", OutcomeFailed)
	m.AddPushes("x", 1)
	m.ObserveDuration("x", time.Second)
}

func counterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func histogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	for name, value := range labels {
		found := false
		for _, pair := range pairs {
			if pair.GetName() == name && pair.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
