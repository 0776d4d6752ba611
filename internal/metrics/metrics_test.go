package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()
		if len(m) == 0 {
			t.Fatalf("metric %s has no samples", name)
		}
		if g := m[0].GetGauge(); g != nil {
			return g.GetValue()
		}
		return m[0].GetCounter().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestConnectionGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ConnOpened()
	c.ConnOpened()
	c.ConnClosed()

	if got := gaugeValue(t, reg, "chatrelay_connections_active"); got != 1 {
		t.Errorf("expected 1 active connection, got %v", got)
	}
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordJoin()
	c.RecordMessage()
	c.RecordMessage()
	c.RecordLocation()
	c.RecordDrop()

	if got := gaugeValue(t, reg, "chatrelay_joins_total"); got != 1 {
		t.Errorf("expected 1 join, got %v", got)
	}
	if got := gaugeValue(t, reg, "chatrelay_messages_total"); got != 2 {
		t.Errorf("expected 2 messages, got %v", got)
	}
	if got := gaugeValue(t, reg, "chatrelay_location_messages_total"); got != 1 {
		t.Errorf("expected 1 location message, got %v", got)
	}
	if got := gaugeValue(t, reg, "chatrelay_dropped_messages_total"); got != 1 {
		t.Errorf("expected 1 drop, got %v", got)
	}
}

func TestJoinFailureReasons(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordJoinFailure("username_taken")
	c.RecordJoinFailure("username_taken")
	c.RecordJoinFailure("validation")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "chatrelay_join_failures_total" {
			continue
		}
		if len(mf.GetMetric()) != 2 {
			t.Errorf("expected 2 labelled series, got %d", len(mf.GetMetric()))
		}
		return
	}
	t.Fatal("chatrelay_join_failures_total not found")
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ConnOpened()
	c.ConnClosed()
	c.RecordJoin()
	c.RecordJoinFailure("validation")
	c.RecordMessage()
	c.RecordLocation()
	c.RecordDrop()
}
