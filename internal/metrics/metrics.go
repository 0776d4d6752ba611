// Package metrics collects Prometheus metrics for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector records relay activity. All methods are safe on a nil receiver
// so callers do not have to guard every call site.
type Collector struct {
	connectionsActive prometheus.Gauge
	joins             prometheus.Counter
	joinFailures      *prometheus.CounterVec
	messages          prometheus.Counter
	locationMessages  prometheus.Counter
	droppedMessages   prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_connections_active",
			Help: "Number of currently open WebSocket connections.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_joins_total",
			Help: "Total successful room joins.",
		}),
		joinFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_join_failures_total",
			Help: "Total rejected joins by reason.",
		}, []string{"reason"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_messages_total",
			Help: "Total chat messages broadcast.",
		}),
		locationMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_location_messages_total",
			Help: "Total location messages broadcast.",
		}),
		droppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_dropped_messages_total",
			Help: "Total outbound messages dropped on full client buffers.",
		}),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.joins,
		c.joinFailures,
		c.messages,
		c.locationMessages,
		c.droppedMessages,
	)
	return c
}

// ConnOpened records a new WebSocket connection.
func (c *Collector) ConnOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Inc()
}

// ConnClosed records a closed WebSocket connection.
func (c *Collector) ConnClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

// RecordJoin records a successful join.
func (c *Collector) RecordJoin() {
	if c == nil {
		return
	}
	c.joins.Inc()
}

// RecordJoinFailure records a rejected join with its reason label.
func (c *Collector) RecordJoinFailure(reason string) {
	if c == nil {
		return
	}
	c.joinFailures.WithLabelValues(reason).Inc()
}

// RecordMessage records a broadcast chat message.
func (c *Collector) RecordMessage() {
	if c == nil {
		return
	}
	c.messages.Inc()
}

// RecordLocation records a broadcast location message.
func (c *Collector) RecordLocation() {
	if c == nil {
		return
	}
	c.locationMessages.Inc()
}

// RecordDrop records an outbound message dropped on a full client buffer.
func (c *Collector) RecordDrop() {
	if c == nil {
		return
	}
	c.droppedMessages.Inc()
}
