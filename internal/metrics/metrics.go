// Package metrics defines all Prometheus metrics for pxe-dhcpd.
// All metrics use the "pxe_dhcpd_" prefix.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pxe_dhcpd"

// --- DHCP Packet Metrics ---

var (
	// PacketsReceived counts DHCP packets received by message type.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_received_total",
		Help:      "Total DHCP packets received, by message type.",
	}, []string{"msg_type"})

	// PacketsSent counts DHCP packets sent by message type.
	PacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_sent_total",
		Help:      "Total DHCP packets sent, by message type.",
	}, []string{"msg_type"})

	// PacketErrors counts packet processing errors.
	PacketErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packet_errors_total",
		Help:      "Total packet processing errors, by type (read, decode, handle, encode, send).",
	}, []string{"type"})

	// PacketsIgnored counts datagrams that were read but not answered.
	PacketsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_ignored_total",
		Help:      "Total datagrams dropped without a reply, by reason.",
	}, []string{"reason"})

	// PacketProcessingDuration tracks DHCP packet handling latency.
	PacketProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "packet_processing_duration_seconds",
		Help:      "DHCP packet processing duration in seconds.",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"msg_type"})

	// RateLimited counts packets dropped by the rate limiter.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total packets dropped by the rate limiter, by scope (global, mac).",
	}, []string{"scope"})
)

// --- Lease Metrics ---

var (
	// LeaseOperations counts lease state transitions.
	LeaseOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lease_operations_total",
		Help:      "Total lease operations, by type (offer, ack).",
	}, []string{"operation"})

	// PXEClients counts PXE requests by client architecture.
	PXEClients = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pxe_requests_total",
		Help:      "Total requests carrying PXE options, by client architecture.",
	}, []string{"arch"})
)

// --- Pool Metrics ---

var (
	// PoolSize is the total IPs in the pool.
	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_size",
		Help:      "Total number of IPs in the pool.",
	})

	// PoolAllocated is the allocated IPs in the pool.
	PoolAllocated = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_allocated",
		Help:      "Number of allocated IPs in the pool.",
	})

	// PoolUtilization is the utilization percentage of the pool.
	PoolUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_utilization_percent",
		Help:      "Pool utilization as a percentage.",
	})

	// PoolExhausted counts pool exhaustion events.
	PoolExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_exhausted_total",
		Help:      "Total times the pool was exhausted during allocation.",
	})
)

// --- Event and Audit Metrics ---

var (
	// EventsPublished counts events published on the bus, by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total lease events published, by type.",
	}, []string{"type"})

	// EventBufferDrops counts events dropped because the bus buffer was full.
	EventBufferDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_buffer_drops_total",
		Help:      "Total events dropped due to a full buffer.",
	})

	// AuditRecords counts records written to the audit journal.
	AuditRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_records_total",
		Help:      "Total records written to the audit journal.",
	})

	// AuditErrors counts failed audit journal writes.
	AuditErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_errors_total",
		Help:      "Total failed audit journal writes.",
	})
)

// --- API Metrics ---

var (
	// APIRequests counts HTTP API requests by method, path, and status.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Total HTTP API requests.",
	}, []string{"method", "path", "status"})

	// APIRequestDuration tracks API request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP API request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// --- Server Info ---

var (
	// ServerInfo is a constant gauge with server metadata.
	ServerInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_info",
		Help:      "Server build and version info.",
	}, []string{"version"})

	// ServerStartTime tracks server start time as a unix timestamp.
	ServerStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_start_time_seconds",
		Help:      "Server start time as Unix timestamp.",
	})
)

// ObservePool updates the pool gauges.
func ObservePool(size, allocated int) {
	PoolSize.Set(float64(size))
	PoolAllocated.Set(float64(allocated))
	if size > 0 {
		PoolUtilization.Set(float64(allocated) / float64(size) * 100)
	} else {
		PoolUtilization.Set(0)
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
