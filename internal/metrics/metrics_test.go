package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	// promauto registers with the default registry; write a value to each
	// vector so it shows up when gathered.
	PacketsReceived.WithLabelValues("DHCPDISCOVER").Inc()
	PacketsSent.WithLabelValues("DHCPOFFER").Inc()
	PacketErrors.WithLabelValues("decode").Inc()
	PacketsIgnored.WithLabelValues("not_dhcp").Inc()
	PacketProcessingDuration.WithLabelValues("DHCPDISCOVER").Observe(0.0001)
	RateLimited.WithLabelValues("mac").Inc()
	LeaseOperations.WithLabelValues("offer").Inc()
	PXEClients.WithLabelValues("EFI x86-64").Inc()
	EventsPublished.WithLabelValues("lease.ack").Inc()
	EventBufferDrops.Inc()
	AuditRecords.Inc()
	ServerStartTime.SetToCurrentTime()
	ServerInfo.WithLabelValues("dev").Set(1)

	if got := testutil.ToFloat64(EventBufferDrops); got != 1 {
		t.Errorf("EventBufferDrops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RateLimited.WithLabelValues("mac")); got != 1 {
		t.Errorf("RateLimited{mac} = %v, want 1", got)
	}
}

func TestObservePool(t *testing.T) {
	ObservePool(4, 1)
	if got := testutil.ToFloat64(PoolSize); got != 4 {
		t.Errorf("PoolSize = %v, want 4", got)
	}
	if got := testutil.ToFloat64(PoolAllocated); got != 1 {
		t.Errorf("PoolAllocated = %v, want 1", got)
	}
	if got := testutil.ToFloat64(PoolUtilization); got != 25 {
		t.Errorf("PoolUtilization = %v, want 25", got)
	}

	ObservePool(0, 0)
	if got := testutil.ToFloat64(PoolUtilization); got != 0 {
		t.Errorf("PoolUtilization on empty pool = %v, want 0", got)
	}
}

func TestMetricsNamespace(t *testing.T) {
	// All metrics should use the pxe_dhcpd_ namespace
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range mfs {
		name := mf.GetName()
		// Skip standard go_* and process_* and promhttp_* metrics
		if strings.HasPrefix(name, "go_") ||
			strings.HasPrefix(name, "process_") ||
			strings.HasPrefix(name, "promhttp_") {
			continue
		}
		if !strings.HasPrefix(name, "pxe_dhcpd_") {
			t.Errorf("metric %q does not have pxe_dhcpd_ prefix", name)
		}
	}
}

func TestHandler(t *testing.T) {
	PoolExhausted.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "pxe_dhcpd_pool_exhausted_total") {
		t.Error("/metrics output missing pxe_dhcpd_pool_exhausted_total")
	}
}
