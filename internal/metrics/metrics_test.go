package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRelayWritesIncrementsByOutcome(t *testing.T) {
	RelayWrites.Reset()
	RelayWrites.WithLabelValues("stored").Inc()
	RelayWrites.WithLabelValues("stored").Inc()
	RelayWrites.WithLabelValues("rejected_payment").Inc()

	require.Equal(t, float64(2), testutil.ToFloat64(RelayWrites.WithLabelValues("stored")))
	require.Equal(t, float64(1), testutil.ToFloat64(RelayWrites.WithLabelValues("rejected_payment")))
}

func TestHandshakeDurationObserves(t *testing.T) {
	HandshakeDuration.WithLabelValues("requester").Observe(0.01)
	require.NoError(t, testutil.CollectAndCompare(HandshakeDuration, nil))
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	PacketsSent.WithLabelValues("fulfill").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, req)

	require.Equal(t, 200, rr.Code)
	require.Contains(t, rr.Body.String(), "paidmesh_connector_packets_sent_total")
}
