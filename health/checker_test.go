package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckAllReportsHealthyWithNoChecks(t *testing.T) {
	hc := NewHealthChecker(time.Second)
	require.Equal(t, StatusHealthy, hc.GetOverallStatus(context.Background()))
}

func TestCheckAllReportsUnhealthyOnFailingCheck(t *testing.T) {
	hc := NewHealthChecker(time.Second)
	hc.RegisterCheck("store", func(ctx context.Context) error {
		return errors.New("store unreachable")
	})

	require.Equal(t, StatusUnhealthy, hc.GetOverallStatus(context.Background()))
}

func TestBootstrapHealthCheckFailsUntilReady(t *testing.T) {
	phase := "handshaking"
	check := BootstrapHealthCheck(func() string { return phase })

	require.Error(t, check(context.Background()))
	phase = "ready"
	require.NoError(t, check(context.Background()))
}

func TestHandlerReportsBootstrapPhaseAndCounts(t *testing.T) {
	hc := NewHealthChecker(time.Second)
	handler := Handler(hc, func() (string, int, int) { return "ready", 3, 2 })

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, 200, rr.Code)
	var resp response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, StatusHealthy, resp.Status)
	require.Equal(t, "ready", resp.BootstrapPhase)
	require.Equal(t, 3, resp.PeerCount)
	require.Equal(t, 2, resp.ChannelCount)
}

func TestHandlerReturns503WhenUnhealthy(t *testing.T) {
	hc := NewHealthChecker(time.Second)
	hc.RegisterCheck("store", func(ctx context.Context) error { return errors.New("down") })
	handler := Handler(hc, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, 503, rr.Code)
}
