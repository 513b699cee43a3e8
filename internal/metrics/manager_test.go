package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagersUseSeparateRegistries(t *testing.T) {
	a := NewManager()
	b := NewManager()

	a.GetPrometheusMetrics().RecordMutation("create", "success", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.GetPrometheusMetrics().MutationsTotal.WithLabelValues("create", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GetPrometheusMetrics().MutationsTotal.WithLabelValues("create", "success")))
}

func TestSubscriberGauge(t *testing.T) {
	pm := NewManager().GetPrometheusMetrics()

	pm.SubscriberConnected("websocket")
	pm.SubscriberConnected("websocket")
	pm.SubscriberDisconnected("websocket")
	pm.RecordSubscriberDropped("websocket")

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.SubscribersConnected.WithLabelValues("websocket")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.SubscribersDroppedTotal.WithLabelValues("websocket")))
}

func TestHandlerExposesLeaderboardMetrics(t *testing.T) {
	m := NewManager()
	m.GetPrometheusMetrics().UpdateAuditLogEntries(3)
	m.UpdateSystemMetrics()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "leaderboard_audit_log_entries 3")
	assert.Contains(t, string(body), "go_goroutines")
}
