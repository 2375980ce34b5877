package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestAdminRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	h := NewHub(HubParams{Log: &memLog{}, Metrics: NewMetrics(reg)})
	register(t, h, "bob")
	register(t, h, "alice")
	r := NewAdminRouter(h, reg, logrus.StandardLogger())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	require.Equal(t, []string{"alice", "bob"}, names)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "roost_sessions 2")
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.JoinsRejected.Inc()
	m.StorageFailures.WithLabelValues("append").Inc()

	expected := `
# HELP roost_joins_rejected_total Total number of joins rejected because the username was taken
# TYPE roost_joins_rejected_total counter
roost_joins_rejected_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "roost_joins_rejected_total"))
	require.Equal(t, 1, testutil.CollectAndCount(m.StorageFailures))
}
