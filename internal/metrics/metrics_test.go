package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultsTotalIncrementsByLabel(t *testing.T) {
	FaultsTotal.Reset()
	FaultsTotal.WithLabelValues("read", "5").Inc()
	FaultsTotal.WithLabelValues("read", "5").Inc()
	FaultsTotal.WithLabelValues("write", "2").Inc()

	var m dto.Metric
	require.NoError(t, FaultsTotal.WithLabelValues("read", "5").Write(&m))
	assert.Equal(t, float64(2), m.GetCounter().GetValue())
}

func TestLatencyInjectedSecondsObserves(t *testing.T) {
	LatencyInjectedSeconds.Reset()
	LatencyInjectedSeconds.WithLabelValues("open").Observe(0.5)

	var m dto.Metric
	require.NoError(t, LatencyInjectedSeconds.WithLabelValues("open").Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}

func TestAttrOverridesTotalIncrementsByLabel(t *testing.T) {
	AttrOverridesTotal.Reset()
	AttrOverridesTotal.WithLabelValues("getattr").Inc()

	var m dto.Metric
	require.NoError(t, AttrOverridesTotal.WithLabelValues("getattr").Write(&m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())
}

func TestNewServerServesMetricsEndpoint(t *testing.T) {
	s := NewServer(":0")
	assert.NotNil(t, s.http.Handler)

	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
