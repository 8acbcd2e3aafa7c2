package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.GeocodeQueriesTotal.WithLabelValues("hit").Inc()
	m.CacheHitsTotal.Add(2)

	var hits dto.Metric
	require.NoError(t, m.CacheHitsTotal.Write(&hits))
	assert.Equal(t, 2.0, hits.GetCounter().GetValue())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["geocode_queries_total"])
	assert.True(t, names["cache_hits_total"])

	// a second registration against the same registry must fail
	assert.Panics(t, func() { New(reg) })
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.WasteStacksTotal.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "spatialmatch_waste_stacks_total 1"))
}
