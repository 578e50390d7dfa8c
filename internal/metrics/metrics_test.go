package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/dpgraph/internal/privacy"
)

func TestObserve(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveValidation(OutcomeOK)
	m.ObserveValidation(OutcomeRejected)
	m.ObserveValidation(OutcomeRejected)
	m.ObserveRelease(OutcomeOK, privacy.Usage{Epsilon: 0.5, Delta: 1e-6})
	m.ObserveRelease(OutcomeFailed, privacy.Usage{Epsilon: 3})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.validations.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.releases.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.epsilonSpent), "failed releases spend nothing")
	assert.Equal(t, 1e-6, testutil.ToFloat64(m.deltaSpent))
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveRelease(OutcomeOK, privacy.Usage{Epsilon: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dpgraph_releases_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "dpgraph_epsilon_spent_total 1")
}
