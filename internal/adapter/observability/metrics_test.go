package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegisterWithFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NoError(t, reg.Register(RowsProcessedTotal))
	assert.NoError(t, reg.Register(CycleDuration))

	RowsProcessedTotal.WithLabelValues("resume", "success-new").Inc()
	LockContentionTotal.Inc()

	metrics, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, metrics)
}
