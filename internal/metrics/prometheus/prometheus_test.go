package prometheus

import (
	"testing"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func Test_PrometheusMetricsClient(t *testing.T) {
	l, _ := zap.NewDevelopment()

	t.Run("Test counters tolerate missing and unknown labels", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		client, err := NewPrometheusMetricsClient(&PrometheusMetricsConfig{
			Metrics:    metricsTypes.MetricTypes,
			Registerer: registry,
		}, l)
		assert.Nil(t, err)

		assert.Nil(t, client.Incr(metricsTypes.Metric_Incr_Leaf, []metricsTypes.MetricsLabel{
			{Name: "reason", Value: "unclassified"},
			{Name: "chain", Value: "1"},
		}, 1))
		assert.Nil(t, client.Incr(metricsTypes.Metric_Incr_Leaf, nil, 1))
		assert.Nil(t, client.Incr(metricsTypes.Metric_Incr_NodeExpanded, nil, 3))

		assert.Equal(t, float64(1), testutil.ToFloat64(client.counters[metricsTypes.Metric_Incr_Leaf].WithLabelValues("unclassified")))
		assert.Equal(t, float64(3), testutil.ToFloat64(client.counters[metricsTypes.Metric_Incr_NodeExpanded]))
	})
	t.Run("Test unknown metrics are ignored", func(t *testing.T) {
		client, err := NewPrometheusMetricsClient(&PrometheusMetricsConfig{
			Metrics:    metricsTypes.MetricTypes,
			Registerer: prometheus.NewRegistry(),
		}, l)
		assert.Nil(t, err)
		assert.Nil(t, client.Incr("not_a_metric", nil, 1))
		assert.Nil(t, client.Timing(metricsTypes.Metric_Timing_TraversalDuration, time.Second, nil))
	})
}
