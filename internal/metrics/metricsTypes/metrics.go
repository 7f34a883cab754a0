package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_NodeExpanded = "traversal_node_expanded"
	Metric_Incr_Leaf         = "traversal_leaf"
	Metric_Incr_CacheHit     = "cache_hit"
	Metric_Incr_CacheMiss    = "cache_miss"
	Metric_Incr_ExternalCall = "external_call"

	Metric_Gauge_TreeSize = "traversal_tree_size"

	Metric_Timing_TraversalDuration = "traversal_duration"
	Metric_Timing_ExternalCall      = "external_call_duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_NodeExpanded,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_Leaf,
			Labels: []string{"reason"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_CacheHit,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_CacheMiss,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_ExternalCall,
			Labels: []string{"service"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_TreeSize,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_TraversalDuration,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_ExternalCall,
			Labels: []string{"service"},
		},
	},
}
