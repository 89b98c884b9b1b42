package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	hitsDesc = prometheus.NewDesc("roboptim_cache_hits_total",
		"Requests answered from the evaluation cache.", []string{"cache"}, nil)
	missesDesc = prometheus.NewDesc("roboptim_cache_misses_total",
		"Requests that reached the wrapped function.", []string{"cache"}, nil)
	evictionsDesc = prometheus.NewDesc("roboptim_cache_evictions_total",
		"Entries dropped to stay within capacity.", []string{"cache"}, nil)
	entriesDesc = prometheus.NewDesc("roboptim_cache_entries",
		"Points currently stored.", []string{"cache"}, nil)
)

// Collector exports the counters of one cache to Prometheus.
type Collector struct {
	name  string
	cache *Cache
}

// NewCollector returns a collector labelling the metrics of c with name.
func NewCollector(name string, c *Cache) *Collector {
	return &Collector{name: name, cache: c}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- hitsDesc
	ch <- missesDesc
	ch <- evictionsDesc
	ch <- entriesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(stats.Hits), c.name)
	ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(stats.Misses), c.name)
	ch <- prometheus.MustNewConstMetric(evictionsDesc, prometheus.CounterValue, float64(stats.Evictions), c.name)
	ch <- prometheus.MustNewConstMetric(entriesDesc, prometheus.GaugeValue, float64(c.cache.Len()), c.name)
}
