package nativestore

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "nativestore"

type metrics struct {
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	decodeErrors prometheus.Counter
	writeErrors  prometheus.Counter
	cacheEntries prometheus.GaugeFunc

	registerer prometheus.Registerer
}

func newMetrics(cache ArrayCache) *metrics {
	return &metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_hits_total",
			Help:      "Array reads served from the decode cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_misses_total",
			Help:      "Array reads that had to go to the durable store.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Durable records that could not be decoded as arrays.",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "write_errors_total",
			Help:      "Writes, removals and clears rejected by the durable store.",
		}),
		cacheEntries: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cache_entries",
			Help:      "Arrays currently held in the decode cache.",
		}, func() float64 {
			return float64(cache.Len())
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.cacheHits, m.cacheMisses, m.decodeErrors, m.writeErrors, m.cacheEntries}
}

// register adds all collectors to registerer, labelled with the store name.
// On failure, the collectors registered so far are removed again.
func (m *metrics) register(registerer prometheus.Registerer, name string) error {
	if registerer == nil {
		return nil
	}
	if name != "" {
		registerer = prometheus.WrapRegistererWith(prometheus.Labels{"store": name}, registerer)
	}
	for i, collector := range m.collectors() {
		if err := registerer.Register(collector); err != nil {
			for _, registered := range m.collectors()[:i] {
				registerer.Unregister(registered)
			}
			return err
		}
	}
	m.registerer = registerer
	return nil
}

func (m *metrics) unregister() {
	if m.registerer == nil {
		return
	}
	for _, collector := range m.collectors() {
		m.registerer.Unregister(collector)
	}
	m.registerer = nil
}
