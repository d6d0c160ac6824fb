package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Hooks with dynamically-labeled gauge/counter
// vectors, registered lazily the first time a metric name is seen. This
// mirrors the promauto.NewCounterVec/NewCounter idiom used elsewhere in
// the pack for process-level metrics, but builds vectors on demand since
// the engine's label sets (channel_id, plan_handle) are only known once a
// channel starts rather than at package init time.
type Prometheus struct {
	reg *prometheus.Registry

	mu       sync.Mutex
	gauges   map[string]*prometheus.GaugeVec
	counters map[string]*prometheus.CounterVec
}

// NewPrometheus creates a Prometheus hooks implementation backed by reg.
// If reg is nil, a fresh registry is created and can be retrieved with
// Registry() for mounting under promhttp.HandlerFor.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Prometheus{
		reg:      reg,
		gauges:   make(map[string]*prometheus.GaugeVec),
		counters: make(map[string]*prometheus.CounterVec),
	}
}

// Registry returns the underlying prometheus.Registry for HTTP exposition.
func (p *Prometheus) Registry() *prometheus.Registry { return p.reg }

// SetGauge implements Hooks.
func (p *Prometheus) SetGauge(name string, labels map[string]string, value float64) {
	names, values := splitLabels(labels)
	gv := p.gaugeVec(name, names)
	gv.WithLabelValues(values...).Set(value)
}

// IncCounter implements Hooks.
func (p *Prometheus) IncCounter(name string, labels map[string]string, n float64) {
	names, values := splitLabels(labels)
	cv := p.counterVec(name, names)
	cv.WithLabelValues(values...).Add(n)
}

func (p *Prometheus) gaugeVec(name string, labelNames []string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gv, ok := p.gauges[name]; ok {
		return gv
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: "playout engine gauge: " + name,
	}, labelNames)
	p.reg.MustRegister(gv)
	p.gauges[name] = gv
	return gv
}

func (p *Prometheus) counterVec(name string, labelNames []string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cv, ok := p.counters[name]; ok {
		return cv
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "playout engine counter: " + name,
	}, labelNames)
	p.reg.MustRegister(cv)
	p.counters[name] = cv
	return cv
}

// splitLabels returns stable-ordered label name/value slices for a map,
// since prometheus vectors are keyed by a fixed label-name tuple.
func splitLabels(labels map[string]string) (names, values []string) {
	names = make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	// Sort for determinism so the same label set always resolves to the
	// same vector regardless of map iteration order.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	values = make([]string, len(names))
	for i, n := range names {
		values[i] = labels[n]
	}
	return names, values
}
