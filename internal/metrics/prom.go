package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promMetrics mirrors the collector into a private Prometheus registry.
type promMetrics struct {
	registry  *prometheus.Registry
	duration  *prometheus.HistogramVec
	tokensIn  prometheus.Counter
	tokensOut prometheus.Counter
	gauges    *prometheus.GaugeVec
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	p := &promMetrics{
		registry: reg,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "operation_duration_seconds",
			Help:      "Duration of portal operations.",
			Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		tokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "llm_input_tokens_total",
			Help:      "Prompt tokens sent to the inference service.",
		}),
		tokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "llm_output_tokens_total",
			Help:      "Completion tokens returned by the inference service.",
		}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "portal",
			Name:      "resources",
			Help:      "Live resources held by the server.",
		}, []string{"name"}),
	}
	reg.MustRegister(
		p.duration, p.tokensIn, p.tokensOut, p.gauges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *promMetrics) observe(op string, d time.Duration) {
	if p == nil {
		return
	}
	p.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *promMetrics) tokens(in, out int64) {
	if p == nil {
		return
	}
	if in > 0 {
		p.tokensIn.Add(float64(in))
	}
	if out > 0 {
		p.tokensOut.Add(float64(out))
	}
}

func (p *promMetrics) gauge(name string, v int64) {
	if p == nil {
		return
	}
	p.gauges.WithLabelValues(name).Set(float64(v))
}

// Handler serves the Prometheus exposition for this collector.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.prom == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.prom.registry, promhttp.HandlerOpts{})
}
