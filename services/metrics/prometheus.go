package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/babillard/core"
)

// PrometheusObserver counts operations per name and outcome.
type PrometheusObserver struct {
	reg *prometheus.Registry
	ops *prometheus.CounterVec
}

var _ core.Observer = (*PrometheusObserver)(nil)

func NewPrometheusObserver(reg *prometheus.Registry) *PrometheusObserver {
	ops := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "babillard",
		Name:      "operations_total",
		Help:      "Total number of core operations by outcome.",
	}, []string{"operation", "outcome"})

	return &PrometheusObserver{reg: reg, ops: ops}
}

func (o *PrometheusObserver) OnOperation(name, outcome string) {
	o.ops.WithLabelValues(name, outcome).Inc()
}

// Handler exposes the registry for scraping.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.reg, promhttp.HandlerOpts{Registry: o.reg})
}
