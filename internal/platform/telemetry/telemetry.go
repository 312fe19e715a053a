// Package telemetry exposes Prometheus metrics for the anthropometry
// service: HTTP request metrics, reconciliation and evaluation counters,
// and the /metrics exposition endpoint.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "anthro"

var defaultDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Config holds telemetry settings.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "anthro-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
}

// Provider owns a private registry so several providers (tests, embedded
// use) never collide on metric names.
type Provider struct {
	cfg      Config
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInFlight   prometheus.Gauge
	reconciliation *prometheus.CounterVec
	evaluations    *prometheus.CounterVec
	evalDuration   prometheus.Histogram
	absentIndices  *prometheus.CounterVec
	batchSize      prometheus.Histogram
}

// NewProvider registers every collector on a fresh registry.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)
	constLabels := prometheus.Labels{"service": cfg.ServiceName, "version": cfg.ServiceVersion}

	return &Provider{
		cfg:      cfg,
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "HTTP requests by method, route and status code.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency by method and route.",
			ConstLabels: constLabels,
			Buckets:     defaultDurationBuckets,
		}, []string{"method", "route"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "http_requests_in_flight",
			Help:        "HTTP requests currently being served.",
			ConstLabels: constLabels,
		}),
		reconciliation: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Field reconciliations by resulting source.",
		}, []string{"source"}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Patient evaluations by completeness of the reconciled set.",
		}, []string{"complete"}),
		evalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent reconciling and computing one evaluation.",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		absentIndices: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "absent_indices_total",
			Help:      "Indices left absent because their inputs were unavailable.",
		}, []string{"index"}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of evaluations per batch request.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

// Registry returns the provider's registry.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// ObserveReconciliation counts one field reconciliation.
func (p *Provider) ObserveReconciliation(source string) {
	p.reconciliation.WithLabelValues(source).Inc()
}

// ObserveEvaluation records one evaluation and its duration.
func (p *Provider) ObserveEvaluation(complete bool, d time.Duration) {
	p.evaluations.WithLabelValues(strconv.FormatBool(complete)).Inc()
	p.evalDuration.Observe(d.Seconds())
}

// ObserveAbsentIndex counts an index that could not be computed.
func (p *Provider) ObserveAbsentIndex(name string) {
	p.absentIndices.WithLabelValues(name).Inc()
}

// ObserveBatch records the size of a batch request.
func (p *Provider) ObserveBatch(size int) {
	p.batchSize.Observe(float64(size))
}

// MetricsMiddleware records request count, latency and in-flight requests.
// Routes are labelled by their pattern, not the concrete path.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !p.cfg.Enabled {
				return next(c)
			}
			p.httpInFlight.Inc()
			start := time.Now()

			err := next(c)

			p.httpInFlight.Dec()
			req := c.Request()
			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			p.httpRequests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
			p.httpDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in Prometheus text exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
