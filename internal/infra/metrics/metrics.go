// Package metrics provides the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups the slidecast metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	registry *prometheus.Registry

	slidesShown       *prometheus.CounterVec
	chunks            *prometheus.CounterVec
	chunkDuration     prometheus.Histogram
	completed         prometheus.Counter
	viewers           prometheus.Gauge
	broadcastFailures prometheus.Counter
	decksPublished    prometheus.Counter
	requests          *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry together with the
// Go runtime and process collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		slidesShown: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slidecast_slides_shown_total",
				Help: "Total number of slides displayed",
			},
			[]string{"mode"},
		),
		chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slidecast_narration_chunks_total",
				Help: "Total number of narration chunks by result",
			},
			[]string{"result"},
		),
		chunkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "slidecast_narration_chunk_duration_seconds",
				Help:    "Time spent speaking a narration chunk",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 7),
			},
		),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slidecast_presentations_completed_total",
			Help: "Total number of presentations that reached the end",
		}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slidecast_live_viewers",
			Help: "Number of connected live viewers",
		}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slidecast_broadcast_failures_total",
			Help: "Total number of failed or timed out viewer sends",
		}),
		decksPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slidecast_decks_published_total",
			Help: "Total number of decks published over HTTP",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slidecast_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.slidesShown,
		c.chunks,
		c.chunkDuration,
		c.completed,
		c.viewers,
		c.broadcastFailures,
		c.decksPublished,
		c.requests,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collectors) SlideShown(mode string) {
	if c == nil {
		return
	}
	c.slidesShown.WithLabelValues(mode).Inc()
}

func (c *Collectors) ChunkSpoken(err error, d time.Duration) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.chunks.WithLabelValues(result).Inc()
	if d > 0 {
		c.chunkDuration.Observe(d.Seconds())
	}
}

func (c *Collectors) PresentationCompleted() {
	if c == nil {
		return
	}
	c.completed.Inc()
}

func (c *Collectors) SetViewers(n int) {
	if c == nil {
		return
	}
	c.viewers.Set(float64(n))
}

func (c *Collectors) BroadcastFailures(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.broadcastFailures.Add(float64(n))
}

func (c *Collectors) DeckPublished() {
	if c == nil {
		return
	}
	c.decksPublished.Inc()
}

func (c *Collectors) Request(route string, code int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
