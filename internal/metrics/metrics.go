package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SitemapFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemap_fetches_total",
			Help: "Sitemap documents fetched, by outcome",
		},
		[]string{"outcome"},
	)

	SitemapsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemap_skipped_total",
			Help: "Sub-sitemaps listed in an index but not expanded, by reason",
		},
		[]string{"reason"},
	)

	GenerationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cluster_generation_attempts_total",
			Help: "Calls to the cluster generator, by outcome",
		},
		[]string{"outcome"},
	)

	ClusterFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cluster_fallbacks_total",
			Help: "Analyses that fell back to heuristic clustering",
		},
	)

	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "End to end sitemap analysis duration",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		SitemapFetches,
		SitemapsSkipped,
		GenerationAttempts,
		ClusterFallbacks,
		AnalysisDuration,
		httpRequests,
	)
}

// ObserveAnalysis records the duration of a finished analysis.
func ObserveAnalysis(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	AnalysisDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// Middleware counts HTTP requests per route and status.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		httpRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
