package models

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var pipelineMetricsOnce sync.Once

var (
	pipelineRequestsTotal   *prometheus.CounterVec
	pipelineRequestDuration *prometheus.HistogramVec
	pipelineRequestSize     *prometheus.HistogramVec
	pipelineResponseSize    *prometheus.HistogramVec
)

func registerHistogramVec(c *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		log.Printf("prometheus histogram register failed: %v", err)
	}
	return c
}

func registerCountVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		log.Printf("prometheus counter register failed: %v", err)
	}
	return c
}

func InitPipelineMetrics() {
	pipelineMetricsOnce.Do(func() {
		pipelineRequestsTotal = registerCountVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studiopix",
			Subsystem: "pipeline_client",
			Name:      "requests_total",
			Help:      "Total number of pipeline HTTP requests.",
		}, []string{"endpoint", "method", "status", "result"}))

		pipelineRequestDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "studiopix",
			Subsystem: "pipeline_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of pipeline HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "method", "result"}))

		sizeBuckets := []float64{100, 500, 1_000, 2_000, 5_000, 10_000, 25_000, 50_000, 100_000, 250_000, 500_000, 1_000_000, 2_000_000, 5_000_000, 10_000_000}
		pipelineRequestSize = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "studiopix",
			Subsystem: "pipeline_client",
			Name:      "request_size_bytes",
			Help:      "Size of pipeline HTTP requests.",
			Buckets:   sizeBuckets,
		}, []string{"endpoint", "method"}))

		pipelineResponseSize = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "studiopix",
			Subsystem: "pipeline_client",
			Name:      "response_size_bytes",
			Help:      "Size of pipeline HTTP responses.",
			Buckets:   sizeBuckets,
		}, []string{"endpoint", "method"}))
	})
}

// RecordPipelineMetrics is called by the pipeline client after each request.
func RecordPipelineMetrics(endpoint, method string, statusCode int, err error, reqSize, respSize int, duration time.Duration) {
	if pipelineRequestsTotal == nil {
		return
	}
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	result := "success"
	if err != nil {
		result = "error"
	}

	pipelineRequestsTotal.WithLabelValues(endpoint, method, status, result).Inc()
	pipelineRequestDuration.WithLabelValues(endpoint, method, result).Observe(duration.Seconds())
	pipelineRequestSize.WithLabelValues(endpoint, method).Observe(float64(reqSize))
	pipelineResponseSize.WithLabelValues(endpoint, method).Observe(float64(respSize))
}
