package gateway

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Instrumentation counts and times every request by route. Registration is
// tolerant of double-init so tests can build multiple apps.
func Instrumentation() fiber.Handler {
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studiopix",
		Subsystem: "request",
		Name:      "requests_count",
		Help:      "Number of requests per each endpoint",
	}, []string{"code", "method", "path"})

	resTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "studiopix",
		Subsystem: "response",
		Name:      "response_time_hist",
		Help:      "studiopix response duration in milliseconds",
	})

	resSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "studiopix",
		Subsystem: "response",
		Name:      "size_histogram",
		Help:      "studiopix response size",
	})

	reqSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "studiopix",
		Subsystem: "request",
		Name:      "size_hist",
		Help:      "Request size instrumenter",
	})

	colls := []prometheus.Collector{counterVec, resTime, resSize, reqSize}
	for i, coll := range colls {
		if err := prometheus.Register(coll); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				colls[i] = already.ExistingCollector
				continue
			}
			panic(err)
		}
	}
	counterVec = colls[0].(*prometheus.CounterVec)
	resTime = colls[1].(prometheus.Histogram)
	resSize = colls[2].(prometheus.Histogram)
	reqSize = colls[3].(prometheus.Histogram)

	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		duration := float64(time.Since(start)) * 1e-6 // to millisecond

		path := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			path = r.Path
		}
		status := strconv.Itoa(c.Response().StatusCode())

		counterVec.WithLabelValues(status, c.Method(), path).Inc()
		resTime.Observe(duration)
		resSize.Observe(float64(len(c.Response().Body())))
		reqSize.Observe(float64(len(c.Body())))

		return err
	}
}
