package gateway

import (
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// LogSamplingConfig tunes the request logger. Tick is the minimum gap
// between sampled lines; After is the latency above which a request is
// logged regardless of sampling.
type LogSamplingConfig struct {
	Tick  time.Duration
	After time.Duration
}

// logSampler admits at most one request per tick, with a latency
// override. The deadline is a unix-nano value swapped atomically so the
// hot path never takes a lock.
type logSampler struct {
	tick  time.Duration
	after time.Duration
	next  atomic.Int64
}

func (s *logSampler) Allow(duration time.Duration) bool {
	if s.after > 0 && duration >= s.after {
		return true
	}
	if s.tick <= 0 {
		return true
	}
	now := time.Now().UnixNano()
	next := s.next.Load()
	if now < next {
		return false
	}
	return s.next.CompareAndSwap(next, now+int64(s.tick))
}

// RequestLogger emits one structured line per request, sampled. Server
// errors and handler errors always log; everything else goes through the
// sampler so a styles-polling client can't flood the logs.
func RequestLogger(logger *logrus.Logger, cfg LogSamplingConfig) fiber.Handler {
	sampler := &logSampler{tick: cfg.Tick, after: cfg.After}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		failed := err != nil || status >= fiber.StatusInternalServerError
		if !failed && !sampler.Allow(duration) {
			return err
		}

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		entry := logger.WithFields(logrus.Fields{
			"request_id":  RequestIDFromCtx(c),
			"method":      c.Method(),
			"route":       route,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"bytes_in":    len(c.Body()),
			"bytes_out":   len(c.Response().Body()),
			"ip":          c.IP(),
		})
		if userID := c.Locals("user_id"); userID != nil {
			entry = entry.WithField("user_id", userID)
		}
		if userAgent := c.Get("User-Agent"); userAgent != "" {
			entry = entry.WithField("user_agent", userAgent)
		}
		if err != nil {
			entry = entry.WithField("error", err.Error())
		}

		switch {
		case failed:
			entry.Error("http_request")
		case status >= fiber.StatusBadRequest:
			entry.Warn("http_request")
		default:
			entry.Info("http_request")
		}
		return err
	}
}
