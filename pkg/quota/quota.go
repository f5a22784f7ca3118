// Package quota logs Anthropic rate-limit quota headers from an upstream
// response to the KV store for later inspection, and exposes the two
// utilization figures as Prometheus gauges.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const ttl = 14 * 24 * time.Hour

// QuotaHeaders is the fixed set of rate-limit headers logged verbatim.
var QuotaHeaders = []string{
	"anthropic-ratelimit-unified-5h-utilization",
	"anthropic-ratelimit-unified-5h-reset",
	"anthropic-ratelimit-unified-5h-status",
	"anthropic-ratelimit-unified-7d-utilization",
	"anthropic-ratelimit-unified-7d-reset",
	"anthropic-ratelimit-unified-7d-status",
	"anthropic-ratelimit-unified-fallback",
	"anthropic-ratelimit-unified-fallback-percentage",
	"anthropic-ratelimit-unified-overage-status",
}

// Logger persists quota headers to Redis and updates the gauges.
type Logger struct {
	Redis   *redis.Client
	Now     func() time.Time
	gauge5h prometheus.Gauge
	gauge7d prometheus.Gauge
}

// NewLogger builds a Logger and registers its gauges against reg (the
// same registry the /metrics endpoint serves, not the global default).
func NewLogger(rdb *redis.Client, reg prometheus.Registerer) *Logger {
	l := &Logger{
		Redis: rdb,
		gauge5h: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_quota_5h_utilization",
			Help: "Most recently observed 5-hour unified rate-limit utilization percentage.",
		}),
		gauge7d: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_quota_7d_utilization",
			Help: "Most recently observed 7-day unified rate-limit utilization percentage.",
		}),
	}
	reg.MustRegister(l.gauge5h, l.gauge7d)
	return l
}

// Log reads the quota headers from resp and stashes them if either the
// 5-hour or 7-day utilization header is present; otherwise it's a no-op.
func (l *Logger) Log(ctx context.Context, headers http.Header, requestID string) error {
	h5 := headers.Get("anthropic-ratelimit-unified-5h-utilization")
	h7 := headers.Get("anthropic-ratelimit-unified-7d-utilization")
	if h5 == "" && h7 == "" {
		return nil
	}

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	timestamp := now().UTC().Format(time.RFC3339)

	data := map[string]any{
		"timestamp":  timestamp,
		"request_id": requestID,
	}
	for _, h := range QuotaHeaders {
		data[h] = headers.Get(h)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("quota: marshal: %w", err)
	}

	key := "quota:" + timestamp
	if err := l.Redis.SetEx(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("quota: setex: %w", err)
	}

	if v, err := strconv.ParseFloat(h5, 64); err == nil {
		l.gauge5h.Set(v)
	}
	if v, err := strconv.ParseFloat(h7, 64); err == nil {
		l.gauge7d.Set(v)
	}
	return nil
}
