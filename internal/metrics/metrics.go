// Package metrics holds the Prometheus collectors of the replay server.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zereker/quotesock"
)

var (
	registerOnce sync.Once

	replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotesock",
			Subsystem: "server",
			Name:      "replies_total",
			Help:      "Commands answered by the replay server.",
		},
		[]string{"type", "success"},
	)
	replyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quotesock",
			Subsystem: "server",
			Name:      "reply_duration_seconds",
			Help:      "Handler latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// RegisterMetrics registers the collectors with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(replies, replyDuration)
	})
}

// RecordReply counts one handler call. An empty type is recorded as "raw".
func RecordReply(typ string, duration time.Duration, success bool) {
	RegisterMetrics()
	if typ == "" {
		typ = "raw"
	}
	replies.WithLabelValues(typ, strconv.FormatBool(success)).Inc()
	replyDuration.WithLabelValues(typ).Observe(duration.Seconds())
}

// InstrumentHandler records every reply h produces.
func InstrumentHandler(h quotesock.Handler) quotesock.Handler {
	return quotesock.HandlerFunc(func(ctx context.Context, command string) (quotesock.Reply, error) {
		start := time.Now()
		reply, err := h.Respond(ctx, command)
		RecordReply(reply.Type, time.Since(start), err == nil)
		return reply, err
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
