// Package metrics declares the Prometheus collectors exported by issuebot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "issuebot"

// Notification results used as the "result" label of NotificationsTotal.
const (
	ResultSent          = "sent"
	ResultSuppressed    = "suppressed"
	ResultFetchFailed   = "fetch_failed"
	ResultSendFailed    = "send_failed"
	ResultTemplateError = "template_error"
)

var (
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Inbound chat messages seen by the dispatcher.",
	}, []string{"platform", "kind"})

	IdentifiersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "identifiers_total",
		Help:      "Distinct issue identifiers extracted from inbound messages.",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification outcomes by result.",
	}, []string{"result"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Tracker issue fetch latency.",
		Buckets:   prometheus.DefBuckets,
	})

	DedupEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dedup_entries",
		Help:      "Entries held by the dedup store after the last sweep.",
	})

	DedupSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dedup_swept_total",
		Help:      "Expired dedup entries removed by sweeps.",
	})

	DedupStoreErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dedup_store_errors_total",
		Help:      "Dedup store failures (the window fails open).",
	})
)

// Notification counts one notification outcome.
func Notification(result string) { NotificationsTotal.WithLabelValues(result).Inc() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
