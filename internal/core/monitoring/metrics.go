package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adpulse_monitoring_cycles_total",
		Help: "Completed evaluation cycles per account.",
	}, []string{"customer_id"})

	fetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adpulse_monitoring_fetch_failures_total",
		Help: "Snapshot fetches that exhausted their retries.",
	})

	ruleEvalErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adpulse_monitoring_rule_eval_errors_total",
		Help: "Rules skipped due to evaluation errors.",
	})

	candidatesSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adpulse_monitoring_candidates_suppressed_total",
		Help: "Issue candidates suppressed by cooldown.",
	})

	notificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adpulse_monitoring_notifications_sent_total",
		Help: "Notifications delivered, by channel.",
	}, []string{"channel"})

	notificationsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adpulse_monitoring_notifications_dropped_total",
		Help: "Notifications dropped after exhausting retries, by channel.",
	}, []string{"channel"})

	autoResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adpulse_monitoring_auto_resolutions_total",
		Help: "Auto-resolution attempts, by outcome.",
	}, []string{"outcome"})
)
