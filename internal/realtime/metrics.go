package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	changesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_changes_published_total",
			Help: "Row changes fanned out by the realtime hub",
		},
		[]string{"table", "event"},
	)

	activeSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_subscriptions",
			Help: "Live change subscriptions held by the hub",
		},
	)

	refreshIncrements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_refresh_increments_total",
			Help: "Refresh counter increments by cause",
		},
		[]string{"cause"},
	)
)
