package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Refetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_refetches_total",
		Help: "Full conversation-list refetches issued.",
	})
	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_rollbacks_total",
		Help: "Optimistic mutations rolled back after a failed call.",
	})
	SignalsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_signals_received_total",
		Help: "Push signals received, by signal name.",
	}, []string{"signal"})
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_socket_reconnects_total",
		Help: "Websocket reconnections.",
	})
)
