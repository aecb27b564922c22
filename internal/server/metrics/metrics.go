// Package metrics holds the prometheus collectors of the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors so tests can use a private registry.
type Metrics struct {
	TxAttempts     *prometheus.CounterVec
	TxConflicts    *prometheus.CounterVec
	AuthAttempts   *prometheus.CounterVec
	SessionsIssued *prometheus.CounterVec
	GrantsSwept    prometheus.Counter
	ConfigReloads  *prometheus.CounterVec
	RPCDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TxAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnkeeper",
			Name:      "tx_attempts_total",
			Help:      "Transaction attempts by operation and outcome.",
		}, []string{"op", "outcome"}),
		TxConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnkeeper",
			Name:      "tx_conflicts_total",
			Help:      "Serialization conflicts that triggered a retry.",
		}, []string{"op"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnkeeper",
			Name:      "auth_attempts_total",
			Help:      "Password and MFA verification attempts by step and result.",
		}, []string{"step", "result"}),
		SessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnkeeper",
			Name:      "sessions_issued_total",
			Help:      "Session tokens issued by stage.",
		}, []string{"stage"}),
		GrantsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "learnkeeper",
			Name:      "grants_swept_total",
			Help:      "Expired session grants removed by the sweeper.",
		}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnkeeper",
			Name:      "config_reloads_total",
			Help:      "Config snapshot reloads by result.",
		}, []string{"result"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "learnkeeper",
			Name:      "rpc_duration_seconds",
			Help:      "gRPC handler latency by method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}

	reg.MustRegister(m.TxAttempts, m.TxConflicts, m.AuthAttempts, m.SessionsIssued, m.GrantsSwept, m.ConfigReloads, m.RPCDuration)
	return m
}

// NewNop returns collectors registered with a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
