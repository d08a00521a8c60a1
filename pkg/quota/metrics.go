package quota

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	resultAllowed  = "allowed"
	resultExceeded = "exceeded"
	resultError    = "error"
)

// Metrics counts quota decisions.
type Metrics struct {
	PrepareTotal *prometheus.CounterVec
	CommitTotal  *prometheus.CounterVec
}

// NewMetrics creates the quota counters and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PrepareTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterkit_quota_prepare_total",
				Help: "Total number of quota checks by result",
			},
			[]string{"result"},
		),
		CommitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterkit_quota_commit_total",
				Help: "Total number of quota commits by result",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.PrepareTotal, m.CommitTotal)
	}
	return m
}

func (m *Metrics) observePrepare(err error) {
	if m == nil {
		return
	}
	m.PrepareTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeCommit(err error) {
	if m == nil {
		return
	}
	m.CommitTotal.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultAllowed
	case isExceeded(err):
		return resultExceeded
	default:
		return resultError
	}
}
