// Package prom implements the metrics port (C4) with Prometheus
// counters, capping clientId cardinality by hashing it into a fixed
// number of buckets before it becomes a label value.
package prom

import (
	"hash/fnv"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// bucketCount bounds the number of distinct client_id label values any
// one recorder can produce, regardless of how many real clients exist.
const bucketCount = 256

// Recorder is a metrics.Recorder backed by Prometheus CounterVecs.
type Recorder struct {
	checksTotal  *prometheus.CounterVec
	auditDropped prometheus.Counter
}

// New creates a Recorder and registers its metrics with reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_checks_total",
				Help: "Total number of rate limit check decisions.",
			},
			[]string{"client_id", "status"},
		),
		auditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limit_audit_dropped_total",
				Help: "Total number of audit events dropped due to backpressure.",
			},
		),
	}
	reg.MustRegister(r.checksTotal, r.auditDropped)
	return r
}

// IncrementCheck implements metrics.Recorder.
func (r *Recorder) IncrementCheck(clientID, status string) {
	r.checksTotal.WithLabelValues(bucketFor(clientID), status).Inc()
}

// IncrementAuditDropped implements metrics.Recorder.
func (r *Recorder) IncrementAuditDropped() {
	r.auditDropped.Inc()
}

// bucketFor maps an arbitrary clientID into one of bucketCount labels,
// so the number of distinct client_id series stays bounded no matter how
// many real clients call the service.
func bucketFor(clientID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return strconv.Itoa(int(h.Sum32() % bucketCount))
}
