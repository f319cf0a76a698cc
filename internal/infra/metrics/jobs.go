package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(broadcastMessagesTotal, checkpointFlushedTotal, rightsAuditTotal)
}

var (
	broadcastMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_messages_total",
			Help: "Broadcast deliveries labeled by result.",
		},
		[]string{"result"}, // 'sent', 'failed'
	)

	checkpointFlushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_checkpoint_records_total",
			Help: "Dirty ledger records processed by the checkpoint worker.",
		},
		[]string{"result"}, // 'flushed', 'failed'
	)

	rightsAuditTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_rights_audit_total",
			Help: "Per-channel results of the bot rights audit.",
		},
		[]string{"result"}, // 'ok', 'lost', 'error'
	)
)

func IncBroadcast(result string) {
	broadcastMessagesTotal.WithLabelValues(norm(result)).Inc()
}

func AddCheckpoint(result string, n int) {
	checkpointFlushedTotal.WithLabelValues(norm(result)).Add(float64(n))
}

func IncRightsAudit(result string) {
	rightsAuditTotal.WithLabelValues(norm(result)).Inc()
}
