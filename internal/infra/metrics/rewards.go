package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(starsAwardedTotal, codeRedemptionsTotal, withdrawalsTotal, notificationsTotal)
}

var (
	starsAwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stars_awarded_total",
			Help: "Stars credited to accounts, labeled by source.",
		},
		[]string{"source"}, // 'referral', 'code', 'refund', 'admin'
	)

	codeRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_redemptions_total",
			Help: "Redeem attempts labeled by outcome.",
		},
		[]string{"result"},
	)

	withdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Withdrawal lifecycle events.",
		},
		[]string{"status"}, // 'requested', 'approved', 'rejected'
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outbound notifications labeled by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

func AddStarsAwarded(source string, n int64) {
	if n <= 0 {
		return
	}
	starsAwardedTotal.WithLabelValues(norm(source)).Add(float64(n))
}

func IncCodeRedemption(result string) {
	codeRedemptionsTotal.WithLabelValues(norm(result)).Inc()
}

func IncWithdrawal(status string) {
	withdrawalsTotal.WithLabelValues(norm(status)).Inc()
}

func IncNotification(kind string, ok bool) {
	res := "sent"
	if !ok {
		res = "failed"
	}
	notificationsTotal.WithLabelValues(norm(kind), res).Inc()
}
