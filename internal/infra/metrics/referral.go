package metrics

import (
	"telegram-referral-rewards/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		referralLinksTotal,
		referralCreditsTotal,
		referralCreditSkippedTotal,
		challengeResultsTotal,
		gateChecksTotal,
		membershipQueryFailuresTotal,
		funnelCandidates,
	)
}

var (
	referralLinksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_links_total",
			Help: "Candidates linked to an inviter.",
		},
	)

	referralCreditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_credits_total",
			Help: "Referral credits granted, labeled by the path that triggered them.",
		},
		[]string{"via"}, // 'bot_check', 'membership', 'check_now', 'manual'
	)

	referralCreditSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_credit_skipped_total",
			Help: "Credit attempts that ended without a credit.",
		},
		[]string{"reason"}, // 'no_inviter', 'already_credited', 'not_verified', 'error'
	)

	challengeResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_check_results_total",
			Help: "Bot-check outcomes.",
		},
		[]string{"result"}, // 'issued', 'passed', 'failed', 'bypassed'
	)

	gateChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_gate_checks_total",
			Help: "Verification gate evaluations.",
		},
		[]string{"result"}, // 'verified', 'incomplete'
	)

	membershipQueryFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "membership_query_failures_total",
			Help: "Failed getChatMember lookups, treated as not joined.",
		},
	)

	funnelCandidates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "referral_funnel_candidates",
			Help: "Current number of candidates per funnel stage.",
		},
		[]string{"stage"},
	)
)

func IncReferralLink() { referralLinksTotal.Inc() }

func IncReferralCredit(via model.CreditPath) {
	referralCreditsTotal.WithLabelValues(norm(string(via))).Inc()
}

func IncCreditSkipped(reason string) {
	referralCreditSkippedTotal.WithLabelValues(norm(reason)).Inc()
}

func IncChallenge(result string) {
	challengeResultsTotal.WithLabelValues(norm(result)).Inc()
}

func IncGateCheck(result string) {
	gateChecksTotal.WithLabelValues(norm(result)).Inc()
}

func IncMembershipQueryFailure() { membershipQueryFailuresTotal.Inc() }

func SetFunnelStages(counts map[model.FunnelStage]int) {
	for _, st := range []model.FunnelStage{model.StageLinked, model.StageCredited} {
		funnelCandidates.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
