package usecase

import (
	"context"

	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/adapter"
	"telegram-referral-rewards/internal/infra/logging"
	"telegram-referral-rewards/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ VerificationGate = (*gateUC)(nil)

// VerificationGate answers whether a candidate has joined every required channel.
type VerificationGate interface {
	IsFullyVerified(ctx context.Context, candidateID int64) bool
	MissingChannels(ctx context.Context, candidateID int64) []model.RequiredChannel
}

// ChannelSource provides the current required channel list.
type ChannelSource interface {
	Channels() []model.RequiredChannel
}

type gateUC struct {
	channels ChannelSource
	members  adapter.MembershipChecker
	log      *zerolog.Logger
}

func NewVerificationGate(channels ChannelSource, members adapter.MembershipChecker, logger *zerolog.Logger) *gateUC {
	return &gateUC{channels: channels, members: members, log: logger}
}

// joined queries one channel. A failed query counts as not joined.
func (g *gateUC) joined(ctx context.Context, ch model.RequiredChannel, candidateID int64) bool {
	status, err := g.members.MemberStatus(ctx, ch.ChatID, candidateID)
	if err != nil {
		metrics.IncMembershipQueryFailure()
		g.log.Warn().Err(err).
			Int64("channel_id", ch.ChatID).
			Int64("tg_id", candidateID).
			Msg("membership query failed; treating as not joined")
		return false
	}
	ok := model.IsJoinedStatus(status)
	g.log.Debug().
		Int64("channel_id", ch.ChatID).
		Int64("tg_id", candidateID).
		Str("status", status).
		Bool("joined", ok).
		Msg("membership checked")
	return ok
}

// IsFullyVerified stops at the first channel that is not joined.
func (g *gateUC) IsFullyVerified(ctx context.Context, candidateID int64) bool {
	defer logging.TraceDuration(g.log, "GateUC.IsFullyVerified")()

	for _, ch := range g.channels.Channels() {
		if !g.joined(ctx, ch, candidateID) {
			metrics.IncGateCheck("incomplete")
			return false
		}
	}
	metrics.IncGateCheck("verified")
	return true
}

// MissingChannels checks every channel and returns all that are not joined.
func (g *gateUC) MissingChannels(ctx context.Context, candidateID int64) []model.RequiredChannel {
	defer logging.TraceDuration(g.log, "GateUC.MissingChannels")()

	var missing []model.RequiredChannel
	for _, ch := range g.channels.Channels() {
		if !g.joined(ctx, ch, candidateID) {
			missing = append(missing, ch)
		}
	}
	return missing
}
