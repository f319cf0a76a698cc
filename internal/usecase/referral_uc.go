package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/infra/logging"
	"telegram-referral-rewards/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ReferralUseCase = (*referralUC)(nil)

// Locker serializes work on a key across update workers.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

const creditLockTTL = 30 * time.Second

func creditLockKey(candidateID int64) string {
	return fmt.Sprintf("lock:credit:%d", candidateID)
}

// Reasons reported when a credit attempt ends without a credit.
const (
	SkipNoInviter       = "no_inviter"
	SkipAlreadyCredited = "already_credited"
	SkipNotVerified     = "not_verified"
)

type EntryEvent struct {
	CandidateID int64
	Username    string
	DisplayName string
	// Token is the /start payload, empty for a plain /start.
	Token string
}

type EntryResult struct {
	Account   model.Account
	Created   bool
	Linked    bool
	InviterID int64
	Challenge ChallengeOutcome
}

// MembershipChangeEvent mirrors a chat_member update.
type MembershipChangeEvent struct {
	ChatID    int64
	UserID    int64
	OldStatus string
	NewStatus string
}

type CreditResult struct {
	Credited   bool
	InviterID  int64
	Amount     int64
	NewBalance int64
	// Skipped names why nothing was credited.
	Skipped string
}

type CheckResult struct {
	Verified bool
	Missing  []model.RequiredChannel
	Credit   CreditResult
}

type InviteInfo struct {
	Link    string
	Rate    int64
	Balance int64
	Count   int64
}

type ReferralStats struct {
	Accounts      int
	Active        int
	Linked        int
	Credited      int
	TopInviters   []*model.ReferralEdge
	Rate          int64
	PendingWrites int
}

type ReferralUseCase interface {
	Enter(ctx context.Context, ev EntryEvent) (EntryResult, error)
	AnswerChallenge(ctx context.Context, candidateID int64, text string) (ChallengeOutcome, error)
	BypassChallenge(ctx context.Context, candidateID int64) (ChallengeOutcome, error)
	AttemptCredit(ctx context.Context, candidateID int64, via model.CreditPath) (CreditResult, error)
	OnMembershipChange(ctx context.Context, ev MembershipChangeEvent) (CreditResult, error)
	CheckNow(ctx context.Context, candidateID int64) (CheckResult, error)
	MissingChannels(ctx context.Context, candidateID int64) []model.RequiredChannel
	ManualCredit(ctx context.Context, candidateID, inviterID int64) (CreditResult, error)
	ResetCredited(ctx context.Context) (int, error)
	InviteLink(ctx context.Context, accountID int64) (InviteInfo, error)
	MarkBotBlocked(ctx context.Context, accountID int64) error
	Stats(ctx context.Context, top int) ReferralStats
	Funnel(ctx context.Context, candidateID int64) model.Funnel
}

type referralUC struct {
	ledger    *Ledger
	gate      VerificationGate
	challenge ChallengeUseCase
	notify    NotificationUseCase
	locker    Locker
	botName   string
	log       *zerolog.Logger
}

func NewReferralUseCase(
	ledger *Ledger,
	gate VerificationGate,
	challenge ChallengeUseCase,
	notify NotificationUseCase,
	locker Locker,
	botName string,
	logger *zerolog.Logger,
) *referralUC {
	return &referralUC{
		ledger:    ledger,
		gate:      gate,
		challenge: challenge,
		notify:    notify,
		locker:    locker,
		botName:   botName,
		log:       logger,
	}
}

// Enter handles /start. The account is registered or refreshed, an invite
// token forms a link when the candidate has none yet, and the bot-check is
// issued unless already passed.
func (u *referralUC) Enter(ctx context.Context, ev EntryEvent) (EntryResult, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.Enter")()

	acc, created, err := u.ledger.EnsureAccount(ctx, ev.CandidateID, ev.Username, ev.DisplayName)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return EntryResult{}, err
	}
	if err != nil {
		u.log.Error().Err(err).Int64("tg_id", ev.CandidateID).Msg("account kept in memory only")
	}
	res := EntryResult{Account: acc, Created: created}

	if ev.Token != "" {
		res.Linked = u.link(ctx, ev.CandidateID, ev.Token)
	}
	f := u.ledger.Funnel(ev.CandidateID)
	res.InviterID, _ = f.Inviter()

	if created {
		metrics.IncUsersRegistered()
		u.notify.NotifyNewAccount(ctx, acc, res.InviterID)
	}

	var pending int64
	if f.IsLinked() {
		pending = f.InviterID
	}
	out, err := u.challenge.Begin(ctx, ev.CandidateID, pending)
	if err != nil {
		return res, err
	}
	if !out.Passed {
		metrics.IncChallenge("issued")
	}
	res.Challenge = out
	return res, nil
}

// link applies first-writer-wins. Rejected links are logged and ignored.
func (u *referralUC) link(ctx context.Context, candidateID int64, token string) bool {
	inviterID, err := model.ParseInviteToken(token)
	if err != nil {
		u.log.Debug().Str("token", token).Int64("tg_id", candidateID).Msg("ignoring malformed invite token")
		return false
	}
	linked, err := u.ledger.LinkReferral(ctx, candidateID, inviterID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSelfReferral),
		errors.Is(err, domain.ErrAlreadyLinked),
		errors.Is(err, domain.ErrNotFound):
		u.log.Debug().Err(err).Int64("tg_id", candidateID).Int64("inviter_id", inviterID).Msg("link not formed")
		return false
	case errors.Is(err, domain.ErrPersistence):
		u.log.Error().Err(err).Int64("tg_id", candidateID).Int64("inviter_id", inviterID).Msg("link kept in memory only")
	default:
		u.log.Error().Err(err).Int64("tg_id", candidateID).Msg("link failed")
		return false
	}
	if linked {
		metrics.IncReferralLink()
		u.log.Info().Int64("tg_id", candidateID).Int64("inviter_id", inviterID).Msg("referral linked")
	}
	return linked
}

func (u *referralUC) AnswerChallenge(ctx context.Context, candidateID int64, text string) (ChallengeOutcome, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.AnswerChallenge")()

	out, err := u.challenge.Answer(ctx, candidateID, text)
	if err != nil {
		return out, err
	}
	if !out.Passed {
		metrics.IncChallenge("failed")
		return out, nil
	}
	if out.JustPassed {
		metrics.IncChallenge("passed")
		u.afterPass(ctx, candidateID, out)
	}
	return out, nil
}

// BypassChallenge is used by admin commands and menu buttons.
func (u *referralUC) BypassChallenge(ctx context.Context, candidateID int64) (ChallengeOutcome, error) {
	out, err := u.challenge.Bypass(ctx, candidateID)
	if err != nil {
		return out, err
	}
	if out.JustPassed {
		metrics.IncChallenge("bypassed")
		u.afterPass(ctx, candidateID, out)
	}
	return out, nil
}

func (u *referralUC) afterPass(ctx context.Context, candidateID int64, out ChallengeOutcome) {
	if out.PendingInviter == 0 {
		if u.gate.IsFullyVerified(ctx, candidateID) {
			u.claimSubscription(ctx, candidateID)
		}
		return
	}
	res, err := u.AttemptCredit(ctx, candidateID, model.CreditViaBotCheck)
	if err != nil {
		u.log.Error().Err(err).Int64("tg_id", candidateID).Msg("credit after bot-check failed")
		if !res.Credited {
			return
		}
	}
	verified := res.Credited
	if res.Skipped == SkipNoInviter || res.Skipped == SkipAlreadyCredited {
		verified = u.gate.IsFullyVerified(ctx, candidateID)
	}
	if verified {
		u.claimSubscription(ctx, candidateID)
	}
}

// AttemptCredit grants the referral reward when the candidate is linked, not
// yet credited and fully verified. Attempts for one candidate run one at a
// time; a duplicate signal observes Credited and does nothing.
func (u *referralUC) AttemptCredit(ctx context.Context, candidateID int64, via model.CreditPath) (CreditResult, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.AttemptCredit")()

	unlock, err := u.lock(ctx, candidateID)
	if err != nil {
		metrics.IncCreditSkipped("error")
		return CreditResult{}, err
	}
	defer unlock()

	f := u.ledger.Funnel(candidateID)
	switch {
	case f.Stage == model.StageUnlinked:
		return u.skip(candidateID, SkipNoInviter, 0), nil
	case f.IsCredited():
		return u.skip(candidateID, SkipAlreadyCredited, f.InviterID), nil
	}
	if !u.gate.IsFullyVerified(ctx, candidateID) {
		return u.skip(candidateID, SkipNotVerified, f.InviterID), nil
	}
	return u.credit(ctx, candidateID, via)
}

func (u *referralUC) lock(ctx context.Context, candidateID int64) (func(), error) {
	key := creditLockKey(candidateID)
	token, err := u.locker.TryLock(ctx, key, creditLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire credit lock for %d: %w", candidateID, err)
	}
	return func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			u.log.Warn().Err(err).Str("key", key).Msg("credit lock release failed")
		}
	}, nil
}

func (u *referralUC) skip(candidateID int64, reason string, inviterID int64) CreditResult {
	metrics.IncCreditSkipped(reason)
	u.log.Debug().Int64("tg_id", candidateID).Str("reason", reason).Msg("credit skipped")
	return CreditResult{InviterID: inviterID, Skipped: reason}
}

// credit performs the ledger transition, pays the inviter at the rate in
// force right now and notifies. Persistence errors do not stop the payout;
// they are returned once the in-memory state is complete.
func (u *referralUC) credit(ctx context.Context, candidateID int64, via model.CreditPath) (CreditResult, error) {
	inviterID, err := u.ledger.CreditReferral(ctx, candidateID, via)
	if errors.Is(err, domain.ErrAlreadyCredited) {
		return u.skip(candidateID, SkipAlreadyCredited, inviterID), nil
	}
	if err != nil && inviterID == 0 {
		metrics.IncCreditSkipped("error")
		return CreditResult{}, err
	}
	persistErr := err

	rate := u.ledger.RewardRate()
	balance, err := u.ledger.AddStars(ctx, inviterID, rate)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return CreditResult{InviterID: inviterID}, err
	}
	persistErr = errors.Join(persistErr, err)

	metrics.IncReferralCredit(via)
	metrics.AddStarsAwarded("referral", rate)
	u.log.Info().
		Int64("tg_id", candidateID).
		Int64("inviter_id", inviterID).
		Int64("stars", rate).
		Str("via", string(via)).
		Msg("referral credited")

	candidate, _ := u.ledger.Account(candidateID)
	u.notify.NotifyInviterCredited(ctx, inviterID, candidate, rate, balance)

	return CreditResult{Credited: true, InviterID: inviterID, Amount: rate, NewBalance: balance}, persistErr
}

// OnMembershipChange reacts only when the user newly joined one of the
// required channels.
func (u *referralUC) OnMembershipChange(ctx context.Context, ev MembershipChangeEvent) (CreditResult, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.OnMembershipChange")()

	if model.IsJoinedStatus(ev.OldStatus) || !model.IsJoinedStatus(ev.NewStatus) {
		return CreditResult{}, nil
	}
	if !u.isRequired(ev.ChatID) {
		return CreditResult{}, nil
	}
	if _, ok := u.ledger.Account(ev.UserID); !ok {
		return CreditResult{}, nil
	}
	res, err := u.AttemptCredit(ctx, ev.UserID, model.CreditViaMembership)
	if err != nil {
		return res, err
	}
	verified := res.Credited
	if res.Skipped == SkipNoInviter || res.Skipped == SkipAlreadyCredited {
		verified = u.gate.IsFullyVerified(ctx, ev.UserID)
	}
	if verified {
		u.claimSubscription(ctx, ev.UserID)
	}
	return res, nil
}

func (u *referralUC) isRequired(chatID int64) bool {
	for _, ch := range u.ledger.Channels() {
		if ch.ChatID == chatID {
			return true
		}
	}
	return false
}

// claimSubscription sets the one-time subscription flag for a candidate that
// cleared the gate and thanks them once. No stars are attached.
func (u *referralUC) claimSubscription(ctx context.Context, candidateID int64) {
	first, err := u.ledger.ClaimSubscriptionReward(ctx, candidateID)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		u.log.Warn().Err(err).Int64("tg_id", candidateID).Msg("subscription flag not set")
		return
	}
	if first {
		u.notify.NotifyCandidateVerified(ctx, candidateID)
	}
}

// CheckNow answers the "check subscription" button: missing channels are
// reported, and a verified candidate goes through a credit attempt.
func (u *referralUC) CheckNow(ctx context.Context, candidateID int64) (CheckResult, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.CheckNow")()

	missing := u.gate.MissingChannels(ctx, candidateID)
	if len(missing) > 0 {
		return CheckResult{Missing: missing}, nil
	}
	res, err := u.AttemptCredit(ctx, candidateID, model.CreditViaCheckNow)
	out := CheckResult{Verified: res.Skipped != SkipNotVerified, Credit: res}
	if err == nil && out.Verified {
		u.claimSubscription(ctx, candidateID)
	}
	return out, err
}

func (u *referralUC) MissingChannels(ctx context.Context, candidateID int64) []model.RequiredChannel {
	return u.gate.MissingChannels(ctx, candidateID)
}

// ManualCredit is the operator repair path. It links the candidate to
// inviterID when no link exists (inviterID 0 keeps the current link) and
// credits without consulting the gate.
func (u *referralUC) ManualCredit(ctx context.Context, candidateID, inviterID int64) (CreditResult, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.ManualCredit")()

	if _, ok := u.ledger.Account(candidateID); !ok {
		return CreditResult{}, domain.ErrNotFound
	}
	unlock, err := u.lock(ctx, candidateID)
	if err != nil {
		return CreditResult{}, err
	}
	defer unlock()

	if inviterID != 0 {
		if _, err := u.ledger.LinkReferral(ctx, candidateID, inviterID); err != nil &&
			!errors.Is(err, domain.ErrPersistence) {
			return CreditResult{}, err
		}
	}
	f := u.ledger.Funnel(candidateID)
	switch {
	case f.Stage == model.StageUnlinked:
		return CreditResult{Skipped: SkipNoInviter}, domain.ErrInvalidTransition
	case f.IsCredited():
		return CreditResult{InviterID: f.InviterID, Skipped: SkipAlreadyCredited}, domain.ErrAlreadyCredited
	}
	return u.credit(ctx, candidateID, model.CreditViaManual)
}

func (u *referralUC) ResetCredited(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.ResetCredited")()
	n, err := u.ledger.ResetCredited(ctx)
	u.log.Warn().Int("count", n).Msg("credited set reset")
	return n, err
}

func (u *referralUC) InviteLink(ctx context.Context, accountID int64) (InviteInfo, error) {
	acc, ok := u.ledger.Account(accountID)
	if !ok {
		return InviteInfo{}, domain.ErrNotFound
	}
	edge, err := u.ledger.EnsureEdge(ctx, accountID)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return InviteInfo{}, err
	}
	return InviteInfo{
		Link:    model.InviteLink(u.botName, accountID),
		Rate:    u.ledger.RewardRate(),
		Balance: acc.Stars,
		Count:   int64(edge.Count),
	}, nil
}

func (u *referralUC) MarkBotBlocked(ctx context.Context, accountID int64) error {
	err := u.ledger.MarkRemoved(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (u *referralUC) Stats(ctx context.Context, top int) ReferralStats {
	defer logging.TraceDuration(u.log, "ReferralUC.Stats")()

	st := u.ledger.Stats()
	edges := u.ledger.Edges()
	if top > 0 && len(edges) > top {
		edges = edges[:top]
	}
	metrics.SetFunnelStages(map[model.FunnelStage]int{
		model.StageLinked:   st.Linked,
		model.StageCredited: st.Credited,
	})
	return ReferralStats{
		Accounts:      st.Accounts,
		Active:        st.ActiveAccounts,
		Linked:        st.Linked,
		Credited:      st.Credited,
		TopInviters:   edges,
		Rate:          u.ledger.RewardRate(),
		PendingWrites: u.ledger.DirtyCount(),
	}
}

func (u *referralUC) Funnel(ctx context.Context, candidateID int64) model.Funnel {
	return u.ledger.Funnel(candidateID)
}
