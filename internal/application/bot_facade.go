package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/adapter"
	"telegram-referral-rewards/internal/usecase"
)

// Callback data understood by the bot besides the withdrawal buttons.
const (
	CallbackCheck   = "cmd:check"
	CallbackLink    = "cmd:link"
	CallbackProfile = "cmd:profile"
)

// Reply is what the Telegram adapter sends back for one command.
type Reply struct {
	Text     string
	Buttons  [][]adapter.InlineButton
	Document *adapter.Document
}

func textReply(s string) Reply { return Reply{Text: s} }

// BotFacade composes usecases into high-level bot commands.
// Methods return ready-to-send replies so the Telegram adapter only forwards them.
type BotFacade struct {
	ReferralUC  usecase.ReferralUseCase
	RewardUC    usecase.RewardUseCase
	ChannelUC   usecase.ChannelUseCase
	StatsUC     usecase.StatsUseCase
	BroadcastUC usecase.BroadcastUseCase

	tr  usecase.Translator
	now func() time.Time
}

func NewBotFacade(
	referralUC usecase.ReferralUseCase,
	rewardUC usecase.RewardUseCase,
	channelUC usecase.ChannelUseCase,
	statsUC usecase.StatsUseCase,
	broadcastUC usecase.BroadcastUseCase,
	tr usecase.Translator,
) *BotFacade {
	return &BotFacade{
		ReferralUC:  referralUC,
		RewardUC:    rewardUC,
		ChannelUC:   channelUC,
		StatsUC:     statsUC,
		BroadcastUC: broadcastUC,
		tr:          tr,
		now:         time.Now,
	}
}

// ErrorText maps a usecase error to a localized message.
func (b *BotFacade) ErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrCodeNotFound):
		return b.tr.T("error_code_not_found")
	case errors.Is(err, domain.ErrCodeExhausted):
		return b.tr.T("error_code_exhausted")
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		return b.tr.T("error_code_used")
	case errors.Is(err, domain.ErrInsufficientBalance):
		return b.tr.T("error_insufficient_balance", model.MinWithdrawalStars)
	case errors.Is(err, domain.ErrWithdrawalResolved):
		return b.tr.T("error_withdrawal_resolved")
	case errors.Is(err, domain.ErrInvalidChannelID):
		return b.tr.T("error_invalid_channel_id")
	case errors.Is(err, domain.ErrInsufficientBotPermissions):
		return b.tr.T("error_bot_not_admin")
	case errors.Is(err, domain.ErrAlreadyCredited):
		return b.tr.T("error_already_credited")
	case errors.Is(err, domain.ErrInvalidTransition):
		return b.tr.T("error_not_linked")
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return b.tr.T("error_invalid_input")
	case domain.KindNotFound:
		return b.tr.T("error_not_found")
	case domain.KindConflict:
		return b.tr.T("error_already_exists")
	}
	return b.tr.T("error_generic")
}

// welcome is the main screen: one join button per required channel and the
// subscription check button.
func (b *BotFacade) welcome(ctx context.Context, key string) Reply {
	rate := b.RewardUC.RewardRate(ctx)
	var rows [][]adapter.InlineButton
	for _, ch := range b.ChannelUC.List(ctx) {
		rows = append(rows, []adapter.InlineButton{{Text: ch.Name, URL: ch.Link}})
	}
	rows = append(rows,
		[]adapter.InlineButton{{Text: b.tr.T("btn_check"), Data: CallbackCheck}},
		[]adapter.InlineButton{
			{Text: b.tr.T("btn_link"), Data: CallbackLink},
			{Text: b.tr.T("btn_profile"), Data: CallbackProfile},
		},
	)
	return Reply{Text: b.tr.T(key, rate), Buttons: rows}
}

// HandleStart registers the user, applies the invite token and either asks
// the bot-check question or shows the main screen. Operators skip the check.
func (b *BotFacade) HandleStart(ctx context.Context, ev usecase.EntryEvent, isAdmin bool) (Reply, error) {
	res, err := b.ReferralUC.Enter(ctx, ev)
	if err != nil {
		return Reply{}, fmt.Errorf("enter: %w", err)
	}
	if !res.Challenge.Passed && isAdmin {
		if _, err := b.ReferralUC.BypassChallenge(ctx, ev.CandidateID); err != nil {
			return Reply{}, fmt.Errorf("bypass challenge: %w", err)
		}
		res.Challenge.Passed = true
	}
	if !res.Challenge.Passed {
		return textReply(b.tr.T("challenge_prompt", res.Challenge.Word)), nil
	}
	return b.welcome(ctx, "start_welcome"), nil
}

// HandleChallengeAnswer treats free text as a bot-check answer. ok is false
// when the user has no open challenge.
func (b *BotFacade) HandleChallengeAnswer(ctx context.Context, tgID int64, text string) (reply Reply, ok bool) {
	out, err := b.ReferralUC.AnswerChallenge(ctx, tgID, text)
	switch {
	case err != nil:
		return Reply{}, false
	case out.JustPassed:
		return b.welcome(ctx, "challenge_passed"), true
	case out.Passed:
		return Reply{}, false
	}
	return textReply(b.tr.T("challenge_wrong", out.Word)), true
}

// HandleMenu passes the bot-check for a user pressing a menu button and
// shows the main screen.
func (b *BotFacade) HandleMenu(ctx context.Context, tgID int64) Reply {
	_, _ = b.ReferralUC.BypassChallenge(ctx, tgID)
	return b.welcome(ctx, "start_welcome")
}

func (b *BotFacade) HandleHelp(isAdmin bool) Reply {
	if isAdmin {
		return textReply(b.tr.T("help_user") + "\n\n" + b.tr.T("help_admin"))
	}
	return textReply(b.tr.T("help_user"))
}

// missing lists channels the user still has to join, with join buttons and
// the check button.
func (b *BotFacade) missing(key string, channels []model.RequiredChannel) Reply {
	rows := make([][]adapter.InlineButton, 0, len(channels)+1)
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, []adapter.InlineButton{{Text: ch.Name, URL: ch.Link}})
		names = append(names, "- "+ch.Name)
	}
	rows = append(rows, []adapter.InlineButton{{Text: b.tr.T("btn_check"), Data: CallbackCheck}})
	return Reply{Text: b.tr.T(key, strings.Join(names, "\n")), Buttons: rows}
}

// HandleLink shows the invite link once the user has joined every required
// channel.
func (b *BotFacade) HandleLink(ctx context.Context, tgID int64) (Reply, error) {
	if missing := b.ReferralUC.MissingChannels(ctx, tgID); len(missing) > 0 {
		return b.missing("link_locked", missing), nil
	}
	info, err := b.ReferralUC.InviteLink(ctx, tgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return textReply(b.tr.T("error_start_first")), nil
		}
		return Reply{}, fmt.Errorf("invite link: %w", err)
	}
	return textReply(b.tr.T("link_info", info.Link, info.Rate, info.Count, info.Balance)), nil
}

func (b *BotFacade) HandleProfile(ctx context.Context, tgID int64) Reply {
	p, ok := b.StatsUC.Profile(ctx, tgID)
	if !ok {
		return textReply(b.tr.T("error_start_first"))
	}
	inviter := b.tr.T("profile_no_inviter")
	if id, ok := p.Funnel.Inviter(); ok {
		inviter = strconv.FormatInt(id, 10)
	}
	text := b.tr.T("profile_info", p.Account.Name(), p.Account.Stars, p.Invited, p.Rate, inviter)
	if p.CanWithdraw {
		text += "\n" + b.tr.T("profile_can_withdraw", model.MinWithdrawalStars)
	} else {
		text += "\n" + b.tr.T("profile_cannot_withdraw", model.MinWithdrawalStars)
	}
	return textReply(text)
}

// HandleCheck runs the subscription check for the "check" button.
func (b *BotFacade) HandleCheck(ctx context.Context, tgID int64) (Reply, error) {
	res, err := b.ReferralUC.CheckNow(ctx, tgID)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return Reply{}, fmt.Errorf("check now: %w", err)
	}
	if len(res.Missing) > 0 {
		return b.missing("check_missing", res.Missing), nil
	}
	if !res.Verified {
		return textReply(b.tr.T("check_unverified")), nil
	}
	return textReply(b.tr.T("check_ok")), nil
}

func (b *BotFacade) HandleRedeem(ctx context.Context, tgID int64, code string) Reply {
	res, err := b.RewardUC.RedeemCode(ctx, tgID, code)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("redeem_ok", res.Code, res.Stars, res.NewBalance))
}

func (b *BotFacade) HandleWithdraw(ctx context.Context, tgID int64, amountArg string) Reply {
	amount, err := strconv.ParseInt(strings.TrimSpace(amountArg), 10, 64)
	if err != nil || amount <= 0 {
		return textReply(b.tr.T("withdraw_usage", model.MinWithdrawalStars))
	}
	w, err := b.RewardUC.RequestWithdrawal(ctx, tgID, amount)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("withdraw_requested", w.Amount, w.ID))
}

// ---- operator commands ----

func (b *BotFacade) HandleReferralStats(ctx context.Context, topArg string) Reply {
	top := 10
	if n, err := strconv.Atoi(strings.TrimSpace(topArg)); err == nil && n > 0 {
		top = n
	}
	st := b.ReferralUC.Stats(ctx, top)
	var sb strings.Builder
	sb.WriteString(b.tr.T("admin_referral_stats", st.Accounts, st.Active, st.Linked, st.Credited, st.Rate, st.PendingWrites))
	for i, e := range st.TopInviters {
		fmt.Fprintf(&sb, "\n%d. %s (%d): %d", i+1, e.InviterName, e.InviterID, e.Count)
	}
	return textReply(sb.String())
}

// HandleStats reports ledger totals and accounts idle for 30 days.
func (b *BotFacade) HandleStats(ctx context.Context) Reply {
	t := b.StatsUC.Totals(ctx)
	inactive := b.StatsUC.InactiveAccounts(ctx, b.now().Add(-30*24*time.Hour))
	return textReply(b.tr.T("admin_totals",
		t.Accounts, t.ActiveAccounts, t.RemovedAccounts, inactive,
		t.Inviters, t.Credited, t.TotalStars, t.PendingPayouts, t.Channels))
}

func (b *BotFacade) HandleExportUsers(ctx context.Context) Reply {
	doc := b.StatsUC.ExportAccounts(ctx)
	return Reply{Document: &doc}
}

func (b *BotFacade) HandleExportReferrals(ctx context.Context) Reply {
	doc := b.StatsUC.ExportReferrals(ctx)
	return Reply{Document: &doc}
}

func (b *BotFacade) HandleDebugReferrals(ctx context.Context, limitArg string) Reply {
	limit := 50
	if n, err := strconv.Atoi(strings.TrimSpace(limitArg)); err == nil && n > 0 {
		limit = n
	}
	return textReply(b.StatsUC.DebugDump(ctx, limit))
}

func (b *BotFacade) HandleResetCredited(ctx context.Context) Reply {
	n, err := b.ReferralUC.ResetCredited(ctx)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("admin_reset_done", n))
}

// HandleFixUser credits a candidate by hand: "<candidate_id> [inviter_id]".
func (b *BotFacade) HandleFixUser(ctx context.Context, args string) Reply {
	f := strings.Fields(args)
	if len(f) == 0 || len(f) > 2 {
		return textReply(b.tr.T("admin_fix_usage"))
	}
	candidate, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return textReply(b.tr.T("admin_fix_usage"))
	}
	var inviter int64
	if len(f) == 2 {
		if inviter, err = strconv.ParseInt(f[1], 10, 64); err != nil {
			return textReply(b.tr.T("admin_fix_usage"))
		}
	}
	res, err := b.ReferralUC.ManualCredit(ctx, candidate, inviter)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("admin_fix_done", candidate, res.InviterID, res.Amount, res.NewBalance))
}

func (b *BotFacade) HandleCheckRights(ctx context.Context) (Reply, error) {
	rights, err := b.ChannelUC.AuditBotRights(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("audit bot rights: %w", err)
	}
	if len(rights) == 0 {
		return textReply(b.tr.T("admin_no_channels")), nil
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("admin_rights_header"))
	for _, r := range rights {
		mark := "OK"
		switch {
		case r.Err != nil:
			mark = "ERR"
		case !r.IsAdmin:
			mark = "LOST"
		}
		fmt.Fprintf(&sb, "\n[%s] %s (%d) %s", mark, r.Channel.Name, r.Channel.ChatID, r.BotStatus)
	}
	return textReply(sb.String()), nil
}

func (b *BotFacade) HandleSetRate(ctx context.Context, arg string) Reply {
	n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return textReply(b.tr.T("admin_set_rate_usage"))
	}
	if err := b.RewardUC.SetRewardRate(ctx, n); err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("admin_rate_set", n))
}

// HandleAddStars tops up an account: "<account_id> <stars>".
func (b *BotFacade) HandleAddStars(ctx context.Context, args string) Reply {
	f := strings.Fields(args)
	if len(f) != 2 {
		return textReply(b.tr.T("admin_add_stars_usage"))
	}
	id, err1 := strconv.ParseInt(f[0], 10, 64)
	n, err2 := strconv.ParseInt(f[1], 10, 64)
	if err1 != nil || err2 != nil {
		return textReply(b.tr.T("admin_add_stars_usage"))
	}
	bal, err := b.RewardUC.AddStars(ctx, id, n)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("admin_stars_added", n, id, bal))
}

// HandleCreateCode: "<code> <stars> <single|unlimited|capped> [limit]".
func (b *BotFacade) HandleCreateCode(ctx context.Context, args string) Reply {
	f := strings.Fields(args)
	if len(f) < 3 || len(f) > 4 {
		return textReply(b.tr.T("admin_create_code_usage"))
	}
	stars, err := strconv.ParseInt(f[1], 10, 64)
	if err != nil {
		return textReply(b.tr.T("admin_create_code_usage"))
	}
	policy, err := model.ParseCodePolicy(f[2])
	if err != nil {
		return textReply(b.tr.T("admin_create_code_usage"))
	}
	limit := 0
	if len(f) == 4 {
		if limit, err = strconv.Atoi(f[3]); err != nil {
			return textReply(b.tr.T("admin_create_code_usage"))
		}
	}
	c, err := b.RewardUC.CreateCode(ctx, f[0], stars, policy, limit)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("admin_code_created", c.Code, c.Stars, string(c.Policy)))
}

func (b *BotFacade) HandleCodes(ctx context.Context) Reply {
	codes := b.RewardUC.ListCodes(ctx)
	if len(codes) == 0 {
		return textReply(b.tr.T("admin_no_codes"))
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("admin_codes_header"))
	for _, c := range codes {
		fmt.Fprintf(&sb, "\n%s: %d stars, %s, used %d", c.Code, c.Stars, c.Policy, c.Activations)
		if c.Policy == model.CodeCapped {
			fmt.Fprintf(&sb, "/%d", c.Cap)
		}
	}
	return textReply(sb.String())
}

func (b *BotFacade) HandleChannels(ctx context.Context) Reply {
	chs := b.ChannelUC.List(ctx)
	if len(chs) == 0 {
		return textReply(b.tr.T("admin_no_channels"))
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("admin_channels_header"))
	for _, ch := range chs {
		fmt.Fprintf(&sb, "\n%d. %s (%d) %s", ch.Position+1, ch.Name, ch.ChatID, ch.Link)
	}
	return textReply(sb.String())
}

// HandleAddChannel: "<chat_id> <link> [name...]".
func (b *BotFacade) HandleAddChannel(ctx context.Context, args string) Reply {
	f := strings.Fields(args)
	if len(f) < 2 {
		return textReply(b.tr.T("admin_add_channel_usage"))
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return textReply(b.ErrorText(domain.ErrInvalidChannelID))
	}
	ch, err := b.ChannelUC.Add(ctx, id, f[1], strings.Join(f[2:], " "))
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("admin_channel_added", ch.Name, ch.ChatID))
}

// HandleEditChannel: "<chat_id> <new_chat_id|-> [link|-] [name...]".
func (b *BotFacade) HandleEditChannel(ctx context.Context, args string) Reply {
	f := strings.Fields(args)
	if len(f) < 2 {
		return textReply(b.tr.T("admin_edit_channel_usage"))
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return textReply(b.ErrorText(domain.ErrInvalidChannelID))
	}
	var newID int64
	if f[1] != "-" {
		if newID, err = strconv.ParseInt(f[1], 10, 64); err != nil {
			return textReply(b.ErrorText(domain.ErrInvalidChannelID))
		}
	}
	var link, name string
	if len(f) > 2 && f[2] != "-" {
		link = f[2]
	}
	if len(f) > 3 {
		name = strings.Join(f[3:], " ")
	}
	ch, err := b.ChannelUC.Edit(ctx, id, newID, link, name)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("admin_channel_edited", ch.Name, ch.ChatID))
}

func (b *BotFacade) HandleRemoveChannel(ctx context.Context, arg string) Reply {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return textReply(b.tr.T("admin_remove_channel_usage"))
	}
	if err := b.ChannelUC.Remove(ctx, id); err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("admin_channel_removed", id))
}

// HandleBroadcast queues message for every active account. report receives
// the summary text when delivery finishes.
func (b *BotFacade) HandleBroadcast(ctx context.Context, message string, report func(string)) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return textReply(b.tr.T("admin_broadcast_usage")), nil
	}
	n, err := b.BroadcastUC.Broadcast(ctx, message, func(st usecase.BroadcastStats) {
		if report != nil {
			report(b.tr.T("admin_broadcast_done", st.Sent, st.Failed, st.Blocked, st.Total))
		}
	})
	if err != nil {
		return Reply{}, fmt.Errorf("broadcast: %w", err)
	}
	return textReply(b.tr.T("admin_broadcast_started", n)), nil
}

// HandleWithdrawals lists pending withdrawals with resolve buttons.
func (b *BotFacade) HandleWithdrawals(ctx context.Context) Reply {
	pending := b.RewardUC.ListWithdrawals(ctx, true)
	if len(pending) == 0 {
		return textReply(b.tr.T("admin_no_withdrawals"))
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("admin_withdrawals_header"))
	rows := make([][]adapter.InlineButton, 0, len(pending))
	for _, w := range pending {
		fmt.Fprintf(&sb, "\n%s: %d stars from %d (%s)", w.ID, w.Amount, w.AccountID, w.CreatedAt.UTC().Format(time.RFC3339))
		rows = append(rows, []adapter.InlineButton{
			{Text: fmt.Sprintf("%s %d", b.tr.T("btn_approve"), w.Amount), Data: usecase.CallbackWithdrawApprove + w.ID},
			{Text: b.tr.T("btn_reject"), Data: usecase.CallbackWithdrawReject + w.ID},
		})
	}
	return Reply{Text: sb.String(), Buttons: rows}
}

func (b *BotFacade) HandleResolveWithdrawal(ctx context.Context, id string, operatorID int64, approve bool) Reply {
	var (
		w   *model.Withdrawal
		err error
	)
	if approve {
		w, err = b.RewardUC.ApproveWithdrawal(ctx, id, operatorID)
	} else {
		w, err = b.RewardUC.RejectWithdrawal(ctx, id, operatorID)
	}
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return textReply(b.ErrorText(err))
	}
	return textReply(b.tr.T("admin_withdrawal_resolved", w.ID, string(w.Status)))
}
