package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-referral-rewards/internal/domain/ports/repository"
	"telegram-referral-rewards/internal/infra/metrics"
	"telegram-referral-rewards/internal/usecase"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// Conversation steps for commands sent without their argument.
const (
	stepAwaitingCode      = "awaiting_code"
	stepAwaitingWithdraw  = "awaiting_withdraw_amount"
	stepAwaitingBroadcast = "awaiting_broadcast"
)

// adminCommands is the operator menu, in display order.
var adminCommands = []string{
	"referrals", "stats", "export_users", "export_referrals", "debug_referrals",
	"reset_credited", "fix_user", "check_rights", "set_rate", "add_stars",
	"create_code", "codes", "channels", "add_channel", "edit_channel",
	"remove_channel", "broadcast", "withdrawals",
}

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":    r.handleStartCommand,
		"help":     r.handleHelpCommand,
		"link":     r.handleLinkCommand,
		"profile":  r.handleProfileCommand,
		"check":    r.handleCheckCommand,
		"redeem":   r.handleRedeemCommand,
		"withdraw": r.handleWithdrawCommand,
		"cancel":   r.handleCancelCommand,

		// These handlers are wrapped in our adminOnly middleware.
		"referrals":        r.adminOnly(r.handleReferralsCommand),
		"stats":            r.adminOnly(r.handleStatsCommand),
		"export_users":     r.adminOnly(r.handleExportUsersCommand),
		"export_referrals": r.adminOnly(r.handleExportReferralsCommand),
		"debug_referrals":  r.adminOnly(r.handleDebugReferralsCommand),
		"reset_credited":   r.adminOnly(r.handleResetCreditedCommand),
		"fix_user":         r.adminOnly(r.handleFixUserCommand),
		"check_rights":     r.adminOnly(r.handleCheckRightsCommand),
		"set_rate":         r.adminOnly(r.handleSetRateCommand),
		"add_stars":        r.adminOnly(r.handleAddStarsCommand),
		"create_code":      r.adminOnly(r.handleCreateCodeCommand),
		"codes":            r.adminOnly(r.handleCodesCommand),
		"channels":         r.adminOnly(r.handleChannelsCommand),
		"add_channel":      r.adminOnly(r.handleAddChannelCommand),
		"edit_channel":     r.adminOnly(r.handleEditChannelCommand),
		"remove_channel":   r.adminOnly(r.handleRemoveChannelCommand),
		"broadcast":        r.adminOnly(r.handleBroadcastCommand),
		"withdrawals":      r.adminOnly(r.handleWithdrawalsCommand),
	}
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.isAdmin(message.From.ID) {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_unauthorized"))
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		r.log.Info().Int64("tg_id", message.From.ID).Str("command", message.Command()).Msg("admin command")
		r.passChallenge(ctx, message.From.ID)
		return next(ctx, message)
	}
}

// passChallenge marks the bot-check passed for operators and menu presses.
func (r *RealTelegramBotAdapter) passChallenge(ctx context.Context, tgID int64) {
	if _, err := r.facade.ReferralUC.BypassChallenge(ctx, tgID); err != nil {
		r.log.Warn().Err(err).Int64("tg_id", tgID).Msg("bot-check bypass failed")
	}
}

// handleStartCommand registers the user and applies the invite payload.
func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	isAdmin := r.isAdmin(message.From.ID)
	_ = r.states.ClearState(ctx, message.From.ID)
	reply, err := r.facade.HandleStart(ctx, usecase.EntryEvent{
		CandidateID: message.From.ID,
		Username:    message.From.UserName,
		DisplayName: displayName(message.From),
		Token:       strings.TrimSpace(message.CommandArguments()),
	}, isAdmin)
	if err != nil {
		r.log.Error().Err(err).Int64("tg_id", message.From.ID).Msg("start failed")
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_generic"))
	}
	if err := r.SetMenuCommands(ctx, message.Chat.ID, isAdmin); err != nil {
		r.log.Warn().Err(err).Int64("tg_id", message.From.ID).Msg("failed to set dynamic menu commands")
	}
	return r.sendReply(ctx, message.Chat.ID, reply)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleHelp(r.isAdmin(message.From.ID)))
}

func (r *RealTelegramBotAdapter) handleLinkCommand(ctx context.Context, message *tgbotapi.Message) error {
	reply, err := r.facade.HandleLink(ctx, message.From.ID)
	if err != nil {
		r.log.Error().Err(err).Int64("tg_id", message.From.ID).Msg("link failed")
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_generic"))
	}
	return r.sendReply(ctx, message.Chat.ID, reply)
}

func (r *RealTelegramBotAdapter) handleProfileCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleProfile(ctx, message.From.ID))
}

func (r *RealTelegramBotAdapter) handleCheckCommand(ctx context.Context, message *tgbotapi.Message) error {
	reply, err := r.facade.HandleCheck(ctx, message.From.ID)
	if err != nil {
		r.log.Error().Err(err).Int64("tg_id", message.From.ID).Msg("check failed")
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_generic"))
	}
	return r.sendReply(ctx, message.Chat.ID, reply)
}

// awaitArgument runs fn with the command argument, or parks the user in step
// until the next text message carries it.
func (r *RealTelegramBotAdapter) awaitArgument(ctx context.Context, message *tgbotapi.Message, step, promptKey string, fn func(arg string) error) error {
	arg := strings.TrimSpace(message.CommandArguments())
	if arg != "" {
		return fn(arg)
	}
	if err := r.states.SetState(ctx, message.From.ID, &repository.ConversationState{Step: step}); err != nil {
		r.log.Warn().Err(err).Int64("tg_id", message.From.ID).Str("step", step).Msg("failed to save conversation state")
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_generic"))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T(promptKey))
}

func (r *RealTelegramBotAdapter) handleRedeemCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.awaitArgument(ctx, message, stepAwaitingCode, "prompt_code", func(code string) error {
		return r.sendReply(ctx, message.Chat.ID, r.facade.HandleRedeem(ctx, message.From.ID, code))
	})
}

func (r *RealTelegramBotAdapter) handleWithdrawCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.awaitArgument(ctx, message, stepAwaitingWithdraw, "prompt_withdraw_amount", func(amount string) error {
		return r.sendReply(ctx, message.Chat.ID, r.facade.HandleWithdraw(ctx, message.From.ID, amount))
	})
}

func (r *RealTelegramBotAdapter) handleCancelCommand(ctx context.Context, message *tgbotapi.Message) error {
	_ = r.states.ClearState(ctx, message.From.ID)
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("cancelled"))
}

// handleText routes free text: a pending conversation step first, then the
// bot-check answer.
func (r *RealTelegramBotAdapter) handleText(ctx context.Context, message *tgbotapi.Message) error {
	text := strings.TrimSpace(message.Text)
	if text == "" {
		return nil
	}
	tgID := message.From.ID

	state, err := r.states.GetState(ctx, tgID)
	if err != nil {
		r.log.Warn().Err(err).Int64("tg_id", tgID).Msg("conversation state lookup failed")
	}
	if state != nil {
		_ = r.states.ClearState(ctx, tgID)
		switch state.Step {
		case stepAwaitingCode:
			return r.sendReply(ctx, message.Chat.ID, r.facade.HandleRedeem(ctx, tgID, text))
		case stepAwaitingWithdraw:
			return r.sendReply(ctx, message.Chat.ID, r.facade.HandleWithdraw(ctx, tgID, text))
		case stepAwaitingBroadcast:
			if r.isAdmin(tgID) {
				return r.broadcast(ctx, message.Chat.ID, message.Text)
			}
		}
	}

	if reply, ok := r.facade.HandleChallengeAnswer(ctx, tgID, text); ok {
		return r.sendReply(ctx, message.Chat.ID, reply)
	}
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_unknown_input"))
}

// ---- operator commands ----

func (r *RealTelegramBotAdapter) handleReferralsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleReferralStats(ctx, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleStats(ctx))
}

func (r *RealTelegramBotAdapter) handleExportUsersCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleExportUsers(ctx))
}

func (r *RealTelegramBotAdapter) handleExportReferralsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleExportReferrals(ctx))
}

func (r *RealTelegramBotAdapter) handleDebugReferralsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleDebugReferrals(ctx, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleResetCreditedCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleResetCredited(ctx))
}

func (r *RealTelegramBotAdapter) handleFixUserCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleFixUser(ctx, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleCheckRightsCommand(ctx context.Context, message *tgbotapi.Message) error {
	reply, err := r.facade.HandleCheckRights(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("rights audit failed")
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_generic"))
	}
	return r.sendReply(ctx, message.Chat.ID, reply)
}

func (r *RealTelegramBotAdapter) handleSetRateCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleSetRate(ctx, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleAddStarsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleAddStars(ctx, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleCreateCodeCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleCreateCode(ctx, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleCodesCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleCodes(ctx))
}

func (r *RealTelegramBotAdapter) handleChannelsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleChannels(ctx))
}

func (r *RealTelegramBotAdapter) handleAddChannelCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleAddChannel(ctx, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleEditChannelCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleEditChannel(ctx, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleRemoveChannelCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleRemoveChannel(ctx, message.CommandArguments()))
}

func (r *RealTelegramBotAdapter) handleBroadcastCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.awaitArgument(ctx, message, stepAwaitingBroadcast, "prompt_broadcast", func(text string) error {
		return r.broadcast(ctx, message.Chat.ID, text)
	})
}

// broadcast starts delivery and reports the summary to the operator when it
// ends. The run outlives the update context.
func (r *RealTelegramBotAdapter) broadcast(ctx context.Context, chatID int64, text string) error {
	runCtx := context.WithoutCancel(ctx)
	reply, err := r.facade.HandleBroadcast(runCtx, text, func(summary string) {
		if err := r.SendMessage(runCtx, chatID, summary); err != nil {
			r.log.Warn().Err(err).Int64("tg_id", chatID).Msg("broadcast summary not delivered")
		}
	})
	if err != nil {
		r.log.Error().Err(err).Msg("broadcast failed")
		return r.SendMessage(ctx, chatID, r.tr.T("error_generic"))
	}
	return r.sendReply(ctx, chatID, reply)
}

func (r *RealTelegramBotAdapter) handleWithdrawalsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendReply(ctx, message.Chat.ID, r.facade.HandleWithdrawals(ctx))
}
