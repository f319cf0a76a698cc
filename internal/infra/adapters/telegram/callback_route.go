package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-referral-rewards/internal/application"
	"telegram-referral-rewards/internal/infra/metrics"
	"telegram-referral-rewards/internal/usecase"
)

// cbHandler receives the presser, the chat to answer in and the callback data
// (with the prefix stripped for prefix routes).
type cbHandler func(ctx context.Context, from *tgbotapi.User, chatID int64, data string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		"cmd:menu":                  r.menuCBRoute,
		application.CallbackCheck:   r.menuButton(r.checkCBRoute),
		application.CallbackLink:    r.menuButton(r.linkCBRoute),
		application.CallbackProfile: r.menuButton(r.profileCBRoute),
	}
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: usecase.CallbackWithdrawApprove, Fn: r.adminOnlyCB("wd_ok", r.approveWithdrawalCBRoute)},
		{Prefix: usecase.CallbackWithdrawReject, Fn: r.adminOnlyCB("wd_no", r.rejectWithdrawalCBRoute)},
	}
}

func (r *RealTelegramBotAdapter) adminOnlyCB(name string, next cbHandler) cbHandler {
	return func(ctx context.Context, from *tgbotapi.User, chatID int64, data string) error {
		if !r.isAdmin(from.ID) {
			metrics.IncAdminCommand(name, "unauthorized")
			return r.SendMessage(ctx, chatID, r.tr.T("error_unauthorized"))
		}
		metrics.IncAdminCommand(name, "authorized")
		return next(ctx, from, chatID, data)
	}
}

func (r *RealTelegramBotAdapter) menuCBRoute(ctx context.Context, from *tgbotapi.User, chatID int64, _ string) error {
	return r.sendReply(ctx, chatID, r.facade.HandleMenu(ctx, from.ID))
}

// menuButton counts pressing a menu button as passing the bot-check.
func (r *RealTelegramBotAdapter) menuButton(next cbHandler) cbHandler {
	return func(ctx context.Context, from *tgbotapi.User, chatID int64, data string) error {
		r.passChallenge(ctx, from.ID)
		return next(ctx, from, chatID, data)
	}
}

// checkCBRoute is the "check subscription" button.
func (r *RealTelegramBotAdapter) checkCBRoute(ctx context.Context, from *tgbotapi.User, chatID int64, _ string) error {
	reply, err := r.facade.HandleCheck(ctx, from.ID)
	if err != nil {
		r.log.Error().Err(err).Int64("tg_id", from.ID).Msg("check failed")
		return r.SendMessage(ctx, chatID, r.tr.T("error_generic"))
	}
	return r.sendReply(ctx, chatID, reply)
}

func (r *RealTelegramBotAdapter) linkCBRoute(ctx context.Context, from *tgbotapi.User, chatID int64, _ string) error {
	reply, err := r.facade.HandleLink(ctx, from.ID)
	if err != nil {
		r.log.Error().Err(err).Int64("tg_id", from.ID).Msg("link failed")
		return r.SendMessage(ctx, chatID, r.tr.T("error_generic"))
	}
	return r.sendReply(ctx, chatID, reply)
}

func (r *RealTelegramBotAdapter) profileCBRoute(ctx context.Context, from *tgbotapi.User, chatID int64, _ string) error {
	return r.sendReply(ctx, chatID, r.facade.HandleProfile(ctx, from.ID))
}

func (r *RealTelegramBotAdapter) approveWithdrawalCBRoute(ctx context.Context, from *tgbotapi.User, chatID int64, id string) error {
	return r.sendReply(ctx, chatID, r.facade.HandleResolveWithdrawal(ctx, id, from.ID, true))
}

func (r *RealTelegramBotAdapter) rejectWithdrawalCBRoute(ctx context.Context, from *tgbotapi.User, chatID int64, id string) error {
	return r.sendReply(ctx, chatID, r.facade.HandleResolveWithdrawal(ctx, id, from.ID, false))
}
