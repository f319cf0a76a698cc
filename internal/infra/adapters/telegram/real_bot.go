package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-referral-rewards/internal/application"
	"telegram-referral-rewards/internal/config"
	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/ports/adapter"
	"telegram-referral-rewards/internal/domain/ports/repository"
	"telegram-referral-rewards/internal/infra/logging"
	"telegram-referral-rewards/internal/infra/metrics"
	red "telegram-referral-rewards/internal/infra/redis"
	"telegram-referral-rewards/internal/usecase"
)

var (
	_ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)
	_ adapter.MembershipChecker  = (*RealTelegramBotAdapter)(nil)
)

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// allowedUpdates must include chat_member; Telegram does not send it by default.
var allowedUpdates = []string{"message", "callback_query", "chat_member", "my_chat_member"}

// RealTelegramBotAdapter uses tgbotapi to poll updates and delegates to BotFacade.
type RealTelegramBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	facade      *application.BotFacade
	states      repository.StateRepository
	rateLimiter RateLimiter
	tr          usecase.Translator
	log         *zerolog.Logger

	adminIDsMap   map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
}

// NewBotAPI connects to Telegram. The adapter is built separately so the
// membership checker can be wired into the usecases before the facade exists.
func NewBotAPI(cfg *config.BotConfig) (*tgbotapi.BotAPI, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return bot, nil
}

func NewRealTelegramBotAdapter(
	bot *tgbotapi.BotAPI,
	cfg *config.BotConfig,
	states repository.StateRepository,
	rateLimiter RateLimiter,
	tr usecase.Translator,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if bot == nil {
		return nil, errors.New("bot api is nil")
	}
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if states == nil {
		return nil, errors.New("state repository is nil")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	adminMap := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}
	l := logger.With().Str("component", "TelegramBot").Logger()
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		states:        states,
		rateLimiter:   rateLimiter,
		tr:            tr,
		log:           &l,
		adminIDsMap:   adminMap,
		updateWorkers: workers,
	}, nil
}

// SetFacade attaches the command handlers. It must be called before StartPolling.
func (r *RealTelegramBotAdapter) SetFacade(f *application.BotFacade) {
	r.facade = f
}

// StartPolling fetches updates and processes them on updateWorkers goroutines
// until ctx is canceled.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.facade == nil {
		return errors.New("bot facade is nil")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = allowedUpdates
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up, ok := <-updateChan:
					if !ok {
						return
					}
					r.dispatch(ctx, id, up)
				}
			}
		}(i + 1)
	}

	r.log.Info().Int("workers", r.updateWorkers).Str("bot", r.bot.Self.UserName).Msg("polling started")
	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			r.log.Info().Msg("polling stopped")
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// dispatch tags the update with a trace id and recovers handler panics so one
// bad update cannot kill a worker.
func (r *RealTelegramBotAdapter) dispatch(ctx context.Context, workerID int, up tgbotapi.Update) {
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	log := logging.With(ctx, r.log).With().Int("worker", workerID).Int("update_id", up.UpdateID).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("update handler panicked")
		}
	}()
	if err := r.handleUpdate(ctx, up); err != nil {
		log.Warn().Err(err).Msg("update handling failed")
	}
}

func (r *RealTelegramBotAdapter) isAdmin(tgID int64) bool {
	_, ok := r.adminIDsMap[tgID]
	return ok
}

// ---- outbound ----

// classifySendError maps Telegram's "blocked by the user" refusal to the port error.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.Code == 403 {
		return fmt.Errorf("%w: %s", adapter.ErrBlockedByUser, tgErr.Message)
	}
	if strings.Contains(err.Error(), "bot was blocked by the user") {
		return fmt.Errorf("%w: %v", adapter.ErrBlockedByUser, err)
	}
	return err
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(tgID, text)
	msg.DisableWebPagePreview = true
	_, err := r.bot.Send(msg)
	return classifySendError(err)
}

// SendButtons sends a message with inline buttons.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(tgID, text)
	msg.DisableWebPagePreview = true
	if kb, ok := inlineKeyboard(rows); ok {
		msg.ReplyMarkup = kb
	}
	_, err := r.bot.Send(msg)
	return classifySendError(err)
}

func inlineKeyboard(rows [][]adapter.InlineButton) (tgbotapi.InlineKeyboardMarkup, bool) {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, kr)
	}
	if len(kbRows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...), true
}

func (r *RealTelegramBotAdapter) SendDocument(ctx context.Context, tgID int64, doc adapter.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := tgbotapi.NewDocument(tgID, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Content})
	d.Caption = doc.Caption
	_, err := r.bot.Send(d)
	return classifySendError(err)
}

// sendReply forwards a facade reply, picking the right Telegram call.
func (r *RealTelegramBotAdapter) sendReply(ctx context.Context, chatID int64, reply application.Reply) error {
	switch {
	case reply.Document != nil:
		return r.SendDocument(ctx, chatID, *reply.Document)
	case len(reply.Buttons) > 0:
		return r.SendButtons(ctx, chatID, reply.Text, reply.Buttons)
	case strings.TrimSpace(reply.Text) != "":
		return r.SendMessage(ctx, chatID, reply.Text)
	}
	return nil
}

// ---- membership ----

func (r *RealTelegramBotAdapter) MemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := r.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return "", fmt.Errorf("%w: getChatMember %d/%d: %v", domain.ErrExternalQuery, chatID, userID, err)
	}
	return m.Status, nil
}

func (r *RealTelegramBotAdapter) BotStatus(ctx context.Context, chatID int64) (string, error) {
	return r.MemberStatus(ctx, chatID, r.bot.Self.ID)
}

// SetMenuCommands installs the command list for one chat; operators get the admin commands too.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	cmds := menuCommands(r.tr, isAdmin)
	scope := tgbotapi.NewBotCommandScopeChat(chatID)
	_, err := r.bot.Request(tgbotapi.NewSetMyCommandsWithScope(scope, cmds...))
	return err
}

func menuCommands(tr usecase.Translator, isAdmin bool) []tgbotapi.BotCommand {
	user := []string{"start", "link", "profile", "check", "redeem", "withdraw", "help"}
	out := make([]tgbotapi.BotCommand, 0, len(user)+len(adminCommands))
	for _, c := range user {
		out = append(out, tgbotapi.BotCommand{Command: c, Description: tr.T("menu_" + c)})
	}
	if isAdmin {
		for _, c := range adminCommands {
			out = append(out, tgbotapi.BotCommand{Command: c, Description: tr.T("menu_" + c)})
		}
	}
	return out
}

// ---- inbound ----

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return r.handleQuery(ctx, update.CallbackQuery)
	case update.ChatMember != nil:
		return r.handleChatMember(ctx, update.ChatMember)
	case update.MyChatMember != nil:
		return r.handleMyChatMember(ctx, update.MyChatMember)
	case update.Message != nil:
		return r.handleMessage(ctx, update.Message)
	}
	return nil
}

// handleChatMember feeds join events in required channels to the credit engine.
func (r *RealTelegramBotAdapter) handleChatMember(ctx context.Context, ev *tgbotapi.ChatMemberUpdated) error {
	if ev.NewChatMember.User == nil {
		return nil
	}
	res, err := r.facade.ReferralUC.OnMembershipChange(ctx, usecase.MembershipChangeEvent{
		ChatID:    ev.Chat.ID,
		UserID:    ev.NewChatMember.User.ID,
		OldStatus: ev.OldChatMember.Status,
		NewStatus: ev.NewChatMember.Status,
	})
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		return fmt.Errorf("membership change: %w", err)
	}
	if res.Credited {
		r.log.Info().Int64("tg_id", ev.NewChatMember.User.ID).Int64("channel_id", ev.Chat.ID).Msg("credited on join")
	}
	return nil
}

// handleMyChatMember marks accounts that blocked the bot in private chat.
func (r *RealTelegramBotAdapter) handleMyChatMember(ctx context.Context, ev *tgbotapi.ChatMemberUpdated) error {
	if !ev.Chat.IsPrivate() {
		if ev.NewChatMember.Status != ev.OldChatMember.Status {
			r.log.Info().Int64("chat_id", ev.Chat.ID).Str("status", ev.NewChatMember.Status).Msg("bot status changed in chat")
		}
		return nil
	}
	if ev.NewChatMember.Status != "kicked" {
		return nil
	}
	r.log.Info().Int64("tg_id", ev.Chat.ID).Msg("bot blocked by user")
	return r.facade.ReferralUC.MarkBotBlocked(ctx, ev.Chat.ID)
}

// allow applies the per-user rate limit. Limiter errors fail open.
func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, key string, limit int) bool {
	if r.rateLimiter == nil || limit <= 0 {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(tgID, key), limit, time.Minute)
	if err != nil {
		r.log.Warn().Err(err).Int64("tg_id", tgID).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

func (r *RealTelegramBotAdapter) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.Chat == nil || !message.Chat.IsPrivate() {
		return nil
	}
	tgID := message.From.ID
	key := "message"
	if message.IsCommand() {
		key = "/" + message.Command()
	}
	if !r.allow(ctx, tgID, key, r.cfg.RateLimit) {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_rate_limited"))
	}

	if message.IsCommand() {
		metrics.IncTelegramCommand(key)
		if h, ok := r.commandRoutes()[message.Command()]; ok {
			return h(ctx, message)
		}
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_unknown_command"))
	}
	return r.handleText(ctx, message)
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	chatID := query.From.ID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	data := strings.TrimSpace(query.Data)

	if !r.allow(ctx, query.From.ID, "cb:"+data, r.cfg.RateLimit) {
		return r.SendMessage(ctx, chatID, r.tr.T("error_rate_limited"))
	}

	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, query.From, chatID, data)
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, query.From, chatID, strings.TrimPrefix(data, pr.Prefix))
		}
	}
	return fmt.Errorf("unknown callback data %q", data)
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
