//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/adapter"
	"telegram-referral-rewards/internal/domain/ports/repository"
	"telegram-referral-rewards/internal/infra/i18n"
	"telegram-referral-rewards/internal/usecase"
)

// =============================
// Adapters
// =============================

// ---- Mock TelegramBotAdapter ----

type SentMessage struct {
	ChatID int64
	Text   string
	Rows   [][]adapter.InlineButton
	Doc    *adapter.Document
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []SentMessage

	SendMessageFunc func(ctx context.Context, chatID int64, text string) error
	SendButtonsFunc func(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) record(s SentMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, s)
}

func (m *MockTelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if m.SendMessageFunc != nil {
		if err := m.SendMessageFunc(ctx, chatID, text); err != nil {
			return err
		}
	}
	m.record(SentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	if m.SendButtonsFunc != nil {
		if err := m.SendButtonsFunc(ctx, chatID, text, rows); err != nil {
			return err
		}
	}
	m.record(SentMessage{ChatID: chatID, Text: text, Rows: rows})
	return nil
}

func (m *MockTelegramBot) SendDocument(ctx context.Context, chatID int64, doc adapter.Document) error {
	m.record(SentMessage{ChatID: chatID, Doc: &doc})
	return nil
}

// To returns messages sent to chatID.
func (m *MockTelegramBot) To(chatID int64) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMessage
	for _, s := range m.Sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// ---- Mock MembershipChecker ----

// MockMembership answers from a (chat, user) -> status table. Unknown pairs
// are "left"; entries in Fail return an error.
type MockMembership struct {
	mu       sync.Mutex
	statuses map[[2]int64]string
	bot      map[int64]string
	Fail     map[[2]int64]error
	Queries  int
}

var _ adapter.MembershipChecker = (*MockMembership)(nil)

func NewMockMembership() *MockMembership {
	return &MockMembership{
		statuses: map[[2]int64]string{},
		bot:      map[int64]string{},
		Fail:     map[[2]int64]error{},
	}
}

func (m *MockMembership) Set(chatID, userID int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[[2]int64{chatID, userID}] = status
}

func (m *MockMembership) SetBot(chatID int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bot[chatID] = status
}

func (m *MockMembership) MemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries++
	if err, ok := m.Fail[[2]int64{chatID, userID}]; ok {
		return "", err
	}
	if s, ok := m.statuses[[2]int64{chatID, userID}]; ok {
		return s, nil
	}
	return model.MemberStatusLeft, nil
}

func (m *MockMembership) BotStatus(ctx context.Context, chatID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bot[chatID]
	if !ok {
		return "", errors.New("chat not found")
	}
	return s, nil
}

// =============================
// Repositories
// =============================

// ---- Mock AccountRepository ----

type MockAccountRepo struct {
	mu   sync.Mutex
	data map[int64]model.Account

	SaveFunc func(ctx context.Context, tx repository.Tx, a *model.Account) error
}

var _ repository.AccountRepository = (*MockAccountRepo)(nil)

func NewMockAccountRepo() *MockAccountRepo {
	return &MockAccountRepo{data: map[int64]model.Account{}}
}

func (r *MockAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	if r.SaveFunc != nil {
		if err := r.SaveFunc(ctx, tx, a); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[a.ID] = *a
	return nil
}

func (r *MockAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r *MockAccountRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Account, 0, len(r.data))
	for _, a := range r.data {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Mock ReferralEdgeRepository ----

type MockEdgeRepo struct {
	mu   sync.Mutex
	data map[int64]*model.ReferralEdge
}

var _ repository.ReferralEdgeRepository = (*MockEdgeRepo)(nil)

func NewMockEdgeRepo() *MockEdgeRepo {
	return &MockEdgeRepo{data: map[int64]*model.ReferralEdge{}}
}

func (r *MockEdgeRepo) Save(ctx context.Context, tx repository.Tx, e *model.ReferralEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[e.InviterID] = e.Clone()
	return nil
}

func (r *MockEdgeRepo) FindByInviter(ctx context.Context, tx repository.Tx, inviterID int64) (*model.ReferralEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.data[inviterID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

func (r *MockEdgeRepo) List(ctx context.Context, tx repository.Tx) ([]*model.ReferralEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.ReferralEdge, 0, len(r.data))
	for _, e := range r.data {
		out = append(out, e.Clone())
	}
	return out, nil
}

// ---- Mock FunnelRepository ----

type MockFunnelRepo struct {
	mu   sync.Mutex
	data map[int64]model.Funnel

	SaveFunc func(ctx context.Context, tx repository.Tx, f model.Funnel) error
}

var _ repository.FunnelRepository = (*MockFunnelRepo)(nil)

func NewMockFunnelRepo() *MockFunnelRepo {
	return &MockFunnelRepo{data: map[int64]model.Funnel{}}
}

func (r *MockFunnelRepo) Save(ctx context.Context, tx repository.Tx, f model.Funnel) error {
	if r.SaveFunc != nil {
		if err := r.SaveFunc(ctx, tx, f); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[f.CandidateID] = f
	return nil
}

func (r *MockFunnelRepo) FindByCandidate(ctx context.Context, tx repository.Tx, candidateID int64) (model.Funnel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.data[candidateID]
	if !ok {
		return model.UnlinkedFunnel(candidateID), nil
	}
	return f, nil
}

func (r *MockFunnelRepo) List(ctx context.Context, tx repository.Tx) ([]model.Funnel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Funnel, 0, len(r.data))
	for _, f := range r.data {
		out = append(out, f)
	}
	return out, nil
}

// ---- Mock CodeRepository ----

type MockCodeRepo struct {
	mu   sync.Mutex
	data map[string]*model.RedeemableCode
}

var _ repository.CodeRepository = (*MockCodeRepo)(nil)

func NewMockCodeRepo() *MockCodeRepo {
	return &MockCodeRepo{data: map[string]*model.RedeemableCode{}}
}

func (r *MockCodeRepo) Save(ctx context.Context, tx repository.Tx, c *model.RedeemableCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[c.Code] = c.Clone()
	return nil
}

func (r *MockCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.RedeemableCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.data[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *MockCodeRepo) List(ctx context.Context, tx repository.Tx) ([]*model.RedeemableCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.RedeemableCode, 0, len(r.data))
	for _, c := range r.data {
		out = append(out, c.Clone())
	}
	return out, nil
}

// ---- Mock ChannelRepository ----

type MockChannelRepo struct {
	mu   sync.Mutex
	data []model.RequiredChannel
}

var _ repository.ChannelRepository = (*MockChannelRepo)(nil)

func (r *MockChannelRepo) ReplaceAll(ctx context.Context, tx repository.Tx, channels []model.RequiredChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append([]model.RequiredChannel(nil), channels...)
	return nil
}

func (r *MockChannelRepo) List(ctx context.Context, tx repository.Tx) ([]model.RequiredChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RequiredChannel(nil), r.data...), nil
}

// ---- Mock WithdrawalRepository ----

type MockWithdrawalRepo struct {
	mu   sync.Mutex
	data map[string]model.Withdrawal
}

var _ repository.WithdrawalRepository = (*MockWithdrawalRepo)(nil)

func NewMockWithdrawalRepo() *MockWithdrawalRepo {
	return &MockWithdrawalRepo{data: map[string]model.Withdrawal{}}
}

func (r *MockWithdrawalRepo) Save(ctx context.Context, tx repository.Tx, w *model.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[w.ID] = *w
	return nil
}

func (r *MockWithdrawalRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &w, nil
}

func (r *MockWithdrawalRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Withdrawal, 0, len(r.data))
	for _, w := range r.data {
		w := w
		out = append(out, &w)
	}
	return out, nil
}

// ---- Mock SettingsRepository ----

type MockSettingsRepo struct {
	mu   sync.Mutex
	data map[string]string
}

var _ repository.SettingsRepository = (*MockSettingsRepo)(nil)

func NewMockSettingsRepo() *MockSettingsRepo {
	return &MockSettingsRepo{data: map[string]string{}}
}

func (r *MockSettingsRepo) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value
	return nil
}

func (r *MockSettingsRepo) All(ctx context.Context, tx repository.Tx) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out, nil
}

// ---- In-memory ChallengeSessionRepository ----

type MockChallengeRepo struct {
	mu   sync.Mutex
	data map[int64]model.ChallengeSession
}

var _ repository.ChallengeSessionRepository = (*MockChallengeRepo)(nil)

func NewMockChallengeRepo() *MockChallengeRepo {
	return &MockChallengeRepo{data: map[int64]model.ChallengeSession{}}
}

func (r *MockChallengeRepo) Get(ctx context.Context, id int64) (*model.ChallengeSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MockChallengeRepo) Save(ctx context.Context, s *model.ChallengeSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[s.SessionID] = *s
	return nil
}

func (r *MockChallengeRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return nil
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Non-blocking Locker (fails when the key is held) ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ usecase.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", errors.New("locked")
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// --- Test Translator

// newTestTranslator echoes the key followed by its arguments so tests can
// assert on both.
func newTestTranslator() *i18n.Translator {
	keys := []string{
		"notify_inviter_credited", "notify_candidate_verified", "notify_withdrawal_requested",
		"notify_withdrawal_approved", "notify_withdrawal_rejected", "notify_new_account",
		"notify_new_account_direct", "notify_new_account_invited", "notify_bot_rights_lost",
		"btn_approve", "btn_reject",
	}
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: '%s%s'\n", k, k, strings.Repeat(" %v", placeholderCount(k)))
	}
	testFS := fstest.MapFS{
		"locales/en.yaml": {Data: []byte(b.String())},
	}
	translator, _ := i18n.NewTranslator(testFS, "en")
	return translator
}

func placeholderCount(key string) int {
	switch key {
	case "notify_inviter_credited", "notify_new_account":
		return 3
	case "notify_withdrawal_requested":
		return 5
	case "notify_withdrawal_approved", "notify_withdrawal_rejected":
		return 2
	case "notify_new_account_invited", "notify_bot_rights_lost":
		return 1
	default:
		return 0
	}
}

// =============================
// Fixture
// =============================

type fixture struct {
	Accounts    *MockAccountRepo
	Edges       *MockEdgeRepo
	Funnels     *MockFunnelRepo
	Codes       *MockCodeRepo
	Channels    *MockChannelRepo
	Withdrawals *MockWithdrawalRepo
	Settings    *MockSettingsRepo
	Challenges  *MockChallengeRepo
	Tx          *MockTxManager
	Members     *MockMembership
	Bot         *MockTelegramBot
	Ledger      *usecase.Ledger
	Logger      *zerolog.Logger
}

const testOperator int64 = 9000

func newFixture() *fixture {
	f := &fixture{
		Accounts:    NewMockAccountRepo(),
		Edges:       NewMockEdgeRepo(),
		Funnels:     NewMockFunnelRepo(),
		Codes:       NewMockCodeRepo(),
		Channels:    &MockChannelRepo{},
		Withdrawals: NewMockWithdrawalRepo(),
		Settings:    NewMockSettingsRepo(),
		Challenges:  NewMockChallengeRepo(),
		Tx:          NewMockTxManager(),
		Members:     NewMockMembership(),
		Bot:         &MockTelegramBot{},
		Logger:      newTestLogger(),
	}
	f.Ledger = usecase.NewLedger(f.repos(), f.Tx, model.DefaultStarsPerReferral, f.Logger)
	return f
}

func (f *fixture) repos() usecase.LedgerRepos {
	return usecase.LedgerRepos{
		Accounts:    f.Accounts,
		Edges:       f.Edges,
		Funnels:     f.Funnels,
		Codes:       f.Codes,
		Channels:    f.Channels,
		Withdrawals: f.Withdrawals,
		Settings:    f.Settings,
	}
}

func (f *fixture) notifier() usecase.NotificationUseCase {
	return usecase.NewNotificationUseCase(f.Bot, newTestTranslator(), []int64{testOperator}, nil, f.Logger)
}

func (f *fixture) account(id int64, username string) {
	if _, _, err := f.Ledger.EnsureAccount(context.Background(), id, username, ""); err != nil {
		panic(err)
	}
}

func (f *fixture) channel(chatID int64, name string) {
	if err := f.Ledger.AddChannel(context.Background(), model.RequiredChannel{ChatID: chatID, Name: name}); err != nil {
		panic(err)
	}
}

// failWrites makes every transaction fail until the returned func is called.
func (f *fixture) failWrites() (restore func()) {
	f.Tx.WithTxFunc = func(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
		return errors.New("connection refused")
	}
	return func() { f.Tx.WithTxFunc = nil }
}
