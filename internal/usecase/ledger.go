package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
	"telegram-referral-rewards/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// LedgerRepos groups the record sets the ledger checkpoints to.
type LedgerRepos struct {
	Accounts    repository.AccountRepository
	Edges       repository.ReferralEdgeRepository
	Funnels     repository.FunnelRepository
	Codes       repository.CodeRepository
	Channels    repository.ChannelRepository
	Withdrawals repository.WithdrawalRepository
	Settings    repository.SettingsRepository
}

// Ledger owns every referral and reward record. The in-memory state is the
// source of truth for the running process; each mutation is written through to
// the repositories before the method returns. A failed write keeps the
// in-memory change, marks the records dirty and returns domain.ErrPersistence.
type Ledger struct {
	mu    sync.Mutex
	repos LedgerRepos
	tm    repository.TransactionManager
	log   *zerolog.Logger

	accounts    map[int64]*model.Account
	edges       map[int64]*model.ReferralEdge
	funnels     map[int64]model.Funnel
	codes       map[string]*model.RedeemableCode
	channels    []model.RequiredChannel
	withdrawals map[string]*model.Withdrawal
	settings    model.RewardSettings

	dirty changeSet
}

func NewLedger(repos LedgerRepos, tm repository.TransactionManager, defaultRate int64, logger *zerolog.Logger) *Ledger {
	if defaultRate < 0 {
		defaultRate = model.DefaultStarsPerReferral
	}
	l := logger.With().Str("component", "Ledger").Logger()
	return &Ledger{
		repos:       repos,
		tm:          tm,
		log:         &l,
		accounts:    map[int64]*model.Account{},
		edges:       map[int64]*model.ReferralEdge{},
		funnels:     map[int64]model.Funnel{},
		codes:       map[string]*model.RedeemableCode{},
		withdrawals: map[string]*model.Withdrawal{},
		settings:    model.RewardSettings{StarsPerReferral: defaultRate},
		dirty:       newChangeSet(),
	}
}

// changeSet names the records touched by a mutation.
type changeSet struct {
	accounts    map[int64]struct{}
	edges       map[int64]struct{}
	funnels     map[int64]struct{}
	codes       map[string]struct{}
	withdrawals map[string]struct{}
	channels    bool
	settings    bool
}

func newChangeSet() changeSet {
	return changeSet{
		accounts:    map[int64]struct{}{},
		edges:       map[int64]struct{}{},
		funnels:     map[int64]struct{}{},
		codes:       map[string]struct{}{},
		withdrawals: map[string]struct{}{},
	}
}

func (c changeSet) empty() bool {
	return len(c.accounts) == 0 && len(c.edges) == 0 && len(c.funnels) == 0 &&
		len(c.codes) == 0 && len(c.withdrawals) == 0 && !c.channels && !c.settings
}

func (c changeSet) size() int {
	n := len(c.accounts) + len(c.edges) + len(c.funnels) + len(c.codes) + len(c.withdrawals)
	if c.channels {
		n++
	}
	if c.settings {
		n++
	}
	return n
}

func (c changeSet) merge(o changeSet) {
	for k := range o.accounts {
		c.accounts[k] = struct{}{}
	}
	for k := range o.edges {
		c.edges[k] = struct{}{}
	}
	for k := range o.funnels {
		c.funnels[k] = struct{}{}
	}
	for k := range o.codes {
		c.codes[k] = struct{}{}
	}
	for k := range o.withdrawals {
		c.withdrawals[k] = struct{}{}
	}
	c.channels = c.channels || o.channels
	c.settings = c.settings || o.settings
}

// Load replaces the in-memory state with the persisted records.
func (l *Ledger) Load(ctx context.Context) error {
	defer logging.TraceDuration(l.log, "Ledger.Load")()

	accounts, err := l.repos.Accounts.List(ctx, repository.NoTX)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	edges, err := l.repos.Edges.List(ctx, repository.NoTX)
	if err != nil {
		return fmt.Errorf("load referral edges: %w", err)
	}
	funnels, err := l.repos.Funnels.List(ctx, repository.NoTX)
	if err != nil {
		return fmt.Errorf("load funnels: %w", err)
	}
	codes, err := l.repos.Codes.List(ctx, repository.NoTX)
	if err != nil {
		return fmt.Errorf("load codes: %w", err)
	}
	channels, err := l.repos.Channels.List(ctx, repository.NoTX)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}
	withdrawals, err := l.repos.Withdrawals.List(ctx, repository.NoTX)
	if err != nil {
		return fmt.Errorf("load withdrawals: %w", err)
	}
	settings, err := l.repos.Settings.All(ctx, repository.NoTX)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts = make(map[int64]*model.Account, len(accounts))
	for _, a := range accounts {
		l.accounts[a.ID] = a
	}
	l.edges = make(map[int64]*model.ReferralEdge, len(edges))
	for _, e := range edges {
		l.edges[e.InviterID] = e
	}
	l.funnels = make(map[int64]model.Funnel, len(funnels))
	for _, f := range funnels {
		l.funnels[f.CandidateID] = f
	}
	l.codes = make(map[string]*model.RedeemableCode, len(codes))
	for _, c := range codes {
		l.codes[c.Code] = c
	}
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].Position < channels[j].Position })
	l.channels = channels
	l.withdrawals = make(map[string]*model.Withdrawal, len(withdrawals))
	for _, w := range withdrawals {
		l.withdrawals[w.ID] = w
	}
	if v, ok := settings[model.SettingStarsPerReferral]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			l.settings.StarsPerReferral = n
		} else {
			l.log.Warn().Str("value", v).Msg("ignoring malformed stars_per_referral setting")
		}
	}
	l.dirty = newChangeSet()

	l.log.Info().
		Int("accounts", len(l.accounts)).
		Int("edges", len(l.edges)).
		Int("funnels", len(l.funnels)).
		Int("codes", len(l.codes)).
		Int("channels", len(l.channels)).
		Msg("ledger loaded")
	return nil
}

// persist writes every record named in cs plus any records left dirty by an
// earlier failure. Callers hold l.mu.
func (l *Ledger) persist(ctx context.Context, cs changeSet) error {
	pending := newChangeSet()
	pending.merge(l.dirty)
	pending.merge(cs)
	if pending.empty() {
		return nil
	}

	err := l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for id := range pending.accounts {
			if a, ok := l.accounts[id]; ok {
				if err := l.repos.Accounts.Save(ctx, tx, a); err != nil {
					return fmt.Errorf("save account %d: %w", id, err)
				}
			}
		}
		for id := range pending.edges {
			if e, ok := l.edges[id]; ok {
				if err := l.repos.Edges.Save(ctx, tx, e); err != nil {
					return fmt.Errorf("save referral edge %d: %w", id, err)
				}
			}
		}
		for id := range pending.funnels {
			if f, ok := l.funnels[id]; ok {
				if err := l.repos.Funnels.Save(ctx, tx, f); err != nil {
					return fmt.Errorf("save funnel %d: %w", id, err)
				}
			}
		}
		for code := range pending.codes {
			if c, ok := l.codes[code]; ok {
				if err := l.repos.Codes.Save(ctx, tx, c); err != nil {
					return fmt.Errorf("save code %s: %w", code, err)
				}
			}
		}
		for id := range pending.withdrawals {
			if w, ok := l.withdrawals[id]; ok {
				if err := l.repos.Withdrawals.Save(ctx, tx, w); err != nil {
					return fmt.Errorf("save withdrawal %s: %w", id, err)
				}
			}
		}
		if pending.channels {
			if err := l.repos.Channels.ReplaceAll(ctx, tx, l.channels); err != nil {
				return fmt.Errorf("save channels: %w", err)
			}
		}
		if pending.settings {
			v := strconv.FormatInt(l.settings.StarsPerReferral, 10)
			if err := l.repos.Settings.Set(ctx, tx, model.SettingStarsPerReferral, v); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		l.dirty = pending
		l.log.Error().Err(err).Int("dirty_records", pending.size()).Msg("ledger write failed; keeping in-memory state")
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	l.dirty = newChangeSet()
	return nil
}

// FlushDirty retries records whose last write failed. It returns how many
// records were written.
func (l *Ledger) FlushDirty(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.dirty.size()
	if n == 0 {
		return 0, nil
	}
	if err := l.persist(ctx, newChangeSet()); err != nil {
		return 0, err
	}
	return n, nil
}

// DirtyCount reports how many records await a successful write.
func (l *Ledger) DirtyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty.size()
}

// LedgerStats is a point-in-time summary used by admin views.
type LedgerStats struct {
	Accounts        int   `json:"accounts"`
	ActiveAccounts  int   `json:"active_accounts"`
	RemovedAccounts int   `json:"removed_accounts"`
	Inviters        int   `json:"inviters"`
	Linked          int   `json:"linked"`
	Credited        int   `json:"credited"`
	TotalStars      int64 `json:"total_stars"`
	PendingPayouts  int   `json:"pending_withdrawals"`
	StarsPerRef     int64 `json:"stars_per_referral"`
	Channels        int   `json:"required_channels"`
}

func (l *Ledger) Stats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := LedgerStats{
		Accounts:    len(l.accounts),
		Inviters:    len(l.edges),
		StarsPerRef: l.settings.StarsPerReferral,
		Channels:    len(l.channels),
	}
	for _, a := range l.accounts {
		if a.Status == model.AccountRemoved {
			s.RemovedAccounts++
		} else {
			s.ActiveAccounts++
		}
		s.TotalStars += a.Stars
	}
	for _, f := range l.funnels {
		switch f.Stage {
		case model.StageLinked:
			s.Linked++
		case model.StageCredited:
			s.Credited++
		}
	}
	for _, w := range l.withdrawals {
		if w.IsPending() {
			s.PendingPayouts++
		}
	}
	return s
}
