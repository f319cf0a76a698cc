package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"telegram-referral-rewards/internal/application"
	"telegram-referral-rewards/internal/config"
	"telegram-referral-rewards/internal/domain/ports/adapter"
	"telegram-referral-rewards/internal/domain/ports/repository"
	tele "telegram-referral-rewards/internal/infra/adapters/telegram"
	"telegram-referral-rewards/internal/infra/api/apiv1"
	pg "telegram-referral-rewards/internal/infra/db/postgres"
	adminhttp "telegram-referral-rewards/internal/infra/http"
	"telegram-referral-rewards/internal/infra/i18n"
	"telegram-referral-rewards/internal/infra/logging"
	"telegram-referral-rewards/internal/infra/memory"
	"telegram-referral-rewards/internal/infra/metrics"
	red "telegram-referral-rewards/internal/infra/redis"
	"telegram-referral-rewards/internal/infra/sched"
	"telegram-referral-rewards/internal/infra/scheduler"
	"telegram-referral-rewards/internal/infra/web"
	"telegram-referral-rewards/internal/infra/worker"
	"telegram-referral-rewards/internal/usecase"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, insecure cookies)")
	offline := flag.Bool("offline", false, "do not connect to Telegram; serve the admin API only")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis / in-process stores ----
	var (
		states      repository.StateRepository
		sessions    repository.ChallengeSessionRepository
		locker      usecase.Locker
		rateLimiter tele.RateLimiter
	)
	if cfg.Redis.Enabled() {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		states = red.NewStateRepo(redisClient)
		locker = red.NewLocker(redisClient, cfg.Referral.LockWait)
		rateLimiter = red.NewRateLimiter(redisClient)
		if cfg.Referral.ChallengeStore == "redis" {
			sessions = red.NewChallengeStore(redisClient, cfg.Referral.ChallengeTTL)
		}
	} else {
		logger.Info().Msg("redis not configured, using in-process stores")
		states = memory.NewStateStore()
		locker = memory.NewKeyedLocker()
	}
	if sessions == nil {
		sessions = memory.NewChallengeStore()
	}

	// ---- i18n ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.I18n.Lang)
	if err != nil {
		logger.Fatal().Err(err).Str("lang", cfg.I18n.Lang).Msg("i18n")
	}

	// ---- Ledger ----
	ledger := usecase.NewLedger(usecase.LedgerRepos{
		Accounts:    pg.NewAccountRepo(pool),
		Edges:       pg.NewEdgeRepo(pool),
		Funnels:     pg.NewFunnelRepo(pool),
		Codes:       pg.NewCodeRepo(pool),
		Channels:    pg.NewChannelRepo(pool),
		Withdrawals: pg.NewWithdrawalRepo(pool),
		Settings:    pg.NewSettingsRepo(pool),
	}, pg.NewTxManager(pool), cfg.Referral.StarsPerReferral, logger)
	if err := ledger.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("load ledger")
	}

	// ---- Worker pools ----
	notifyPool := worker.NewPool(cfg.Bot.Workers).WithLogger(logger)
	notifyPool.Start(ctx)
	broadcastPool := worker.NewPool(cfg.Broadcast.Workers).WithLogger(logger)
	broadcastPool.Start(ctx)

	// ---- Telegram ----
	var (
		botPort adapter.TelegramBotAdapter
		members adapter.MembershipChecker
		tgBot   *tele.RealTelegramBotAdapter
	)
	if *offline {
		logger.Warn().Msg("offline mode: Telegram is not contacted")
		noop := tele.NewNoopBotAdapter(logger)
		botPort, members = noop, noop
	} else {
		api, err := tele.NewBotAPI(&cfg.Bot)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		tgBot, err = tele.NewRealTelegramBotAdapter(api, &cfg.Bot, states, rateLimiter, tr, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram adapter")
		}
		botPort, members = tgBot, tgBot
	}

	// ---- Use cases ----
	notifyUC := usecase.NewNotificationUseCase(botPort, tr, cfg.Bot.AdminIDs, notifyPool, logger)
	gate := usecase.NewVerificationGate(ledger, members, logger)
	challengeUC := usecase.NewChallengeUseCase(sessions, cfg.Referral.ChallengeWords, logger)
	referralUC := usecase.NewReferralUseCase(ledger, gate, challengeUC, notifyUC, locker, cfg.Bot.Username, logger)
	rewardUC := usecase.NewRewardUseCase(ledger, notifyUC, logger)
	channelUC := usecase.NewChannelUseCase(ledger, members, notifyUC, logger)
	statsUC := usecase.NewStatsUseCase(ledger, logger)
	broadcastUC := usecase.NewBroadcastUseCase(ledger, botPort, broadcastPool, cfg.Broadcast.Delay, logger)

	facade := application.NewBotFacade(referralUC, rewardUC, channelUC, statsUC, broadcastUC, tr)

	// ---- Background workers ----
	checkpoint := sched.NewCheckpointWorker(cfg.Scheduler.CheckpointInterval, ledger, logger)
	go func() { _ = checkpoint.Run(ctx) }()
	if !*offline {
		audit := sched.NewRightsAuditWorker(cfg.Scheduler.RightsAuditInterval, channelUC, logger)
		go func() { _ = audit.Run(ctx) }()
	}
	gauges := scheduler.NewScheduler(cfg.Scheduler.GaugesInterval, scheduler.JobFunc{
		JobName: "funnel_gauges",
		Fn: func(ctx context.Context) (int, error) {
			st := referralUC.Stats(ctx, 0)
			return st.Linked + st.Credited, nil
		},
	}, logger)
	gauges.Start(ctx)

	// ---- Admin HTTP ----
	var server *adminhttp.Server
	if cfg.Admin.Port > 0 {
		auth := web.NewAuthManager(cfg.Admin.APIKey, cfg.Admin.JWTSecret, !cfg.Runtime.Dev, cfg.Admin.TokenTTL, logger)
		server = adminhttp.NewServer(&cfg.Admin, apiv1.NewServer(referralUC, rewardUC, channelUC, statsUC), auth, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("admin http server stopped")
			}
		}()
	}

	// ---- Polling ----
	if tgBot != nil {
		tgBot.SetFacade(facade)
		go func() {
			if err := tgBot.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("polling stopped")
			}
		}()
	}

	logger.Info().
		Str("version", version).
		Int("channels", len(ledger.Channels())).
		Bool("redis", cfg.Redis.Enabled()).
		Msg("referral bot started")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	if tgBot != nil {
		tgBot.StopPolling()
	}
	shutdown(ctx, cancel, server, gauges, []*worker.Pool{notifyPool, broadcastPool}, ledger, logger)
}

func shutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	server *adminhttp.Server,
	gauges *scheduler.Scheduler,
	pools []*worker.Pool,
	ledger *usecase.Ledger,
	logger *zerolog.Logger,
) {
	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stopCancel()

	if server != nil {
		if err := server.Shutdown(stopCtx); err != nil {
			logger.Warn().Err(err).Msg("admin http shutdown")
		}
	}
	gauges.Stop()
	for _, p := range pools {
		p.Stop()
	}
	cancel()

	n, err := ledger.FlushDirty(stopCtx)
	if err != nil {
		logger.Error().Err(err).Int("flushed", n).Msg("final checkpoint failed")
		return
	}
	logger.Info().Int("flushed", n).Msg("shutdown complete")
}
