package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"telegram-referral-rewards/internal/config"
	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	pg "telegram-referral-rewards/internal/infra/db/postgres"
	"telegram-referral-rewards/internal/infra/logging"
	"telegram-referral-rewards/internal/usecase"
)

// seedFile lists the records to create. Existing records are left untouched.
type seedFile struct {
	StarsPerReferral int64 `yaml:"stars_per_referral"`
	Channels         []struct {
		ChatID int64  `yaml:"chat_id"`
		Link   string `yaml:"link"`
		Name   string `yaml:"name"`
	} `yaml:"channels"`
	Codes []struct {
		Code   string `yaml:"code"`
		Stars  int64  `yaml:"stars"`
		Policy string `yaml:"policy"`
		Limit  int    `yaml:"limit"`
	} `yaml:"codes"`
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	seedPath := flag.String("seed", "seed.yaml", "path to YAML seed file")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	raw, err := os.ReadFile(*seedPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("read seed file")
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		logger.Fatal().Err(err).Msg("parse seed file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

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

	if seed.StarsPerReferral > 0 {
		if err := ledger.SetRewardRate(ctx, seed.StarsPerReferral); err != nil {
			logger.Fatal().Err(err).Msg("set reward rate")
		}
		fmt.Printf("reward rate: %d stars per referral\n", seed.StarsPerReferral)
	}

	for _, c := range seed.Channels {
		ch, err := model.NewRequiredChannel(c.ChatID, c.Link, c.Name)
		if err != nil {
			logger.Fatal().Err(err).Int64("chat_id", c.ChatID).Msg("invalid channel")
		}
		switch err := ledger.AddChannel(ctx, *ch); {
		case errors.Is(err, domain.ErrAlreadyExists):
			fmt.Printf("channel %d already present\n", ch.ChatID)
		case err != nil:
			logger.Fatal().Err(err).Int64("chat_id", ch.ChatID).Msg("add channel")
		default:
			fmt.Printf("seeded channel: %s (%d)\n", ch.Name, ch.ChatID)
		}
	}

	for _, c := range seed.Codes {
		policy, err := model.ParseCodePolicy(c.Policy)
		if err != nil {
			logger.Fatal().Err(err).Str("code", c.Code).Msg("invalid policy")
		}
		code, err := model.NewRedeemableCode(c.Code, c.Stars, policy, c.Limit)
		if err != nil {
			logger.Fatal().Err(err).Str("code", c.Code).Msg("invalid code")
		}
		switch err := ledger.CreateCode(ctx, code); {
		case errors.Is(err, domain.ErrAlreadyExists):
			fmt.Printf("code %s already present\n", code.Code)
		case err != nil:
			logger.Fatal().Err(err).Str("code", code.Code).Msg("create code")
		default:
			fmt.Printf("seeded code: %s (%d stars, %s)\n", code.Code, code.Stars, code.Policy)
		}
	}

	fmt.Println("Seeding complete.")
}
