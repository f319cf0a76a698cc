//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/domain/ports/repository"
)

func TestCodeRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	repo := NewCodeRepo(testPool)
	ctx := context.Background()
	cleanup(t)

	c, err := model.NewRedeemableCode("spring", 10, model.CodeCapped, 2)
	if err != nil {
		t.Fatalf("NewRedeemableCode: %v", err)
	}
	if err := repo.Save(ctx, repository.NoTX, c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	c.Redeem(7)
	if err := repo.Save(ctx, repository.NoTX, c); err != nil {
		t.Fatalf("Save redeemed: %v", err)
	}

	got, err := repo.FindByCode(ctx, repository.NoTX, "Spring")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if got.Policy != model.CodeCapped || got.Cap != 2 || got.Activations != 1 || !got.UsedByAccount(7) {
		t.Errorf("unexpected code: %+v", got)
	}
	if _, err := repo.FindByCode(ctx, repository.NoTX, "NONE"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWithdrawalRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	accounts := NewAccountRepo(testPool)
	repo := NewWithdrawalRepo(testPool)
	ctx := context.Background()
	cleanup(t)

	acc, _ := model.NewAccount(5, "payee", "")
	if err := accounts.Save(ctx, repository.NoTX, acc); err != nil {
		t.Fatalf("Save account: %v", err)
	}
	w, _ := model.NewWithdrawal(5, 20)
	if err := repo.Save(ctx, repository.NoTX, w); err != nil {
		t.Fatalf("Save withdrawal: %v", err)
	}
	if err := w.Resolve(model.WithdrawalApproved, 9000); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := repo.Save(ctx, repository.NoTX, w); err != nil {
		t.Fatalf("Save resolved: %v", err)
	}

	got, err := repo.FindByID(ctx, repository.NoTX, w.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != model.WithdrawalApproved || got.ResolvedBy != 9000 || got.ResolvedAt == nil {
		t.Errorf("unexpected withdrawal: %+v", got)
	}
}

func TestChannelAndSettingsRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	channels := NewChannelRepo(testPool)
	settings := NewSettingsRepo(testPool)
	tm := NewTxManager(testPool)
	ctx := context.Background()
	cleanup(t)

	list := []model.RequiredChannel{
		{ChatID: -1002, Name: "B", Link: "https://t.me/b"},
		{ChatID: -1001, Name: "A"},
	}
	err := tm.WithTx(ctx, pgxTxOptions(), func(ctx context.Context, tx repository.Tx) error {
		return channels.ReplaceAll(ctx, tx, list)
	})
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	got, err := channels.List(ctx, repository.NoTX)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ChatID != -1002 || got[1].Position != 1 {
		t.Errorf("unexpected channels: %+v", got)
	}

	// duplicate chat ids violate the primary key and roll back the whole list
	dup := []model.RequiredChannel{{ChatID: -1003, Name: "C"}, {ChatID: -1003, Name: "C"}}
	err = tm.WithTx(ctx, pgxTxOptions(), func(ctx context.Context, tx repository.Tx) error {
		return channels.ReplaceAll(ctx, tx, dup)
	})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if got, _ := channels.List(ctx, repository.NoTX); len(got) != 2 {
		t.Errorf("expected rollback to keep 2 channels, got %d", len(got))
	}

	if err := settings.Set(ctx, repository.NoTX, model.SettingStarsPerReferral, "4"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := settings.Set(ctx, repository.NoTX, model.SettingStarsPerReferral, "5"); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	all, err := settings.All(ctx, repository.NoTX)
	if err != nil || all[model.SettingStarsPerReferral] != "5" {
		t.Errorf("unexpected settings: %v err=%v", all, err)
	}
}
