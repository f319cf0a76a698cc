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

func TestAccountRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewAccountRepo(testPool)
	ctx := context.Background()

	t.Run("should perform full save and read cycle", func(t *testing.T) {
		cleanup(t)

		// 1. Create a new account
		acc, err := model.NewAccount(123456789, "@integration_user", "Integration")
		if err != nil {
			t.Fatalf("model.NewAccount() failed: %v", err)
		}
		if err := repo.Save(ctx, repository.NoTX, acc); err != nil {
			t.Fatalf("Failed to save new account: %v", err)
		}

		// 2. Update balance and status
		acc.Stars = 42
		acc.Status = model.AccountRemoved
		acc.SubscriptionRewardClaimed = true
		if err := repo.Save(ctx, repository.NoTX, acc); err != nil {
			t.Fatalf("Failed to update account: %v", err)
		}

		// 3. Read back
		found, err := repo.FindByID(ctx, repository.NoTX, 123456789)
		if err != nil {
			t.Fatalf("Failed to find account: %v", err)
		}
		if found.Username != "integration_user" || found.Stars != 42 || found.Status != model.AccountRemoved || !found.SubscriptionRewardClaimed {
			t.Errorf("Mismatch in retrieved account: %+v", found)
		}
	})

	t.Run("should return ErrNotFound for unknown id", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindByID(ctx, repository.NoTX, 1); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should list accounts ordered by id", func(t *testing.T) {
		cleanup(t)
		for _, id := range []int64{30, 10, 20} {
			a, _ := model.NewAccount(id, "", "")
			if err := repo.Save(ctx, repository.NoTX, a); err != nil {
				t.Fatalf("Save %d failed: %v", id, err)
			}
		}
		list, err := repo.List(ctx, repository.NoTX)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 3 || list[0].ID != 10 || list[2].ID != 30 {
			t.Errorf("unexpected list: %+v", list)
		}
	})
}
