package service

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fodi999/fodi-ledger/internal/config"
	"github.com/Fodi999/fodi-ledger/internal/model"
	"github.com/Fodi999/fodi-ledger/internal/repository"
)

var testBurn = config.BurnConfig{TransactionBurnRate: 1, MinBurnAmount: 1_000_000}

func TestBurnAmount(t *testing.T) {
	tests := []struct {
		name     string
		purchase uint64
		rate     uint8
		floor    uint64
		want     uint64
		wantErr  error
	}{
		{name: "one percent", purchase: 1_000_000_000, rate: 1, floor: 1_000_000, want: 10_000_000},
		{name: "floor for tiny purchase", purchase: 50, rate: 1, floor: 1_000_000, want: 1_000_000},
		{name: "truncates", purchase: 199, rate: 1, floor: 0, want: 1},
		{name: "zero rate uses floor", purchase: 1_000, rate: 0, floor: 7, want: 7},
		{name: "no overflow on large purchase", purchase: math.MaxUint64, rate: 100, floor: 0, want: math.MaxUint64},
		{name: "large purchase partial rate", purchase: math.MaxUint64, rate: 50, floor: 0, want: math.MaxUint64 / 2},
		{name: "zero purchase", purchase: 0, rate: 1, floor: 1, wantErr: repository.ErrInvalidAmount},
		{name: "rate above 100", purchase: 1, rate: 101, floor: 1, wantErr: repository.ErrInvalidAmount},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := burnAmount(tt.purchase, tt.rate, tt.floor)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewBurnEngine_InvalidRate(t *testing.T) {
	_, err := NewBurnEngine(repository.NewMemoryRepository(), config.BurnConfig{TransactionBurnRate: 150}, nil)
	require.ErrorIs(t, err, config.ErrInvalidBurnRate)
}

func TestBurnEngine_PurchaseScenario(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	engine, err := NewBurnEngine(repo, testBurn, nil)
	require.NoError(t, err)

	_, _, err = repo.Credit(ctx, "alice", 10_000_000, model.KindReward, nil)
	require.NoError(t, err)
	_, err = repo.Lock(ctx, "alice", 5_000_000)
	require.NoError(t, err)

	_, _, err = engine.BurnOnPurchase(ctx, "alice", 1_000_000_000)
	require.ErrorIs(t, err, repository.ErrInsufficientFunds)

	_, err = repo.Unlock(ctx, "alice", 5_000_000)
	require.NoError(t, err)

	b, txn, err := engine.BurnOnPurchase(ctx, "alice", 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, model.Balance{UserID: "alice"}, b)
	assert.Equal(t, model.KindBurn, txn.Kind)
	assert.Equal(t, uint64(10_000_000), txn.Amount)
	assert.Equal(t, ReasonPurchaseBurn, txn.Metadata[model.MetaReason])
	assert.Equal(t, "1000000000", txn.Metadata["purchase_amount"])

	_, _, err = engine.BurnOnPurchase(ctx, "alice", 50)
	require.ErrorIs(t, err, repository.ErrInsufficientFunds)

	b, err = repo.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.Balance{UserID: "alice"}, b)
}

func TestBurnEngine_FloorIsBurnedExactly(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	engine, err := NewBurnEngine(repo, testBurn, nil)
	require.NoError(t, err)

	_, _, err = repo.Credit(ctx, "bob", 5_000_000, model.KindDeposit, nil)
	require.NoError(t, err)

	b, txn, err := engine.BurnOnPurchase(ctx, "bob", 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), txn.Amount)
	assert.Equal(t, uint64(4_000_000), b.Total)
}

func TestBurnEngine_BurnTokens(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	engine, err := NewBurnEngine(repo, testBurn, nil)
	require.NoError(t, err)

	_, _, err = repo.Credit(ctx, "bob", 100, model.KindDeposit, nil)
	require.NoError(t, err)

	_, txn, err := engine.BurnTokens(ctx, "bob", 40, "fraud")
	require.NoError(t, err)
	assert.Equal(t, "fraud", txn.Metadata[model.MetaReason])

	b, txn, err := engine.BurnTokens(ctx, "bob", 60, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonManualBurn, txn.Metadata[model.MetaReason])
	assert.Zero(t, b.Total)

	_, _, err = engine.BurnTokens(ctx, "bob", 0, "x")
	require.ErrorIs(t, err, repository.ErrInvalidAmount)
}
