package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionKind(t *testing.T) {
	tests := []struct {
		kind   TransactionKind
		valid  bool
		credit bool
		debit  bool
	}{
		{KindDeposit, true, true, false},
		{KindReward, true, true, false},
		{KindWithdrawal, true, false, true},
		{KindBurn, true, false, true},
		{KindPurchase, true, false, true},
		{KindTransfer, true, false, false},
		{TransactionKind("mint"), false, false, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.kind.Valid())
			assert.Equal(t, tt.credit, tt.kind.IsCredit())
			assert.Equal(t, tt.debit, tt.kind.IsDebit())
		})
	}
}

func TestBalance_Available(t *testing.T) {
	assert.Equal(t, uint64(5_000_000), Balance{Total: 10_000_000, Locked: 5_000_000}.Available())
	assert.Zero(t, Balance{}.Available())
	assert.Panics(t, func() { _ = Balance{Total: 1, Locked: 2}.Available() })
}

func TestTransaction_Clone(t *testing.T) {
	sig := "sig"
	orig := Transaction{ID: "1", Signature: &sig, Metadata: map[string]string{"k": "v"}}

	c := orig.Clone()
	*c.Signature = "changed"
	c.Metadata["k"] = "changed"

	assert.Equal(t, "sig", *orig.Signature)
	assert.Equal(t, "v", orig.Metadata["k"])
	assert.True(t, orig.Settled())
	assert.False(t, Transaction{}.Settled())
}

func TestNet(t *testing.T) {
	txs := []Transaction{
		{Kind: KindDeposit, Amount: 100},
		{Kind: KindReward, Amount: 10},
		{Kind: KindBurn, Amount: 5},
		{Kind: KindPurchase, Amount: 20},
		{Kind: KindTransfer, Amount: 30, Metadata: map[string]string{MetaDirection: DirectionOut}},
		{Kind: KindTransfer, Amount: 7, Metadata: map[string]string{MetaDirection: DirectionIn}},
	}

	net, ok := Net(txs)
	require.True(t, ok)
	assert.Equal(t, uint64(62), net)
}

func TestNet_LargeHistoryDoesNotWrap(t *testing.T) {
	txs := []Transaction{
		{Kind: KindDeposit, Amount: math.MaxUint64},
		{Kind: KindReward, Amount: math.MaxUint64},
		{Kind: KindWithdrawal, Amount: math.MaxUint64},
		{Kind: KindDeposit, Amount: 1},
		{Kind: KindBurn, Amount: 1},
	}

	net, ok := Net(txs)
	require.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), net)

	txs = append(txs, Transaction{Kind: KindDeposit, Amount: 1})
	_, ok = Net(txs)
	assert.False(t, ok, "net above the uint64 range")

	_, ok = Net([]Transaction{{Kind: KindDeposit, Amount: 1}, {Kind: KindBurn, Amount: 2}})
	assert.False(t, ok, "negative net")
}
