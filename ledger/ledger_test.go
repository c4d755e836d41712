package ledger

import (
	"testing"

	"github.com/defistate/defistate-amm-go/events"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	alice  = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob    = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
	router = common.HexToAddress("0x7e7e000000000000000000000000000000000000")
)

func newTestLedger() (*Ledger, *state.Journal, *events.Recorder) {
	j := state.NewJournal()
	rec := &events.Recorder{}
	return New(j, rec), j, rec
}

func TestLedger_MintTransferBurn(t *testing.T) {
	l, _, rec := newTestLedger()

	require.NoError(t, l.Mint(tokenA, alice, uint256.NewInt(100)))
	require.NoError(t, l.Transfer(tokenA, alice, bob, uint256.NewInt(30)))
	require.NoError(t, l.Burn(tokenA, bob, uint256.NewInt(10)))

	assert.Equal(t, uint64(70), l.BalanceOf(tokenA, alice).Uint64())
	assert.Equal(t, uint64(20), l.BalanceOf(tokenA, bob).Uint64())
	assert.Equal(t, uint64(90), l.TotalSupply(tokenA).Uint64())

	transfers := events.Filter[events.Transfer](rec.Events())
	require.Len(t, transfers, 3)
	assert.Equal(t, common.Address{}, transfers[0].From)
	assert.Equal(t, common.Address{}, transfers[2].To)
}

func TestLedger_InsufficientBalance(t *testing.T) {
	l, _, _ := newTestLedger()
	require.NoError(t, l.Mint(tokenA, alice, uint256.NewInt(5)))

	err := l.Transfer(tokenA, alice, bob, uint256.NewInt(6))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	err = l.Burn(tokenA, alice, uint256.NewInt(6))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(5), l.BalanceOf(tokenA, alice).Uint64())
}

func TestLedger_SelfTransfer(t *testing.T) {
	l, _, _ := newTestLedger()
	require.NoError(t, l.Mint(tokenA, alice, uint256.NewInt(5)))
	require.NoError(t, l.Transfer(tokenA, alice, alice, uint256.NewInt(5)))
	assert.Equal(t, uint64(5), l.BalanceOf(tokenA, alice).Uint64())
}

func TestLedger_TransferFrom(t *testing.T) {
	l, _, _ := newTestLedger()
	require.NoError(t, l.Mint(tokenA, alice, uint256.NewInt(100)))

	err := l.TransferFrom(tokenA, router, alice, bob, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, l.Approve(tokenA, alice, router, uint256.NewInt(40)))
	require.NoError(t, l.TransferFrom(tokenA, router, alice, bob, uint256.NewInt(25)))
	assert.Equal(t, uint64(15), l.Allowance(tokenA, alice, router).Uint64())
	assert.Equal(t, uint64(25), l.BalanceOf(tokenA, bob).Uint64())

	require.NoError(t, l.Approve(tokenA, alice, router, MaxAllowance))
	require.NoError(t, l.TransferFrom(tokenA, router, alice, bob, uint256.NewInt(25)))
	assert.True(t, l.Allowance(tokenA, alice, router).Eq(MaxAllowance))
}

func TestLedger_MintOverflow(t *testing.T) {
	l, _, _ := newTestLedger()
	require.NoError(t, l.Mint(tokenA, alice, MaxAllowance))
	err := l.Mint(tokenA, bob, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrSupplyOverflow)
	assert.True(t, l.BalanceOf(tokenA, bob).IsZero())
}

func TestLedger_RevertRestoresEverything(t *testing.T) {
	l, j, _ := newTestLedger()
	require.NoError(t, l.Mint(tokenA, alice, uint256.NewInt(100)))
	snap := j.Snapshot()

	require.NoError(t, l.Approve(tokenA, alice, router, uint256.NewInt(50)))
	require.NoError(t, l.TransferFrom(tokenA, router, alice, bob, uint256.NewInt(50)))
	require.NoError(t, l.Burn(tokenA, bob, uint256.NewInt(20)))

	j.RevertToSnapshot(snap)
	assert.Equal(t, uint64(100), l.BalanceOf(tokenA, alice).Uint64())
	assert.True(t, l.BalanceOf(tokenA, bob).IsZero())
	assert.True(t, l.Allowance(tokenA, alice, router).IsZero())
	assert.Equal(t, uint64(100), l.TotalSupply(tokenA).Uint64())
}

func TestLedger_SnapshotRestore(t *testing.T) {
	l, _, _ := newTestLedger()
	require.NoError(t, l.Mint(tokenA, alice, uint256.NewInt(100)))
	require.NoError(t, l.Mint(NativeAsset, bob, uint256.NewInt(7)))
	require.NoError(t, l.Approve(tokenA, alice, router, uint256.NewInt(3)))

	snap := l.Snapshot()
	require.Len(t, snap.Balances, 2)
	require.Len(t, snap.Allowances, 1)

	fresh, _, _ := newTestLedger()
	require.NoError(t, fresh.Restore(snap))
	assert.Equal(t, uint64(100), fresh.BalanceOf(tokenA, alice).Uint64())
	assert.Equal(t, uint64(100), fresh.TotalSupply(tokenA).Uint64())
	assert.Equal(t, uint64(7), fresh.TotalSupply(NativeAsset).Uint64())
	assert.Equal(t, uint64(3), fresh.Allowance(tokenA, alice, router).Uint64())
}

func TestLedger_RestoreRejectsInvalidSnapshot(t *testing.T) {
	top := new(uint256.Int).SetAllOne()
	cases := map[string]Snapshot{
		"nil balance": {Balances: []Balance{{Asset: tokenA, Holder: alice}}},
		"nil allowance": {
			Balances:   []Balance{{Asset: tokenA, Holder: alice, Amount: uint256.NewInt(1)}},
			Allowances: []Allowance{{Asset: tokenA, Owner: alice, Spender: router}},
		},
		"supply overflow": {Balances: []Balance{
			{Asset: tokenA, Holder: alice, Amount: top},
			{Asset: tokenA, Holder: bob, Amount: uint256.NewInt(1)},
		}},
	}
	for name, snap := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, snap.Validate())

			l, _, _ := newTestLedger()
			require.NoError(t, l.Mint(NativeAsset, bob, uint256.NewInt(9)))
			assert.Error(t, l.Restore(snap))
			assert.Equal(t, uint64(9), l.BalanceOf(NativeAsset, bob).Uint64())
			assert.True(t, l.BalanceOf(tokenA, alice).IsZero())
		})
	}
}
