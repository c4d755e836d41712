// Package events defines the notifications emitted by the exchange core and
// the plumbing that buffers, wraps and delivers them to downstream sinks.
package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Event is any notification emitted by the exchange.
type Event interface {
	EventType() string
}

// Keyed events carry a partition key. Events for the same key are delivered
// in emission order by every sink that partitions.
type Keyed interface {
	EventKey() string
}

// Topical events have a canonical log topic compatible with the EVM event
// signatures of the reference contracts.
type Topical interface {
	Topic() common.Hash
}

const (
	TypeTransfer           = "ledger.transfer"
	TypeApproval           = "ledger.approval"
	TypePairCreated        = "factory.pair_created"
	TypeReservesUpdated    = "pair.reserves_updated"
	TypeLiquidityProvided  = "pair.liquidity_provided"
	TypeLiquidityWithdrawn = "pair.liquidity_withdrawn"
	TypeSwapped            = "pair.swapped"
	TypeDeposit            = "weth.deposit"
	TypeWithdrawal         = "weth.withdrawal"
)

var (
	TransferTopic    = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ApprovalTopic    = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
	PairCreatedTopic = crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)"))
	SyncTopic        = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))
	MintTopic        = crypto.Keccak256Hash([]byte("Mint(address,uint256,uint256)"))
	BurnTopic        = crypto.Keccak256Hash([]byte("Burn(address,uint256,uint256,address)"))
	SwapTopic        = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	DepositTopic     = crypto.Keccak256Hash([]byte("Deposit(address,uint256)"))
	WithdrawalTopic  = crypto.Keccak256Hash([]byte("Withdrawal(address,uint256)"))
)

// Transfer records a balance movement of Asset. Mints have a zero From, burns
// a zero To.
type Transfer struct {
	Asset common.Address `json:"asset"`
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *uint256.Int   `json:"value"`
}

func (Transfer) EventType() string  { return TypeTransfer }
func (e Transfer) EventKey() string { return e.Asset.Hex() }
func (Transfer) Topic() common.Hash { return TransferTopic }

// Approval records a new allowance.
type Approval struct {
	Asset   common.Address `json:"asset"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   *uint256.Int   `json:"value"`
}

func (Approval) EventType() string  { return TypeApproval }
func (e Approval) EventKey() string { return e.Asset.Hex() }
func (Approval) Topic() common.Hash { return ApprovalTopic }

// PairCreated is emitted once per pair by the factory.
type PairCreated struct {
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
	Pair   common.Address `json:"pair"`
	Index  uint64         `json:"index"`
}

func (PairCreated) EventType() string  { return TypePairCreated }
func (e PairCreated) EventKey() string { return e.Pair.Hex() }
func (PairCreated) Topic() common.Hash { return PairCreatedTopic }

// ReservesUpdated follows every reserve synchronization.
type ReservesUpdated struct {
	Pair     common.Address `json:"pair"`
	Reserve0 *uint256.Int   `json:"reserve0"`
	Reserve1 *uint256.Int   `json:"reserve1"`
}

func (ReservesUpdated) EventType() string  { return TypeReservesUpdated }
func (e ReservesUpdated) EventKey() string { return e.Pair.Hex() }
func (ReservesUpdated) Topic() common.Hash { return SyncTopic }

// LiquidityProvided is emitted when shares are minted against a deposit.
type LiquidityProvided struct {
	Pair    common.Address `json:"pair"`
	Sender  common.Address `json:"sender"`
	Amount0 *uint256.Int   `json:"amount0"`
	Amount1 *uint256.Int   `json:"amount1"`
}

func (LiquidityProvided) EventType() string  { return TypeLiquidityProvided }
func (e LiquidityProvided) EventKey() string { return e.Pair.Hex() }
func (LiquidityProvided) Topic() common.Hash { return MintTopic }

// LiquidityWithdrawn is emitted when shares are burned for the underlying assets.
type LiquidityWithdrawn struct {
	Pair    common.Address `json:"pair"`
	Sender  common.Address `json:"sender"`
	Amount0 *uint256.Int   `json:"amount0"`
	Amount1 *uint256.Int   `json:"amount1"`
	To      common.Address `json:"to"`
}

func (LiquidityWithdrawn) EventType() string  { return TypeLiquidityWithdrawn }
func (e LiquidityWithdrawn) EventKey() string { return e.Pair.Hex() }
func (LiquidityWithdrawn) Topic() common.Hash { return BurnTopic }

// Swapped is emitted after a successful swap.
type Swapped struct {
	Pair       common.Address `json:"pair"`
	Sender     common.Address `json:"sender"`
	Amount0In  *uint256.Int   `json:"amount0In"`
	Amount1In  *uint256.Int   `json:"amount1In"`
	Amount0Out *uint256.Int   `json:"amount0Out"`
	Amount1Out *uint256.Int   `json:"amount1Out"`
	To         common.Address `json:"to"`
}

func (Swapped) EventType() string  { return TypeSwapped }
func (e Swapped) EventKey() string { return e.Pair.Hex() }
func (Swapped) Topic() common.Hash { return SwapTopic }

// Deposit is emitted when native currency is wrapped.
type Deposit struct {
	Wrapper common.Address `json:"wrapper"`
	Account common.Address `json:"account"`
	Amount  *uint256.Int   `json:"amount"`
}

func (Deposit) EventType() string  { return TypeDeposit }
func (e Deposit) EventKey() string { return e.Wrapper.Hex() }
func (Deposit) Topic() common.Hash { return DepositTopic }

// Withdrawal is emitted when wrapped currency is redeemed.
type Withdrawal struct {
	Wrapper common.Address `json:"wrapper"`
	Account common.Address `json:"account"`
	Amount  *uint256.Int   `json:"amount"`
}

func (Withdrawal) EventType() string  { return TypeWithdrawal }
func (e Withdrawal) EventKey() string { return e.Wrapper.Hex() }
func (Withdrawal) Topic() common.Hash { return WithdrawalTopic }
