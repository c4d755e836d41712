// Package ledger keeps fungible balances, allowances and supplies for every
// asset known to the exchange, including pair share tokens and the native
// currency.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/defistate/defistate-amm-go/events"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NativeAsset is the pseudo-address under which native currency balances are kept.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSupplyOverflow        = errors.New("supply overflow")
	ErrNilAmount             = errors.New("amount cannot be nil")
)

// MaxAllowance never decreases on TransferFrom.
var MaxAllowance = new(uint256.Int).SetAllOne()

type holderKey struct {
	asset  common.Address
	holder common.Address
}

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// Ledger is an in-memory, journaled multi-asset balance sheet.
type Ledger struct {
	journal    *state.Journal
	emitter    events.Emitter
	balances   map[holderKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     map[common.Address]*uint256.Int
}

// New creates an empty ledger. Every mutation is recorded in journal and
// announced through emitter.
func New(journal *state.Journal, emitter events.Emitter) *Ledger {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{
		journal:    journal,
		emitter:    emitter,
		balances:   make(map[holderKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		supply:     make(map[common.Address]*uint256.Int),
	}
}

// BalanceOf returns a copy of holder's balance of asset.
func (l *Ledger) BalanceOf(asset, holder common.Address) *uint256.Int {
	if b, ok := l.balances[holderKey{asset, holder}]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// TotalSupply returns a copy of the outstanding supply of asset.
func (l *Ledger) TotalSupply(asset common.Address) *uint256.Int {
	if s, ok := l.supply[asset]; ok {
		return s.Clone()
	}
	return new(uint256.Int)
}

// Allowance returns how much spender may move out of owner's balance of asset.
func (l *Ledger) Allowance(asset, owner, spender common.Address) *uint256.Int {
	if a, ok := l.allowances[allowanceKey{asset, owner, spender}]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

// Mint creates amount of asset in to's balance.
func (l *Ledger) Mint(asset, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	supply, overflow := new(uint256.Int).AddOverflow(l.TotalSupply(asset), amount)
	if overflow {
		return fmt.Errorf("%w: minting %s of %s", ErrSupplyOverflow, amount.Dec(), asset.Hex())
	}
	// The balance cannot overflow if the supply did not.
	balance := new(uint256.Int).Add(l.BalanceOf(asset, to), amount)
	l.setSupply(asset, supply)
	l.setBalance(asset, to, balance)
	l.emitter.Emit(events.Transfer{Asset: asset, From: common.Address{}, To: to, Value: amount.Clone()})
	return nil
}

// Burn destroys amount of asset from from's balance.
func (l *Ledger) Burn(asset, from common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	balance := l.BalanceOf(asset, from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, burning %s", ErrInsufficientBalance, from.Hex(), balance.Dec(), asset.Hex(), amount.Dec())
	}
	l.setBalance(asset, from, balance.Sub(balance, amount))
	supply := l.TotalSupply(asset)
	l.setSupply(asset, supply.Sub(supply, amount))
	l.emitter.Emit(events.Transfer{Asset: asset, From: from, To: common.Address{}, Value: amount.Clone()})
	return nil
}

// Transfer moves amount of asset from from to to.
func (l *Ledger) Transfer(asset, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	fromBalance := l.BalanceOf(asset, from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, sending %s", ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), asset.Hex(), amount.Dec())
	}
	if from != to {
		l.setBalance(asset, from, fromBalance.Sub(fromBalance, amount))
		toBalance := l.BalanceOf(asset, to)
		l.setBalance(asset, to, toBalance.Add(toBalance, amount))
	}
	l.emitter.Emit(events.Transfer{Asset: asset, From: from, To: to, Value: amount.Clone()})
	return nil
}

// Approve sets spender's allowance over owner's balance of asset.
func (l *Ledger) Approve(asset, owner, spender common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	l.setAllowance(allowanceKey{asset, owner, spender}, amount.Clone())
	l.emitter.Emit(events.Approval{Asset: asset, Owner: owner, Spender: spender, Value: amount.Clone()})
	return nil
}

// TransferFrom moves amount of asset out of from's balance on behalf of
// spender, consuming allowance unless it is MaxAllowance.
func (l *Ledger) TransferFrom(asset, spender, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	key := allowanceKey{asset, from, spender}
	allowance := l.Allowance(asset, from, spender)
	if !allowance.Eq(MaxAllowance) && allowance.Lt(amount) {
		return fmt.Errorf("%w: %s may move %s of %s for %s, requested %s", ErrInsufficientAllowance, spender.Hex(), allowance.Dec(), asset.Hex(), from.Hex(), amount.Dec())
	}
	return l.journal.Atomic(func() error {
		if !allowance.Eq(MaxAllowance) {
			l.setAllowance(key, allowance.Sub(allowance, amount))
		}
		return l.Transfer(asset, from, to, amount)
	})
}

func (l *Ledger) setBalance(asset, holder common.Address, v *uint256.Int) {
	key := holderKey{asset, holder}
	prev, had := l.balances[key]
	l.journal.Append(func() {
		if had {
			l.balances[key] = prev
		} else {
			delete(l.balances, key)
		}
	})
	l.balances[key] = v
}

func (l *Ledger) setSupply(asset common.Address, v *uint256.Int) {
	prev, had := l.supply[asset]
	l.journal.Append(func() {
		if had {
			l.supply[asset] = prev
		} else {
			delete(l.supply, asset)
		}
	})
	l.supply[asset] = v
}

func (l *Ledger) setAllowance(key allowanceKey, v *uint256.Int) {
	prev, had := l.allowances[key]
	l.journal.Append(func() {
		if had {
			l.allowances[key] = prev
		} else {
			delete(l.allowances, key)
		}
	})
	l.allowances[key] = v
}

// Balance is one non-zero entry of the balance sheet.
type Balance struct {
	Asset  common.Address `json:"asset"`
	Holder common.Address `json:"holder"`
	Amount *uint256.Int   `json:"amount"`
}

// Allowance is one non-zero allowance.
type Allowance struct {
	Asset   common.Address `json:"asset"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"amount"`
}

// Snapshot is a serializable copy of the ledger. Supplies are derived from
// balances on restore.
type Snapshot struct {
	Balances   []Balance   `json:"balances"`
	Allowances []Allowance `json:"allowances"`
}

// Snapshot returns every non-zero balance and allowance in a deterministic order.
func (l *Ledger) Snapshot() Snapshot {
	var snap Snapshot
	for k, v := range l.balances {
		if v.IsZero() {
			continue
		}
		snap.Balances = append(snap.Balances, Balance{Asset: k.asset, Holder: k.holder, Amount: v.Clone()})
	}
	for k, v := range l.allowances {
		if v.IsZero() {
			continue
		}
		snap.Allowances = append(snap.Allowances, Allowance{Asset: k.asset, Owner: k.owner, Spender: k.spender, Amount: v.Clone()})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		a, b := snap.Balances[i], snap.Balances[j]
		if a.Asset != b.Asset {
			return a.Asset.Cmp(b.Asset) < 0
		}
		return a.Holder.Cmp(b.Holder) < 0
	})
	sort.Slice(snap.Allowances, func(i, j int) bool {
		a, b := snap.Allowances[i], snap.Allowances[j]
		if a.Asset != b.Asset {
			return a.Asset.Cmp(b.Asset) < 0
		}
		if a.Owner != b.Owner {
			return a.Owner.Cmp(b.Owner) < 0
		}
		return a.Spender.Cmp(b.Spender) < 0
	})
	return snap
}

// Validate reports whether snap can be restored: every amount is set and no
// asset's balances sum past the uint256 range.
func (snap Snapshot) Validate() error {
	supply := make(map[common.Address]*uint256.Int)
	for _, b := range snap.Balances {
		if b.Amount == nil {
			return fmt.Errorf("%w: balance of %s for %s", ErrNilAmount, b.Asset.Hex(), b.Holder.Hex())
		}
		s, ok := supply[b.Asset]
		if !ok {
			s = new(uint256.Int)
			supply[b.Asset] = s
		}
		if _, overflow := s.AddOverflow(s, b.Amount); overflow {
			return fmt.Errorf("%w: restoring %s", ErrSupplyOverflow, b.Asset.Hex())
		}
	}
	for _, a := range snap.Allowances {
		if a.Amount == nil {
			return fmt.Errorf("%w: allowance of %s", ErrNilAmount, a.Asset.Hex())
		}
	}
	return nil
}

// Restore replaces the ledger contents with snap. It is not journaled and is
// meant for loading checkpoints into a fresh ledger. On error the ledger is
// left unchanged.
func (l *Ledger) Restore(snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	balances := make(map[holderKey]*uint256.Int, len(snap.Balances))
	supply := make(map[common.Address]*uint256.Int)
	for _, b := range snap.Balances {
		balances[holderKey{b.Asset, b.Holder}] = b.Amount.Clone()
		s, ok := supply[b.Asset]
		if !ok {
			s = new(uint256.Int)
			supply[b.Asset] = s
		}
		s.Add(s, b.Amount)
	}
	allowances := make(map[allowanceKey]*uint256.Int, len(snap.Allowances))
	for _, a := range snap.Allowances {
		allowances[allowanceKey{a.Asset, a.Owner, a.Spender}] = a.Amount.Clone()
	}
	l.balances = balances
	l.allowances = allowances
	l.supply = supply
	return nil
}
