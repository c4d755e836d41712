// Package weth wraps the native currency into a ledger asset so it can be
// pooled like any other token. One wrapped unit is always backed by one
// native unit held at the wrapper's address.
package weth

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/events"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger is the subset of the asset ledger the wrapper needs.
type Ledger interface {
	BalanceOf(asset, holder common.Address) *uint256.Int
	TotalSupply(asset common.Address) *uint256.Int
	Transfer(asset, from, to common.Address, amount *uint256.Int) error
	Mint(asset, to common.Address, amount *uint256.Int) error
	Burn(asset, from common.Address, amount *uint256.Int) error
}

// Config holds the configuration for a WETH wrapper.
type Config struct {
	Address common.Address
	Ledger  Ledger
	Journal *state.Journal
	Emitter events.Emitter
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	if c.Address == ledger.NativeAsset {
		return errors.New("config: Address must differ from the native asset")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Journal == nil {
		return errors.New("config: Journal is required")
	}
	return nil
}

// WETH is the native-currency wrapper.
type WETH struct {
	address common.Address
	ledger  Ledger
	journal *state.Journal
	emitter events.Emitter
}

func New(cfg Config) (*WETH, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &WETH{address: cfg.Address, ledger: cfg.Ledger, journal: cfg.Journal, emitter: emitter}, nil
}

// Address is the wrapped asset's address.
func (w *WETH) Address() common.Address { return w.address }

// Deposit locks amount of account's native currency and credits the same
// amount of the wrapped asset.
func (w *WETH) Deposit(account common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ledger.ErrNilAmount
	}
	return w.journal.Atomic(func() error {
		if err := w.ledger.Transfer(ledger.NativeAsset, account, w.address, amount); err != nil {
			return fmt.Errorf("weth deposit: %w", err)
		}
		if err := w.ledger.Mint(w.address, account, amount); err != nil {
			return fmt.Errorf("weth deposit: %w", err)
		}
		w.emitter.Emit(events.Deposit{Wrapper: w.address, Account: account, Amount: amount.Clone()})
		return nil
	})
}

// Withdraw burns amount of account's wrapped balance and releases the backing
// native currency to it.
func (w *WETH) Withdraw(account common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ledger.ErrNilAmount
	}
	return w.journal.Atomic(func() error {
		if err := w.ledger.Burn(w.address, account, amount); err != nil {
			return fmt.Errorf("weth withdraw: %w", err)
		}
		if err := w.ledger.Transfer(ledger.NativeAsset, w.address, account, amount); err != nil {
			return fmt.Errorf("weth withdraw: %w", err)
		}
		w.emitter.Emit(events.Withdrawal{Wrapper: w.address, Account: account, Amount: amount.Clone()})
		return nil
	})
}

// Backing returns the native currency held against the wrapped supply.
func (w *WETH) Backing() *uint256.Int {
	return w.ledger.BalanceOf(ledger.NativeAsset, w.address)
}
