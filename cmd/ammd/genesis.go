package main

import (
	"context"
	"fmt"
	"math"

	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/exchange"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/router"
	"github.com/ethereum/go-ethereum/common"
)

// applyGenesis registers the genesis tokens, mints the initial balances and
// seeds the genesis pairs in a single unit of work.
func applyGenesis(ctx context.Context, ex *exchange.Exchange, g config.GenesisConfig) error {
	return ex.Execute(ctx, func(tx *exchange.Tx) error {
		for _, t := range g.Tokens {
			tx.RegisterToken(tokenregistry.Token{
				Address:  t.Address,
				Name:     t.Name,
				Symbol:   t.Symbol,
				Decimals: t.Decimals,
			})
		}
		for _, alloc := range g.Balances {
			amount, err := alloc.Value()
			if err != nil {
				return err
			}
			asset := alloc.Asset
			if asset == (common.Address{}) {
				asset = ledger.NativeAsset
			}
			if err := tx.Ledger().Mint(asset, alloc.Account, amount); err != nil {
				return fmt.Errorf("genesis mint of %s to %s: %w", asset.Hex(), alloc.Account.Hex(), err)
			}
		}
		for _, gp := range g.Pairs {
			if err := seedPair(tx, gp); err != nil {
				return err
			}
		}
		return nil
	})
}

// seedPair deposits the pair's amounts through the router. The provider's
// router allowances are put back afterwards.
func seedPair(tx *exchange.Tx, gp config.GenesisPair) error {
	amountA, amountB, err := gp.Amounts()
	if err != nil {
		return err
	}
	r, l := tx.Router(), tx.Ledger()
	prevA := l.Allowance(gp.TokenA, gp.Provider, r.Address())
	prevB := l.Allowance(gp.TokenB, gp.Provider, r.Address())
	if err := l.Approve(gp.TokenA, gp.Provider, r.Address(), amountA); err != nil {
		return err
	}
	if err := l.Approve(gp.TokenB, gp.Provider, r.Address(), amountB); err != nil {
		return err
	}
	_, err = r.AddLiquidity(gp.Provider, router.AddLiquidityParams{
		TokenA:         gp.TokenA,
		TokenB:         gp.TokenB,
		AmountADesired: amountA,
		AmountBDesired: amountB,
		To:             gp.Provider,
		Deadline:       math.MaxUint64,
	})
	if err != nil {
		return fmt.Errorf("genesis pair %s/%s: %w", gp.TokenA.Hex(), gp.TokenB.Hex(), err)
	}
	if err := l.Approve(gp.TokenA, gp.Provider, r.Address(), prevA); err != nil {
		return err
	}
	if err := l.Approve(gp.TokenB, gp.Provider, r.Address(), prevB); err != nil {
		return err
	}
	return nil
}
