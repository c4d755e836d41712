package exchange

import (
	"context"

	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/permit"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/factory"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/router"
	"github.com/defistate/defistate-amm-go/protocols/weth"
)

// Tx is the handle a unit of work mutates the exchange through. It is only
// valid inside the Execute or View call that created it.
type Tx struct {
	ctx context.Context
	ex  *Exchange
}

// Context is the context Execute was called with.
func (tx *Tx) Context() context.Context { return tx.ctx }

func (tx *Tx) Router() *router.Router          { return tx.ex.router }
func (tx *Tx) Factory() *factory.Factory       { return tx.ex.factory }
func (tx *Tx) Ledger() *ledger.Ledger          { return tx.ex.ledger }
func (tx *Tx) WETH() *weth.WETH                { return tx.ex.weth }
func (tx *Tx) Permits() *permit.Registry       { return tx.ex.permits }
func (tx *Tx) Tokens() *tokenregistry.Registry { return tx.ex.tokens }

// RegisterToken records metadata for a token, assigning an ID if it is new.
func (tx *Tx) RegisterToken(t tokenregistry.Token) tokenregistry.Token {
	return tx.ex.tokens.Register(t)
}
