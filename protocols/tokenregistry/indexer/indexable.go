package indexer

import (
	"strings"

	tokenregistry "github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedTokenSystem values from token registry snapshots.
type Indexer struct{}

func New() *Indexer {
	return &Indexer{}
}

func (i *Indexer) Index(tokens []tokenregistry.Token) IndexedTokenSystem {
	return NewIndexableTokenSystem(tokens)
}

// IndexableTokenSystem provides fast, indexed access to token registry data.
type IndexableTokenSystem struct {
	byID      map[uint64]tokenregistry.Token
	byAddress map[common.Address]tokenregistry.Token
	bySymbol  map[string]tokenregistry.Token
	all       []tokenregistry.Token
}

// NewIndexableTokenSystem indexes tokens by id, address and upper-cased
// symbol. When symbols collide the lowest id wins.
func NewIndexableTokenSystem(tokens []tokenregistry.Token) *IndexableTokenSystem {
	its := &IndexableTokenSystem{
		byID:      make(map[uint64]tokenregistry.Token, len(tokens)),
		byAddress: make(map[common.Address]tokenregistry.Token, len(tokens)),
		bySymbol:  make(map[string]tokenregistry.Token, len(tokens)),
		all:       tokens,
	}
	for _, t := range tokens {
		its.byID[t.ID] = t
		its.byAddress[t.Address] = t
		if t.Symbol == "" {
			continue
		}
		sym := strings.ToUpper(t.Symbol)
		if prev, ok := its.bySymbol[sym]; !ok || t.ID < prev.ID {
			its.bySymbol[sym] = t
		}
	}
	return its
}

func (its *IndexableTokenSystem) GetByID(id uint64) (tokenregistry.Token, bool) {
	t, ok := its.byID[id]
	return t, ok
}

func (its *IndexableTokenSystem) GetByAddress(address common.Address) (tokenregistry.Token, bool) {
	t, ok := its.byAddress[address]
	return t, ok
}

// GetBySymbol looks a token up by symbol, ignoring case.
func (its *IndexableTokenSystem) GetBySymbol(symbol string) (tokenregistry.Token, bool) {
	t, ok := its.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// All returns a copy of every indexed token.
func (its *IndexableTokenSystem) All() []tokenregistry.Token {
	allCopy := make([]tokenregistry.Token, len(its.all))
	copy(allCopy, its.all)
	return allCopy
}
