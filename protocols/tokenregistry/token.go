// Package tokenregistry assigns stable numeric IDs to the assets traded on
// the exchange and carries their display metadata.
package tokenregistry

import (
	"sort"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// Schema identifies the token list layout on the state stream.
const Schema = "defistate/token-registry/Token@v2"

// Token is a safe, structured representation of a token's data for external use.
type Token struct {
	ID       uint64         `json:"id"`
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Registry is the mutable token index. Writes are journaled. It is not safe
// for concurrent use.
type Registry struct {
	journal   *state.Journal
	tokens    []Token
	byAddress map[common.Address]uint64
}

// NewRegistry returns an empty registry.
func NewRegistry(journal *state.Journal) *Registry {
	return &Registry{
		journal:   journal,
		byAddress: make(map[common.Address]uint64),
	}
}

// Register records metadata for t.Address, assigning the next ID if the token
// is new. The ID field of t is ignored.
func (r *Registry) Register(t Token) Token {
	if id, ok := r.byAddress[t.Address]; ok {
		prev := r.tokens[id]
		t.ID = id
		r.tokens[id] = t
		r.journal.Append(func() { r.tokens[id] = prev })
		return t
	}
	t.ID = uint64(len(r.tokens))
	r.tokens = append(r.tokens, t)
	r.byAddress[t.Address] = t.ID
	r.journal.Append(func() {
		r.tokens = r.tokens[:len(r.tokens)-1]
		delete(r.byAddress, t.Address)
	})
	return t
}

// Ensure returns the token at addr, registering it without metadata if unseen.
func (r *Registry) Ensure(addr common.Address) Token {
	if t, ok := r.GetByAddress(addr); ok {
		return t
	}
	return r.Register(Token{Address: addr})
}

func (r *Registry) GetByAddress(addr common.Address) (Token, bool) {
	id, ok := r.byAddress[addr]
	if !ok {
		return Token{}, false
	}
	return r.tokens[id], true
}

func (r *Registry) GetByID(id uint64) (Token, bool) {
	if id >= uint64(len(r.tokens)) {
		return Token{}, false
	}
	return r.tokens[id], true
}

// View returns a copy of all tokens ordered by ID.
func (r *Registry) View() []Token {
	out := make([]Token, len(r.tokens))
	copy(out, r.tokens)
	return out
}

func sortTokens(tokens []Token) {
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
}
