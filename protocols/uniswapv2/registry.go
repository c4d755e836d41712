package uniswapv2

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Schema identifies the Pool view layout on the state stream.
const Schema = "defistate/uniswap-v2/PoolView@v2"

// Pool is the read-only view of a pair published in exchange snapshots.
// Token0 and Token1 are token registry IDs; TokenAddress0/1 are their addresses.
type Pool struct {
	ID                   uint64         `json:"id"`
	Address              common.Address `json:"address"`
	Token0               uint64         `json:"token0"`
	Token1               uint64         `json:"token1"`
	TokenAddress0        common.Address `json:"tokenAddress0"`
	TokenAddress1        common.Address `json:"tokenAddress1"`
	Reserve0             *uint256.Int   `json:"reserve0"`
	Reserve1             *uint256.Int   `json:"reserve1"`
	BlockTimestampLast   uint32         `json:"blockTimestampLast"`
	Price0CumulativeLast *uint256.Int   `json:"price0CumulativeLast"`
	Price1CumulativeLast *uint256.Int   `json:"price1CumulativeLast"`
	KLast                *uint256.Int   `json:"kLast"`
	TotalSupply          *uint256.Int   `json:"totalSupply"`
	FeeBps               uint16         `json:"feeBps"` // i.e 30 for 0.3%
}

// Copy returns a pool that shares no memory with p.
func (p Pool) Copy() Pool {
	c := p
	c.Reserve0 = cloneInt(p.Reserve0)
	c.Reserve1 = cloneInt(p.Reserve1)
	c.Price0CumulativeLast = cloneInt(p.Price0CumulativeLast)
	c.Price1CumulativeLast = cloneInt(p.Price1CumulativeLast)
	c.KLast = cloneInt(p.KLast)
	c.TotalSupply = cloneInt(p.TotalSupply)
	return c
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}

func intEqual(a, b *uint256.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Eq(b)
}
