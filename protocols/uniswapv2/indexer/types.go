package indexer

import (
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedUniswapV2 defines the methods for accessing indexed pool views.
type IndexedUniswapV2 interface {
	GetByID(id uint64) (uniswapv2.Pool, bool)
	GetByAddress(address common.Address) (uniswapv2.Pool, bool)
	All() []uniswapv2.Pool
}
