// Package stateops binds the exchange's protocol schemas to their differ,
// patcher and JSON decoders, and turns raw snapshots into indexed views.
package stateops

import (
	"encoding/json"
	"fmt"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/patcher"
	poolregistry "github.com/defistate/defistate-amm-go/protocols/poolregistry"
	tokenpoolregistry "github.com/defistate/defistate-amm-go/protocols/tokenpoolregistry"
	tokenregistry "github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateOps is the facade over both directions of the stream: the exchange
// diffs consecutive snapshots and clients patch them back together.
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher
}

// differFor adapts a typed differ to the schema-agnostic signature.
func differFor[V any, D interface{ IsEmpty() bool }](fn func(old, new V) D) differ.ProtocolDiffer {
	return func(old, new any) (any, bool, error) {
		o, ok := old.(V)
		if !ok {
			return nil, false, fmt.Errorf("stateops: old view is %T", old)
		}
		n, ok := new.(V)
		if !ok {
			return nil, false, fmt.Errorf("stateops: new view is %T", new)
		}
		d := fn(o, n)
		return d, !d.IsEmpty(), nil
	}
}

// patcherFor adapts a typed patcher. A nil previous view patches from the
// zero value.
func patcherFor[V any, D any](fn func(prev V, diff D) (V, error)) patcher.PatcherFunc {
	return func(prevState, diffData any) (any, error) {
		var prev V
		if prevState != nil {
			p, ok := prevState.(V)
			if !ok {
				return nil, fmt.Errorf("stateops: previous view is %T", prevState)
			}
			prev = p
		}
		d, ok := diffData.(D)
		if !ok {
			return nil, fmt.Errorf("stateops: diff is %T", diffData)
		}
		return fn(prev, d)
	}
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	protocolDiffers := map[engine.ProtocolSchema]differ.ProtocolDiffer{
		tokenregistry.Schema:     differFor(tokenregistry.Differ),
		poolregistry.Schema:      differFor(poolregistry.Differ),
		tokenpoolregistry.Schema: differFor(tokenpoolregistry.TokenPoolRegistryDiffer),
		uniswapv2.Schema:         differFor(uniswapv2.Differ),
	}

	protocolPatchers := map[engine.ProtocolSchema]patcher.PatcherFunc{
		tokenregistry.Schema:     patcherFor(tokenregistry.Patcher),
		poolregistry.Schema:      patcherFor(poolregistry.Patcher),
		tokenpoolregistry.Schema: patcherFor(tokenpoolregistry.TokenPoolRegistryPatcher),
		uniswapv2.Schema:         patcherFor(uniswapv2.Patcher),
	}

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		ProtocolDiffers: protocolDiffers,
		Logger:          logger,
		Registry:        prometheusRegistry,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patchers: protocolPatchers,
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
	}, nil
}

func decode[T any](data json.RawMessage) (any, error) {
	var typed T
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	return typed, nil
}

// DecodeStateJSON decodes a protocol view by schema.
func (ops *StateOps) DecodeStateJSON(schema engine.ProtocolSchema, data json.RawMessage) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		return decode[[]tokenregistry.Token](data)
	case poolregistry.Schema:
		return decode[poolregistry.PoolRegistry](data)
	case tokenpoolregistry.Schema:
		return decode[*tokenpoolregistry.TokenPoolRegistryView](data)
	case uniswapv2.Schema:
		return decode[[]uniswapv2.Pool](data)
	default:
		return nil, fmt.Errorf("stateops: unknown schema %q", schema)
	}
}

// DecodeStateDiffJSON decodes a protocol diff by schema.
func (ops *StateOps) DecodeStateDiffJSON(schema engine.ProtocolSchema, data json.RawMessage) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		return decode[tokenregistry.TokenSystemDiff](data)
	case poolregistry.Schema:
		return decode[poolregistry.PoolRegistryDiff](data)
	case tokenpoolregistry.Schema:
		return decode[tokenpoolregistry.TokenPoolRegistryDiff](data)
	case uniswapv2.Schema:
		return decode[uniswapv2.UniswapV2SystemDiff](data)
	default:
		return nil, fmt.Errorf("stateops: unknown schema %q", schema)
	}
}
