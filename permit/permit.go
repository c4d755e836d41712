// Package permit implements signature-based approvals: an owner signs an
// EIP-712 typed message off-line and anyone may submit it to set an allowance
// on the owner's behalf.
package permit

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"

	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	// DomainTypeHash is keccak256("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)").
	DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	// PermitTypeHash is keccak256("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)").
	PermitTypeHash = crypto.Keccak256Hash([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
)

var ErrInvalidSignature = errors.New("permit: invalid signature")

// Approver sets allowances.
type Approver interface {
	Approve(asset, owner, spender common.Address, amount *uint256.Int) error
}

// Config holds the configuration for a Registry.
type Config struct {
	ChainID uint64
	// Name and Version of the signing domain. They default to "Uniswap V2" and "1".
	Name    string
	Version string

	Ledger  Approver
	Journal *state.Journal
	Clock   func() uint64
}

func (c *Config) validate() error {
	if c.ChainID == 0 {
		return errors.New("config: ChainID is required")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Journal == nil {
		return errors.New("config: Journal is required")
	}
	if c.Clock == nil {
		return errors.New("config: Clock is required")
	}
	return nil
}

type nonceKey struct {
	asset common.Address
	owner common.Address
}

// Registry verifies permits and tracks per-owner nonces for every asset.
type Registry struct {
	chainID     uint64
	nameHash    common.Hash
	versionHash common.Hash

	nonces map[nonceKey]uint64

	ledger  Approver
	journal *state.Journal
	clock   func() uint64
}

func New(cfg Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "Uniswap V2"
	}
	if version == "" {
		version = "1"
	}
	return &Registry{
		chainID:     cfg.ChainID,
		nameHash:    crypto.Keccak256Hash([]byte(name)),
		versionHash: crypto.Keccak256Hash([]byte(version)),
		nonces:      make(map[nonceKey]uint64),
		ledger:      cfg.Ledger,
		journal:     cfg.Journal,
		clock:       cfg.Clock,
	}, nil
}

func word(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

// DomainSeparator binds signatures to one asset on one chain.
func (r *Registry) DomainSeparator(asset common.Address) common.Hash {
	return crypto.Keccak256Hash(
		DomainTypeHash.Bytes(),
		r.nameHash.Bytes(),
		r.versionHash.Bytes(),
		word(uint256.NewInt(r.chainID)),
		common.LeftPadBytes(asset.Bytes(), 32),
	)
}

// Digest is the message an owner signs to approve value for spender.
func (r *Registry) Digest(asset, owner, spender common.Address, value *uint256.Int, nonce, deadline uint64) common.Hash {
	structHash := crypto.Keccak256Hash(
		PermitTypeHash.Bytes(),
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(spender.Bytes(), 32),
		word(value),
		word(uint256.NewInt(nonce)),
		word(uint256.NewInt(deadline)),
	)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, r.DomainSeparator(asset).Bytes(), structHash.Bytes())
}

// Nonce returns the number of permits owner has used on asset.
func (r *Registry) Nonce(asset, owner common.Address) uint64 {
	return r.nonces[nonceKey{asset, owner}]
}

// Permit checks a signed approval and applies it. The signature is the
// 65-byte [R || S || V] form; V may be 0/1 or 27/28.
func (r *Registry) Permit(asset, owner, spender common.Address, value *uint256.Int, deadline uint64, sig []byte) error {
	if now := r.clock(); deadline < now {
		return fmt.Errorf("%w: permit deadline %d before %d", uniswapv2.ErrExpired, deadline, now)
	}
	if value == nil {
		return fmt.Errorf("%w: nil value", ErrInvalidSignature)
	}
	key := nonceKey{asset, owner}
	nonce := r.nonces[key]
	signer, err := Recover(r.Digest(asset, owner, spender, value, nonce, deadline), sig)
	if err != nil {
		return err
	}
	if signer == (common.Address{}) || signer != owner {
		return fmt.Errorf("%w: signed by %s, not %s", ErrInvalidSignature, signer.Hex(), owner.Hex())
	}
	return r.journal.Atomic(func() error {
		r.setNonce(key, nonce+1)
		return r.ledger.Approve(asset, owner, spender, value)
	})
}

func (r *Registry) setNonce(key nonceKey, v uint64) {
	prev, had := r.nonces[key]
	r.journal.Append(func() {
		if had {
			r.nonces[key] = prev
		} else {
			delete(r.nonces, key)
		}
	})
	r.nonces[key] = v
}

// Sign produces a permit signature over digest.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(digest.Bytes(), key)
}

// Recover returns the address that signed digest.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Nonce is one persisted nonce counter.
type Nonce struct {
	Asset common.Address `json:"asset"`
	Owner common.Address `json:"owner"`
	Value uint64         `json:"value"`
}

// Nonces returns every non-zero nonce in a deterministic order.
func (r *Registry) Nonces() []Nonce {
	out := make([]Nonce, 0, len(r.nonces))
	for k, v := range r.nonces {
		out = append(out, Nonce{Asset: k.asset, Owner: k.owner, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset.Cmp(out[j].Asset) < 0
		}
		return out[i].Owner.Cmp(out[j].Owner) < 0
	})
	return out
}

// Restore replaces the nonce table. It is not journaled.
func (r *Registry) Restore(nonces []Nonce) {
	r.nonces = make(map[nonceKey]uint64, len(nonces))
	for _, n := range nonces {
		r.nonces[nonceKey{n.Asset, n.Owner}] = n.Value
	}
}
