package operator

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/zeyxx/CYNIC-sub012/block"
	"github.com/zeyxx/CYNIC-sub012/common"
	"github.com/zeyxx/CYNIC-sub012/types"
)

// Operator is a signing identity permitted to produce blocks. The ID is the
// base58 encoding of the ed25519 public key.
type Operator struct {
	ID     string
	PubKey ed25519.PublicKey
}

// Registry holds the local operator keypair and the known operator set for
// multi-operator deployments. Quorum is advisory only: it is reported, never
// enforced against block production.
type Registry struct {
	mu        sync.RWMutex
	selfID    string
	privKey   ed25519.PrivateKey
	pubKey    ed25519.PublicKey
	operators map[string]ed25519.PublicKey
	quorum    int
}

// NewRegistry creates a registry around the local private key. quorum <= 0
// means a simple majority of the registered operator set.
func NewRegistry(priv ed25519.PrivateKey, quorum int) (*Registry, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key size: %d", len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	id := common.EncodeBytesToBase58(pub)
	r := &Registry{
		selfID:    id,
		privKey:   priv,
		pubKey:    pub,
		operators: map[string]ed25519.PublicKey{id: pub},
		quorum:    quorum,
	}
	return r, nil
}

// AddOperator registers a peer operator by its base58 public key.
func (r *Registry) AddOperator(pubKeyB58 string) error {
	raw, err := common.DecodeBase58ToBytes(pubKeyB58)
	if err != nil {
		return fmt.Errorf("invalid operator key %s: %w", pubKeyB58, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid operator key size: %d", len(raw))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operators[pubKeyB58] = ed25519.PublicKey(raw)
	return nil
}

// SignBlock stamps the block with this operator's signed identity. The block
// must not be sealed yet: the signature is part of the hashed content.
func (r *Registry) SignBlock(b *block.Block) error {
	payload, err := b.SigningPayload()
	if err != nil {
		return fmt.Errorf("failed to build signing payload: %w", err)
	}
	sig := ed25519.Sign(r.privKey, payload)
	b.Identity = types.SignedIdentity(
		r.selfID,
		common.EncodeBytesToBase58(r.pubKey),
		common.EncodeBytesToBase58(sig),
	)
	return nil
}

// VerifyBlock checks the block's signed identity against the operator set.
func (r *Registry) VerifyBlock(b *block.Block) error {
	if !b.Identity.IsSigned() {
		return fmt.Errorf("block %d carries no signature", b.Slot)
	}
	r.mu.RLock()
	pub, known := r.operators[b.Identity.OperatorID]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("unknown operator %s", b.Identity.OperatorID)
	}
	sig, err := common.DecodeBase58ToBytes(b.Identity.Signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}
	payload, err := b.SigningPayload()
	if err != nil {
		return fmt.Errorf("failed to build signing payload: %w", err)
	}
	if !ed25519.Verify(pub, payload, sig) {
		return fmt.Errorf("signature verification failed for operator %s", b.Identity.OperatorID)
	}
	return nil
}

// GetSelf returns the local operator identity.
func (r *Registry) GetSelf() Operator {
	return Operator{ID: r.selfID, PubKey: r.pubKey}
}

// GetAllOperators returns the known operator set.
func (r *Registry) GetAllOperators() []Operator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Operator, 0, len(r.operators))
	for id, pub := range r.operators {
		out = append(out, Operator{ID: id, PubKey: pub})
	}
	return out
}

// HasQuorum reports whether enough operators are registered. Advisory only.
func (r *Registry) HasQuorum() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	required := r.quorum
	if required <= 0 {
		required = len(r.operators)/2 + 1
	}
	return len(r.operators) >= required
}
