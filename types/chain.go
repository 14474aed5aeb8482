package types

// ChainHead mirrors the most recently accepted block. It is an in-memory
// cache and is only updated after successful persistence.
type ChainHead struct {
	Slot          uint64 `json:"slot"`
	Hash          string `json:"hash"`
	PrevHash      string `json:"prev_hash"`
	JudgmentCount int    `json:"judgment_count"`
}

type IdentityKind string

const (
	IdentityLegacy IdentityKind = "legacy"
	IdentitySigned IdentityKind = "signed"
)

// Identity is the tagged block-producer variant: a legacy prefix stamp for
// single-operator deployments, or an operator signature.
type Identity struct {
	Kind       IdentityKind `json:"kind"`
	Prefix     string       `json:"prefix,omitempty"`
	OperatorID string       `json:"operator_id,omitempty"`
	PubKey     string       `json:"pubkey,omitempty"`
	Signature  string       `json:"signature,omitempty"`
}

func LegacyIdentity(prefix string) Identity {
	return Identity{Kind: IdentityLegacy, Prefix: prefix}
}

func SignedIdentity(operatorID, pubKey, signature string) Identity {
	return Identity{
		Kind:       IdentitySigned,
		OperatorID: operatorID,
		PubKey:     pubKey,
		Signature:  signature,
	}
}

// IsSigned reports whether the block carries an operator signature.
func (id Identity) IsSigned() bool {
	return id.Kind == IdentitySigned && id.Signature != ""
}
