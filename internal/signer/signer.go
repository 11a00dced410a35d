package signer

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Signer authorises transactions on behalf of the agent's wallet.
type Signer interface {
	PublicKey() string
	Sign(message []byte) ([]byte, error)
}

// LocalSigner signs with an in-process ed25519 key.
type LocalSigner struct {
	key    ed25519.PrivateKey
	pubkey string
}

// NewLocalSigner builds a signer from a 64-byte ed25519 private key.
func NewLocalSigner(key []byte) (*LocalSigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signer: key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	priv := ed25519.PrivateKey(key)
	pub := priv.Public().(ed25519.PublicKey)
	return &LocalSigner{key: priv, pubkey: base58.Encode(pub)}, nil
}

// NewLocalSignerFromBase58 builds a signer from a base58-encoded key, the
// format wallet exports use.
func NewLocalSignerFromBase58(encoded string) (*LocalSigner, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("signer: decode key: %w", err)
	}
	return NewLocalSigner(raw)
}

// PublicKey returns the base58 wallet address.
func (s *LocalSigner) PublicKey() string {
	return s.pubkey
}

// Sign produces an ed25519 signature over the message.
func (s *LocalSigner) Sign(message []byte) ([]byte, error) {
	if len(message) == 0 {
		return nil, errors.New("signer: empty message")
	}
	return ed25519.Sign(s.key, message), nil
}

// ValidPubkey reports whether the address decodes to a point on the
// ed25519 curve.
func ValidPubkey(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

var _ Signer = (*LocalSigner)(nil)
