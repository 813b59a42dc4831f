// Copyright 2025 Certen Protocol
//
// Domain-separated Ed25519 signing for transactions, proposals and votes.

package crypto

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Domain tags prefix every signed message so a signature produced for one
// message kind can never be replayed as another.
const (
	DomainTx       = "RELYO_TX:"
	DomainProposal = "RAINSONET_PROPOSAL:"
	DomainVote     = "RAINSONET_VOTE:"
)

var (
	ErrInvalidPrivateKeySize = errors.New("crypto: invalid ed25519 private key size")
	ErrInvalidPublicKeySize  = errors.New("crypto: invalid ed25519 public key size")
	ErrInvalidSignatureSize  = errors.New("crypto: invalid ed25519 signature size")
	ErrSignatureVerification = errors.New("crypto: signature verification failed")
)

// KeyPair wraps an ed25519 identity used by a validator or wallet account.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh ed25519 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// KeyPairFromSeed derives a deterministic keypair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Sign signs domain||message with the private key.
func (kp *KeyPair) Sign(domain, message []byte) []byte {
	return ed25519.Sign(kp.Private, append(append([]byte{}, domain...), message...))
}

// Verify checks a signature over domain||message against a public key.
func Verify(pub ed25519.PublicKey, domain, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, append(append([]byte{}, domain...), message...), sig)
}

// SignTx signs a canonical transaction encoding under the tx domain tag.
func SignTx(kp *KeyPair, encoded []byte) []byte {
	return kp.Sign([]byte(DomainTx), encoded)
}

// VerifyTx verifies a transaction signature.
func VerifyTx(pub ed25519.PublicKey, encoded, sig []byte) bool {
	return Verify(pub, []byte(DomainTx), encoded, sig)
}

// SignProposal signs a canonical proposal encoding under the proposal domain tag.
func SignProposal(kp *KeyPair, encoded []byte) []byte {
	return kp.Sign([]byte(DomainProposal), encoded)
}

// VerifyProposal verifies a proposal signature.
func VerifyProposal(pub ed25519.PublicKey, encoded, sig []byte) bool {
	return Verify(pub, []byte(DomainProposal), encoded, sig)
}

// SignVote signs a canonical vote encoding under the vote domain tag.
func SignVote(kp *KeyPair, encoded []byte) []byte {
	return kp.Sign([]byte(DomainVote), encoded)
}

// VerifyVote verifies a vote signature.
func VerifyVote(pub ed25519.PublicKey, encoded, sig []byte) bool {
	return Verify(pub, []byte(DomainVote), encoded, sig)
}

// PublicKeyHex renders a public key as lowercase hex.
func PublicKeyHex(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// ParsePublicKeyHex parses a hex-encoded ed25519 public key.
func ParsePublicKeyHex(s string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode public key hex: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKeySize
	}
	return ed25519.PublicKey(b), nil
}

// PutUint64LE is the little-endian integer encoding the signing messages use
// for every multi-byte numeric field, per the wire format.
func PutUint64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// PutUint32LE encodes a 32-bit value little-endian.
func PutUint32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
