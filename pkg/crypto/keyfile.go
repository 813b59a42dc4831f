// Copyright 2025 Certen Protocol

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrGenerateKeyPair loads the ed25519 key stored at path, generating
// and persisting a fresh one (hex-encoded, owner-only permissions) if the
// file does not yet exist.
func LoadOrGenerateKeyPair(path string) (*KeyPair, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("crypto: create key directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("crypto: generate key: %w", err)
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(priv)), 0600); err != nil {
			return nil, fmt.Errorf("crypto: save key to %s: %w", path, err)
		}
		return &KeyPair{Public: pub, Private: priv}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read key from %s: %w", path, err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("crypto: decode key from %s: %w", path, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: invalid key size in %s: expected %d, got %d", path, ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{Public: pub, Private: priv}, nil
}
