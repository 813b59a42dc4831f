// Copyright 2025 Certen Protocol
//
// Genesis parsing and application, ground: original_source's
// modules/relyo/src/genesis.rs GenesisConfig/GenesisInitializer, adapted
// to the account-ledger model (§6).
package genesis

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Zarethos/Rainsonet/pkg/consensus"
	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/ledger"
)

// Allocation is one genesis token grant.
type Allocation struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// Validator is one genesis validator entry.
type Validator struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
	Stake     uint64 `json:"stake"`
}

// Config is the on-disk genesis document (§6: chain_name, chain_id,
// timestamp, validators, allocations, relyo_config).
type Config struct {
	ChainName   string       `json:"chain_name"`
	ChainID     uint64       `json:"chain_id"`
	Timestamp   int64        `json:"timestamp"`
	Validators  []Validator  `json:"validators"`
	Allocations []Allocation `json:"allocations"`
	RelyoConfig RelyoConfig  `json:"relyo_config"`
}

// RelyoConfig mirrors the tunables original_source's RelyoConfig carries.
// The values are parsed but not applied: the node takes its tunables from
// pkg/config.
type RelyoConfig struct {
	MinFee      uint64 `json:"min_fee"`
	MaxTxAmount uint64 `json:"max_tx_amount"`
	BurnPercent uint64 `json:"burn_percent"`
}

// Load reads and parses a genesis document from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("genesis: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ParsedAllocations decodes every allocation's address and balance.
func (c *Config) ParsedAllocations() (map[ledger.Address]ledger.Amount, error) {
	out := make(map[ledger.Address]ledger.Amount, len(c.Allocations))
	for _, alloc := range c.Allocations {
		addr, err := ledger.ParseAddressHex(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis: allocation address: %w", err)
		}
		amount, err := ledger.AmountFromDecimal(alloc.Balance)
		if err != nil {
			return nil, fmt.Errorf("genesis: allocation balance: %w", err)
		}
		out[addr] = amount
	}
	return out, nil
}

// TotalSupply sums every allocation's balance.
func (c *Config) TotalSupply() (ledger.Amount, error) {
	allocations, err := c.ParsedAllocations()
	if err != nil {
		return ledger.ZeroAmount(), err
	}
	total := ledger.ZeroAmount()
	for _, amount := range allocations {
		var ok bool
		total, ok = total.Add(amount)
		if !ok {
			return ledger.ZeroAmount(), fmt.Errorf("genesis: total supply overflow")
		}
	}
	return total, nil
}

// ValidatorSet builds a consensus.ValidatorSet from the genesis document's
// validator list.
func (c *Config) ValidatorSet() (*consensus.ValidatorSet, error) {
	infos := make([]consensus.ValidatorInfo, 0, len(c.Validators))
	for _, v := range c.Validators {
		pub, err := crypto.ParsePublicKeyHex(v.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("genesis: validator public key: %w", err)
		}
		addr, err := ledger.ParseAddressHex(v.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis: validator address: %w", err)
		}
		nodeID := consensus.NodeIDFromPublicKey(pub)
		if nodeID != consensus.NodeID(addr) {
			return nil, fmt.Errorf("genesis: validator %s address does not match its public key", v.Address)
		}
		infos = append(infos, consensus.ValidatorInfo{
			NodeID:    nodeID,
			PublicKey: pub,
			Stake:     v.Stake,
			Active:    true,
		})
	}
	return consensus.NewValidatorSetWith(infos), nil
}

// Apply writes every allocation directly into the ledger, bypassing the
// pending buffer (genesis is not a transaction).
func Apply(l *ledger.Ledger, cfg *Config) error {
	allocations, err := cfg.ParsedAllocations()
	if err != nil {
		return err
	}
	for addr, amount := range allocations {
		if err := l.SetBalance(addr, amount); err != nil {
			return fmt.Errorf("genesis: apply allocation for %s: %w", addr.Hex(), err)
		}
	}
	return nil
}

// Hash computes a content hash of the genesis document, used as the
// chain's identity fingerprint.
func (c *Config) Hash() ([32]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return [32]byte{}, fmt.Errorf("genesis: marshal for hash: %w", err)
	}
	return crypto.Hash256(data), nil
}
