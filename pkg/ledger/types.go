// Copyright 2025 Certen Protocol

package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Zarethos/Rainsonet/pkg/crypto"
)

// Address is a 32-byte account identifier, BLAKE3(public_key).
type Address [32]byte

func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

// AddressFromPublicKey derives the account address for a public key.
func AddressFromPublicKey(pub []byte) Address {
	return Address(crypto.Hash256(pub))
}

// ParseAddressHex parses a "0x"-prefixed or bare hex-encoded address.
func ParseAddressHex(s string) (Address, error) {
	var a Address
	s = trimHexPrefix(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("ledger: decode address hex: %w", err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("ledger: address must be %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// AccountKey returns the KV store key an account's state is stored at:
// "account:" || address.
func AccountKey(addr Address) []byte {
	return append([]byte("account:"), addr[:]...)
}

// Nonce is a per-sender strictly monotonic counter, starting at 0.
type Nonce = uint64

// Amount is a 128-bit unsigned quantity in the smallest unit. All
// arithmetic on it is checked; overflow is a transaction-invalidation
// condition, never a panic.
type Amount struct {
	v uint256.Int
}

// ZeroAmount returns the additive identity.
func ZeroAmount() Amount { return Amount{} }

// AmountFromUint64 builds an Amount from a u64 literal.
func AmountFromUint64(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// AmountFromBigEndian parses a 16-byte big-endian encoding (the form
// Bytes16 produces) into an Amount.
func AmountFromBigEndian(b []byte) (Amount, error) {
	if len(b) != 16 {
		return Amount{}, fmt.Errorf("amount: expected 16 bytes, got %d", len(b))
	}
	var a Amount
	a.v.SetBytes(b)
	return a, nil
}

// Bytes16 renders the amount as a fixed 16-byte big-endian buffer.
func (a Amount) Bytes16() [16]byte {
	var out [16]byte
	b := a.v.Bytes()
	copy(out[16-len(b):], b)
	return out
}

// LittleEndian16 renders the amount as the 16-byte little-endian form the
// transaction signing preimage uses.
func (a Amount) LittleEndian16() [16]byte {
	be := a.Bytes16()
	var le [16]byte
	for i := range be {
		le[i] = be[15-i]
	}
	return le
}

func (a Amount) Cmp(o Amount) int { return a.v.Cmp(&o.v) }

func (a Amount) LessThan(o Amount) bool { return a.v.Lt(&o.v) }

func (a Amount) Uint64() uint64 { return a.v.Uint64() }

func (a Amount) String() string { return a.v.String() }

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Add returns a+o and whether the checked addition overflowed, that is,
// whether the sum exceeds the 128-bit maximum.
func (a Amount) Add(o Amount) (Amount, bool) {
	var out Amount
	overflow := out.v.AddOverflow(&a.v, &o.v) || out.v.Gt(maxAmount)
	return out, overflow
}

func (a Amount) Sub(o Amount) (Amount, bool) {
	if a.v.Lt(&o.v) {
		return Amount{}, true
	}
	var out Amount
	out.v.Sub(&a.v, &o.v)
	return out, false
}

// MulPercent computes a*percent/100 with checked multiplication, used for
// the fee burn split.
func (a Amount) MulPercent(percent uint64) (Amount, bool) {
	var p uint256.Int
	p.SetUint64(percent)
	var product uint256.Int
	overflow := product.MulOverflow(&a.v, &p)
	if overflow {
		return Amount{}, true
	}
	var hundred uint256.Int
	hundred.SetUint64(100)
	var out Amount
	out.v.Div(&product, &hundred)
	return out, false
}

// maxAmount is 2^128-1, the spec §3 ceiling for Amount. uint256.Int
// itself holds 256 bits, so anything above this must be rejected at
// parse time rather than left to overflow Bytes16's 16-byte encoding.
var maxAmount = func() *uint256.Int {
	max := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	return max.SubUint64(max, 1)
}()

func boundedAmount(v *uint256.Int) (Amount, error) {
	if v.Cmp(maxAmount) > 0 {
		return Amount{}, fmt.Errorf("ledger: amount %s exceeds the 128-bit maximum", v.String())
	}
	return Amount{v: *v}, nil
}

// AmountFromDecimal parses a base-10 amount string, the same format
// Amount's JSON encoding uses.
func AmountFromDecimal(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("ledger: parse amount %q: %w", s, err)
	}
	return boundedAmount(v)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	bounded, err := boundedAmount(v)
	if err != nil {
		return err
	}
	*a = bounded
	return nil
}

// AccountState is the persisted per-account record: (balance, nonce).
// A missing "account:"||address key is equivalent to the zero value.
type AccountState struct {
	Balance Amount `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Transaction is a signed transfer request. The signature covers
// "RELYO_TX:" || from || to || amount_le || fee_le || nonce_le || timestamp_le.
type Transaction struct {
	ID        [32]byte `json:"id"`
	From      Address  `json:"from"`
	To        Address  `json:"to"`
	Amount    Amount   `json:"amount"`
	Fee       Amount   `json:"fee"`
	Nonce     uint64   `json:"nonce"`
	Timestamp int64    `json:"timestamp"`
	PublicKey []byte   `json:"public_key"`
	Signature []byte   `json:"signature"`
}

// SigningPreimage builds the field encoding a Transaction's signature
// covers; crypto.SignTx/VerifyTx prepend the domain tag.
func (t *Transaction) SigningPreimage() []byte {
	buf := make([]byte, 0, 32+32+16+16+8+8)
	buf = append(buf, t.From[:]...)
	buf = append(buf, t.To[:]...)
	amtLE := t.Amount.LittleEndian16()
	buf = append(buf, amtLE[:]...)
	feeLE := t.Fee.LittleEndian16()
	buf = append(buf, feeLE[:]...)
	buf = append(buf, crypto.PutUint64LE(t.Nonce)...)
	buf = append(buf, crypto.PutUint64LE(uint64(t.Timestamp))...)
	return buf
}

// ComputeID derives the transaction id: BLAKE3 over a canonical JSON
// serialization of all fields (excluding the id itself).
func (t *Transaction) ComputeID() [32]byte {
	type canonicalTx struct {
		From      string `json:"from"`
		To        string `json:"to"`
		Amount    string `json:"amount"`
		Fee       string `json:"fee"`
		Nonce     uint64 `json:"nonce"`
		Timestamp int64  `json:"timestamp"`
		PublicKey string `json:"public_key"`
		Signature string `json:"signature"`
	}
	c := canonicalTx{
		From:      t.From.Hex(),
		To:        t.To.Hex(),
		Amount:    t.Amount.String(),
		Fee:       t.Fee.String(),
		Nonce:     t.Nonce,
		Timestamp: t.Timestamp,
		PublicKey: hex.EncodeToString(t.PublicKey),
		Signature: hex.EncodeToString(t.Signature),
	}
	b, _ := json.Marshal(c)
	return crypto.Hash256(b)
}

// StateChange is a single touched-account record produced by executing a
// transaction: the new AccountState to stage at AccountKey(Address).
type StateChange struct {
	Address Address
	State   AccountState
}
