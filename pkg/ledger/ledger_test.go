package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zarethos/Rainsonet/pkg/state"
)

func addrOf(b byte) Address {
	var a Address
	a[0] = b
	return a
}

func TestSingleValidatorHappyPath(t *testing.T) {
	s := state.NewMemoryStore()
	l := NewLedger(s, 50)

	a, b := addrOf(0xA), addrOf(0xB)
	require.NoError(t, l.SetBalance(a, AmountFromUint64(1000)))

	tx := &Transaction{From: a, To: b, Amount: AmountFromUint64(100), Fee: AmountFromUint64(1), Nonce: 0}
	changes, err := l.ExecuteTransaction(tx)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	version, err := l.Commit()
	require.NoError(t, err)
	require.Equal(t, uint64(2), version) // 1 for SetBalance, 1 for this commit

	balA, err := l.GetBalance(a)
	require.NoError(t, err)
	require.Equal(t, uint64(899), balA.Uint64())

	balB, err := l.GetBalance(b)
	require.NoError(t, err)
	require.Equal(t, uint64(100), balB.Uint64())

	nonceA, err := l.GetNonce(a)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonceA)
}

func TestNonceRejection(t *testing.T) {
	s := state.NewMemoryStore()
	l := NewLedger(s, 50)
	a, b := addrOf(0xA), addrOf(0xB)
	require.NoError(t, l.SetBalance(a, AmountFromUint64(1000)))

	_, err := l.ExecuteTransaction(&Transaction{From: a, To: b, Amount: AmountFromUint64(100), Fee: AmountFromUint64(1), Nonce: 0})
	require.NoError(t, err)
	_, err = l.Commit()
	require.NoError(t, err)

	_, err = l.ExecuteTransaction(&Transaction{From: a, To: b, Amount: AmountFromUint64(10), Fee: AmountFromUint64(1), Nonce: 0})
	var invalidNonce *InvalidNonce
	require.ErrorAs(t, err, &invalidNonce)
	require.Equal(t, uint64(1), invalidNonce.Expected)
	require.Equal(t, uint64(0), invalidNonce.Got)
}

func TestInsufficientBalance(t *testing.T) {
	s := state.NewMemoryStore()
	l := NewLedger(s, 50)
	a, b := addrOf(0xA), addrOf(0xB)
	require.NoError(t, l.SetBalance(a, AmountFromUint64(1000)))

	_, err := l.ExecuteTransaction(&Transaction{From: a, To: b, Amount: AmountFromUint64(100), Fee: AmountFromUint64(1), Nonce: 0})
	require.NoError(t, err)
	_, err = l.Commit()
	require.NoError(t, err)

	_, err = l.ExecuteTransaction(&Transaction{From: a, To: b, Amount: AmountFromUint64(1000), Fee: AmountFromUint64(1), Nonce: 1})
	var insufficient *InsufficientBalance
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, uint64(1001), insufficient.Required.Uint64())
	require.Equal(t, uint64(899), insufficient.Available.Uint64())
}

func TestSelfTransferNetsFeeOnly(t *testing.T) {
	s := state.NewMemoryStore()
	l := NewLedger(s, 50)
	a := addrOf(0xA)
	require.NoError(t, l.SetBalance(a, AmountFromUint64(1000)))

	changes, err := l.ExecuteTransaction(&Transaction{From: a, To: a, Amount: AmountFromUint64(100), Fee: AmountFromUint64(1), Nonce: 0})
	require.NoError(t, err)
	require.Len(t, changes, 1)

	_, err = l.Commit()
	require.NoError(t, err)

	bal, err := l.GetBalance(a)
	require.NoError(t, err)
	require.Equal(t, uint64(999), bal.Uint64())

	nonce, err := l.GetNonce(a)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)
}

func TestRollbackDiscardsPendingBuffer(t *testing.T) {
	s := state.NewMemoryStore()
	l := NewLedger(s, 50)
	a, b := addrOf(0xA), addrOf(0xB)
	require.NoError(t, l.SetBalance(a, AmountFromUint64(1000)))

	_, err := l.ExecuteTransaction(&Transaction{From: a, To: b, Amount: AmountFromUint64(100), Fee: AmountFromUint64(1), Nonce: 0})
	require.NoError(t, err)
	l.Rollback()

	bal, err := l.GetBalance(a)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), bal.Uint64())

	nonce, err := l.GetNonce(a)
	require.NoError(t, err)
	require.Equal(t, uint64(0), nonce)
}

func TestMassConservation(t *testing.T) {
	s := state.NewMemoryStore()
	l := NewLedger(s, 50)
	a, b, c := addrOf(0xA), addrOf(0xB), addrOf(0xC)
	require.NoError(t, l.SetBalance(a, AmountFromUint64(1000)))

	_, err := l.ExecuteTransaction(&Transaction{From: a, To: b, Amount: AmountFromUint64(300), Fee: AmountFromUint64(10), Nonce: 0})
	require.NoError(t, err)
	_, err = l.ExecuteTransaction(&Transaction{From: b, To: c, Amount: AmountFromUint64(50), Fee: AmountFromUint64(2), Nonce: 0})
	require.NoError(t, err)
	_, err = l.Commit()
	require.NoError(t, err)

	balA, _ := l.GetBalance(a)
	balB, _ := l.GetBalance(b)
	balC, _ := l.GetBalance(c)
	burned := l.BurnedTotal()
	reward := l.RewardTotal()

	total := balA.Uint64() + balB.Uint64() + balC.Uint64() + burned.Uint64() + reward.Uint64()
	require.Equal(t, uint64(1000), total)
}

func TestAmountFromDecimalRejectsAbove128Bits(t *testing.T) {
	_, err := AmountFromDecimal("340282366920938463463374607431768211456") // 2^128
	require.Error(t, err)

	_, err = AmountFromDecimal("340282366920938463463374607431768211455") // 2^128 - 1, still in bounds
	require.NoError(t, err)
}

func TestAmountUnmarshalJSONRejectsAbove128Bits(t *testing.T) {
	var a Amount
	err := a.UnmarshalJSON([]byte(`"340282366920938463463374607431768211456"`))
	require.Error(t, err)
}
