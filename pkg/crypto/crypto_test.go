package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyTx(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("transfer 10 to bob, nonce 1")
	sig := SignTx(kp, msg)
	require.True(t, VerifyTx(kp.Public, msg, sig))

	require.False(t, VerifyTx(kp.Public, []byte("tampered"), sig))
}

func TestDomainSeparation(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("same bytes")
	txSig := SignTx(kp, msg)

	// A tx-domain signature must not verify as a proposal or vote signature.
	require.False(t, VerifyProposal(kp.Public, msg, txSig))
	require.False(t, VerifyVote(kp.Public, msg, txSig))
}

func TestKeyPairFromSeedDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}

	kp1, err := KeyPairFromSeed(seed)
	require.NoError(t, err)
	kp2, err := KeyPairFromSeed(seed)
	require.NoError(t, err)

	require.Equal(t, kp1.Public, kp2.Public)
}

func TestDeriveAddressDeterministic(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	a1 := DeriveAddressHex(kp.Public)
	a2 := DeriveAddressHex(kp.Public)
	require.Equal(t, a1, a2)
	require.Len(t, a1, 66) // "0x" + 64 hex chars (32-byte BLAKE3 address)
}

func TestDeriveKeyPerIndex(t *testing.T) {
	seed := make([]byte, 32)
	k0, err := DeriveKey(seed, 0)
	require.NoError(t, err)
	k1, err := DeriveKey(seed, 1)
	require.NoError(t, err)

	require.NotEqual(t, k0.Public, k1.Public)
}
