package canonical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeJSONSortsKeys(t *testing.T) {
	a := []byte(`{"b":1,"a":2}`)
	b := []byte(`{"a":2,"b":1}`)

	ca, err := CanonicalizeJSON(a)
	require.NoError(t, err)
	cb, err := CanonicalizeJSON(b)
	require.NoError(t, err)

	require.Equal(t, string(ca), string(cb))
}

func TestHashCanonicalDeterministic(t *testing.T) {
	type payload struct {
		Amount int    `json:"amount"`
		To     string `json:"to"`
	}

	h1, err := HashCanonical(payload{Amount: 10, To: "bob"})
	require.NoError(t, err)
	h2, err := HashCanonical(payload{Amount: 10, To: "bob"})
	require.NoError(t, err)

	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
}
