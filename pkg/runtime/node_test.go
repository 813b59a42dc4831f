package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zarethos/Rainsonet/pkg/bus"
	"github.com/Zarethos/Rainsonet/pkg/consensus"
	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/ledger"
	"github.com/Zarethos/Rainsonet/pkg/mempool"
	"github.com/Zarethos/Rainsonet/pkg/state"
)

func addrOf(b byte) ledger.Address {
	var a ledger.Address
	a[0] = b
	return a
}

// newSingleValidatorNode builds a Node that is also the sole consensus
// validator, so CreateProposal's self-vote immediately finalizes.
func newSingleValidatorNode(t *testing.T) (*Node, ledger.Address) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	nodeID := consensus.NodeIDFromPublicKey(kp.Public)
	vs := consensus.NewValidatorSetWith([]consensus.ValidatorInfo{
		{NodeID: nodeID, PublicKey: kp.Public, Stake: 1, Active: true},
	})

	s := state.NewMemoryStore()
	l := ledger.NewLedger(s, 50)
	mp := mempool.New(100, 10)
	engine := consensus.NewEngine(vs, kp, bus.New())

	n := New(Config{MinFee: 1, MaxTxAmount: 0, BurnPercent: 50, ProposalBatchSize: 10}, s, l, mp, engine, nil, func() int64 { return 1000 })
	return n, ledger.Address(nodeID)
}

func TestSubmitTransactionAdmitsIntoMempool(t *testing.T) {
	n, _ := newSingleValidatorNode(t)
	a, b := addrOf(0xA), addrOf(0xB)
	require.NoError(t, n.ledger.SetBalance(a, ledger.AmountFromUint64(1000)))

	tx := &ledger.Transaction{From: a, To: b, Amount: ledger.AmountFromUint64(100), Fee: ledger.AmountFromUint64(1), Nonce: 0}
	require.NoError(t, n.SubmitTransaction(tx))
	require.True(t, n.mempool.Contains(tx.ID))
}

func TestSubmitTransactionRejectsFeeBelowMinimum(t *testing.T) {
	n, _ := newSingleValidatorNode(t)
	a, b := addrOf(0xA), addrOf(0xB)
	tx := &ledger.Transaction{From: a, To: b, Amount: ledger.AmountFromUint64(100), Fee: ledger.ZeroAmount(), Nonce: 0}
	require.ErrorIs(t, n.SubmitTransaction(tx), ErrFeeBelowMinimum)
}

func TestSubmitTransactionRejectsWrongNonce(t *testing.T) {
	n, _ := newSingleValidatorNode(t)
	a, b := addrOf(0xA), addrOf(0xB)
	tx := &ledger.Transaction{From: a, To: b, Amount: ledger.AmountFromUint64(100), Fee: ledger.AmountFromUint64(1), Nonce: 5}
	err := n.SubmitTransaction(tx)
	var invalidNonce *ledger.InvalidNonce
	require.ErrorAs(t, err, &invalidNonce)
	require.Equal(t, uint64(0), invalidNonce.Expected)
}

// TestFullPipelineSubmitProposeFinalizeApply exercises the entire §4.5
// submit -> admit -> propose -> finalize -> apply pipeline for a single
// validator, whose own approve vote finalizes every proposal it creates.
func TestFullPipelineSubmitProposeFinalizeApply(t *testing.T) {
	n, _ := newSingleValidatorNode(t)
	a, b := addrOf(0xA), addrOf(0xB)
	require.NoError(t, n.ledger.SetBalance(a, ledger.AmountFromUint64(1000)))

	tx := &ledger.Transaction{From: a, To: b, Amount: ledger.AmountFromUint64(100), Fee: ledger.AmountFromUint64(10), Nonce: 0}
	require.NoError(t, n.SubmitTransaction(tx))

	p, err := n.ProposeBatch()
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, uint64(1), n.engine.LatestFinalizedVersion(), "sole validator's own vote finalizes immediately")

	require.NoError(t, n.ApplyFinalized(p.ID))

	balA, err := n.ledger.GetBalance(a)
	require.NoError(t, err)
	require.Equal(t, uint64(890), balA.Uint64()) // 1000 - 100 - 10 fee

	balB, err := n.ledger.GetBalance(b)
	require.NoError(t, err)
	require.Equal(t, uint64(100), balB.Uint64())

	require.False(t, n.mempool.Contains(tx.ID), "applying the finalized proposal must drain its transactions from the mempool")
}

func TestProposeBatchWithNoExecutableTransactionsReturnsNil(t *testing.T) {
	n, _ := newSingleValidatorNode(t)
	p, err := n.ProposeBatch()
	require.NoError(t, err)
	require.Nil(t, p)
	require.Equal(t, uint64(0), n.engine.LatestFinalizedVersion())
}

func TestProposeBatchDropsTransactionsInvalidAtExecutionTime(t *testing.T) {
	n, _ := newSingleValidatorNode(t)
	a, b := addrOf(0xA), addrOf(0xB)
	// No balance was ever set for a: the transaction is admissible (nonce
	// 0 is the expected pending nonce) but fails execution for insufficient
	// funds.
	tx := &ledger.Transaction{From: a, To: b, Amount: ledger.AmountFromUint64(100), Fee: ledger.AmountFromUint64(1), Nonce: 0}
	require.NoError(t, n.SubmitTransaction(tx))

	p, err := n.ProposeBatch()
	require.NoError(t, err)
	require.Nil(t, p, "a batch with every transaction rejected at execution time proposes nothing")
	require.False(t, n.mempool.Contains(tx.ID), "the failed transaction is dropped from the mempool, not retried")
}

func TestApplyFinalizedUnknownProposalRejected(t *testing.T) {
	n, _ := newSingleValidatorNode(t)
	err := n.ApplyFinalized([32]byte{0x99})
	require.ErrorIs(t, err, consensus.ErrProposalNotFound)
}
