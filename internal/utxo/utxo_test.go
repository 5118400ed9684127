package utxo

import (
	"testing"

	"github.com/klingon-tech/hybridnode/pkg/tx"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

func coinbase(to types.Address, amount uint64, nonce uint64) *tx.Transaction {
	return &tx.Transaction{
		Inputs:    nil,
		Outputs:   []tx.Output{{Address: to, Amount: amount}},
		Timestamp: 1000,
		Nonce:     nonce,
	}
}

func TestApply_CreditsOutputs(t *testing.T) {
	idx := New()
	cb := coinbase("alice", 100, 1)
	Apply(idx, []*tx.Transaction{cb})

	if got := idx.Balance("alice"); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
}

func TestApply_SpendsReferencedOutput(t *testing.T) {
	idx := New()
	cb := coinbase("alice", 100, 1)
	Apply(idx, []*tx.Transaction{cb})
	cbHash := cb.Hash()

	spend := &tx.Transaction{
		Inputs: []tx.Input{{PreviousTx: cbHash, OutputIndex: 0, Signature: []byte("sig")}},
		Outputs: []tx.Output{
			{Address: "bob", Amount: 60},
			{Address: "alice", Amount: 40},
		},
		Timestamp: 2000,
		Nonce:     2,
	}
	Apply(idx, []*tx.Transaction{spend})

	if got := idx.Balance("alice"); got != 40 {
		t.Fatalf("alice balance = %d, want 40", got)
	}
	if got := idx.Balance("bob"); got != 60 {
		t.Fatalf("bob balance = %d, want 60", got)
	}
}

func TestRebuild_IdempotentWithIncrementalApply(t *testing.T) {
	cb1 := coinbase("alice", 100, 1)
	cb2 := coinbase("bob", 50, 2)

	incremental := New()
	Apply(incremental, []*tx.Transaction{cb1})
	Apply(incremental, []*tx.Transaction{cb2})

	rebuilt := Rebuild([][]*tx.Transaction{{cb1}, {cb2}})

	if incremental.Balance("alice") != rebuilt.Balance("alice") {
		t.Fatalf("alice balances diverge")
	}
	if incremental.Balance("bob") != rebuilt.Balance("bob") {
		t.Fatalf("bob balances diverge")
	}
}

func TestLookup_FindsUnspentOutput(t *testing.T) {
	idx := New()
	cb := coinbase("alice", 100, 1)
	Apply(idx, []*tx.Transaction{cb})

	out, ok := idx.Lookup(cb.Hash(), 0)
	if !ok {
		t.Fatal("expected lookup to find output")
	}
	if out.Amount != 100 || out.Address != "alice" {
		t.Fatalf("unexpected output: %+v", out)
	}

	if _, ok := idx.Lookup(cb.Hash(), 1); ok {
		t.Fatal("expected lookup of nonexistent output index to fail")
	}
}
