package tx

import (
	"testing"

	"github.com/klingon-tech/hybridnode/pkg/crypto"
)

func TestTransaction_Hash_Deterministic(t *testing.T) {
	txn := &Transaction{
		Outputs:   []Output{{Address: "addr1", Amount: 1000}},
		Timestamp: 1000,
		Nonce:     1,
	}

	h1 := txn.Hash()
	h2 := txn.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestTransaction_Hash_ChangesWithContent(t *testing.T) {
	tx1 := &Transaction{Outputs: []Output{{Address: "a", Amount: 1000}}, Timestamp: 1, Nonce: 1}
	tx2 := &Transaction{Outputs: []Output{{Address: "a", Amount: 2000}}, Timestamp: 1, Nonce: 1}

	if tx1.Hash() == tx2.Hash() {
		t.Error("different transactions should have different hashes")
	}
}

func TestTransaction_Hash_IgnoresSignature(t *testing.T) {
	txn := &Transaction{
		Inputs:    []Input{{PreviousTx: [32]byte{0x01}, OutputIndex: 0}},
		Outputs:   []Output{{Address: "a", Amount: 1000}},
		Timestamp: 1,
		Nonce:     1,
	}
	h1 := txn.Hash()
	txn.Inputs[0].Signature = []byte("anything")
	if txn.Hash() != h1 {
		t.Error("Hash() should not depend on signature bytes")
	}
}

func TestTransactionKinds(t *testing.T) {
	coinbase := &Transaction{Outputs: []Output{{Address: "miner", Amount: 100}}}
	if !coinbase.IsCoinbase() || coinbase.IsCoinstake() || coinbase.IsNormal() {
		t.Error("expected coinbase classification")
	}

	coinstake := &Transaction{
		Inputs:  []Input{{PreviousTx: [32]byte{0x02}, OutputIndex: 0, Signature: []byte{1}}},
		Outputs: []Output{{Address: "x", Amount: 0}, {Address: "staker", Amount: 100}},
	}
	if coinstake.IsCoinbase() || !coinstake.IsCoinstake() || coinstake.IsNormal() {
		t.Error("expected coinstake classification")
	}

	normal := &Transaction{
		Inputs:  []Input{{PreviousTx: [32]byte{0x03}, OutputIndex: 0, Signature: []byte{1}}},
		Outputs: []Output{{Address: "a", Amount: 1}, {Address: "b", Amount: 1}},
	}
	if normal.IsCoinbase() || normal.IsCoinstake() || !normal.IsNormal() {
		t.Error("expected normal classification")
	}
}

func TestSignInputAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevTxHash := [32]byte{0xAA}
	txn := &Transaction{
		Inputs:    []Input{{PreviousTx: prevTxHash, OutputIndex: 0}},
		Outputs:   []Output{{Address: "bob", Amount: 50}, {Address: addr, Amount: 50}},
		Timestamp: 1000,
		Nonce:     7,
	}

	if err := SignInput(txn, 0, key); err != nil {
		t.Fatalf("sign input: %v", err)
	}
	if !txn.IsValid() {
		t.Fatal("signed transaction should be structurally valid")
	}

	lookup := func(prevTx [32]byte, idx uint32) (Output, bool) {
		if prevTx == prevTxHash && idx == 0 {
			return Output{Address: addr, Amount: 100}, true
		}
		return Output{}, false
	}
	if err := txn.VerifySignatures(lookup); err != nil {
		t.Fatalf("expected valid signature, got: %v", err)
	}
}

func TestVerifySignatures_RejectsWrongKey(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(other.PublicKey())

	prevTxHash := [32]byte{0xBB}
	txn := &Transaction{
		Inputs:  []Input{{PreviousTx: prevTxHash, OutputIndex: 0}},
		Outputs: []Output{{Address: "bob", Amount: 10}, {Address: "change", Amount: 10}},
	}
	if err := SignInput(txn, 0, key); err != nil {
		t.Fatalf("sign: %v", err)
	}

	lookup := func(prevTx [32]byte, idx uint32) (Output, bool) {
		return Output{Address: addr, Amount: 100}, true
	}
	if err := txn.VerifySignatures(lookup); err == nil {
		t.Fatal("expected signature verification to fail for mismatched key")
	}
}
