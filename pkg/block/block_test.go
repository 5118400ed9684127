package block

import (
	"strings"
	"testing"

	"github.com/klingon-tech/hybridnode/pkg/tx"
)

func TestBlock_HashDeterministic(t *testing.T) {
	b := &Block{
		Index:        1,
		Timestamp:    1000,
		PreviousHash: "0",
		Nonce:        42,
		Transactions: []*tx.Transaction{{Outputs: []tx.Output{{Address: "a", Amount: 1}}}},
	}
	h1 := b.ComputeHash()
	h2 := b.ComputeHash()
	if h1 != h2 {
		t.Fatal("ComputeHash should be deterministic")
	}
}

func TestBlock_HashIgnoresIndexAndDifficulty(t *testing.T) {
	base := &Block{Timestamp: 1, PreviousHash: "0", Nonce: 1}
	a := *base
	a.Index = 1
	a.Difficulty = 2
	b := *base
	b.Index = 99
	b.Difficulty = 9
	if a.ComputeHash() != b.ComputeHash() {
		t.Fatal("index/difficulty must not affect the content hash")
	}
}

func TestBlock_PoWPoSDiscriminator(t *testing.T) {
	pow := &Block{Transactions: []*tx.Transaction{{Outputs: []tx.Output{{Address: "m", Amount: 1}}}}}
	if pow.IsPoS() || !pow.IsPoW() {
		t.Fatal("single coinbase-only block should be PoW")
	}

	coinstake := &tx.Transaction{
		Inputs:  []tx.Input{{OutputIndex: 0, Signature: []byte{1}}},
		Outputs: []tx.Output{{Address: "x", Amount: 0}, {Address: "staker", Amount: 10}},
	}
	pos := &Block{Transactions: []*tx.Transaction{
		{Outputs: []tx.Output{{Address: "m", Amount: 10}}},
		coinstake,
	}}
	if !pos.IsPoS() || pos.IsPoW() {
		t.Fatal("block with coinstake at index 1 should be PoS")
	}
}

func TestBlock_MeetsTarget(t *testing.T) {
	b := &Block{Difficulty: 2, Hash: "00abcd"}
	if !b.MeetsTarget() {
		t.Fatal("expected hash with 2 leading zero nibbles to meet target")
	}
	b.Hash = "0a0000"
	if b.MeetsTarget() {
		t.Fatal("zeros not in leading position must not count")
	}
	if !strings.HasPrefix("00abcd", "00") {
		t.Fatal("sanity check on HasPrefix")
	}
}
