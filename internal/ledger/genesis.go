package ledger

import (
	"github.com/klingon-tech/hybridnode/config"
	"github.com/klingon-tech/hybridnode/pkg/block"
	"github.com/klingon-tech/hybridnode/pkg/tx"
)

// Genesis returns the fixed genesis block, byte-for-byte per spec.md §6:
// a single coinbase-shaped transaction paying the literal address
// "genesis" 1,000,000 minor units, previous_hash "0", nonce 0, difficulty
// GenesisDifficulty. Its hash is computed once here and is whatever
// SigningBytes/SHA-256 produces for this implementation's canonical
// serialization — spec.md leaves the exact hash implementation-defined.
func Genesis() *block.Block {
	genesisTx := &tx.Transaction{
		Inputs:    nil,
		Outputs:   []tx.Output{{Address: "genesis", Amount: 1_000_000}},
		Timestamp: config.GenesisTimestampMs,
		Nonce:     0,
	}

	b := &block.Block{
		Index:        0,
		Timestamp:    config.GenesisTimestampMs,
		PreviousHash: block.GenesisPreviousHash,
		Nonce:        0,
		Difficulty:   config.GenesisDifficulty,
		Transactions: []*tx.Transaction{genesisTx},
	}
	b.Hash = b.ComputeHash()
	return b
}
