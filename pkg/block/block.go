// Package block defines the block type: a header-less, flat struct per
// spec.md §3 (unlike the teacher's separate Header/Block split), plus the
// structural PoW/PoS discriminator and proof-of-work target check.
package block

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/klingon-tech/hybridnode/pkg/crypto"
	"github.com/klingon-tech/hybridnode/pkg/tx"
)

// GenesisPreviousHash is the literal sentinel genesis blocks use instead of
// a real hash, per spec.md §3.
const GenesisPreviousHash = "0"

// Block is a single entry in the chain.
type Block struct {
	Index        uint32             `json:"index"`
	Timestamp    uint64             `json:"timestamp"`
	PreviousHash string             `json:"previous_hash"`
	Nonce        uint64             `json:"nonce"`
	Difficulty   uint8              `json:"powDifficulty"`
	Transactions []*tx.Transaction  `json:"transactions"`
	Hash         string             `json:"hash"`
}

// SigningBytes returns the canonical serialization hashed to produce
// Block.Hash. Index and Difficulty are deliberately excluded — they are
// consensus/structural metadata, not block content (see SPEC_FULL.md §4
// for the rationale, resolving spec.md §9's open question on this point).
//
// Format (all integers little-endian):
//
//	timestamp(8) | tx_count(4) | [tx_hash(32)]... |
//	prev_hash_len(4) | prev_hash | nonce(8)
func (b *Block) SigningBytes() []byte {
	buf := make([]byte, 0, 8+4+len(b.Transactions)*32+4+len(b.PreviousHash)+8)
	buf = binary.LittleEndian.AppendUint64(buf, b.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Transactions)))
	for _, t := range b.Transactions {
		h := t.Hash()
		buf = append(buf, h[:]...)
	}
	prev := []byte(b.PreviousHash)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(prev)))
	buf = append(buf, prev...)
	buf = binary.LittleEndian.AppendUint64(buf, b.Nonce)
	return buf
}

// ComputeHash computes the block's SHA-256 content hash as a hex string.
// It does not mutate b.Hash — callers assign the result explicitly so that
// a freshly loaded block can keep its persisted (not recomputed) hash, per
// spec.md §4.1.4.
func (b *Block) ComputeHash() string {
	h := crypto.Hash(b.SigningBytes())
	return hex.EncodeToString(h[:])
}

// IsPoS reports whether b is structurally a proof-of-stake block: at least
// two transactions, the second of which is a coinstake. This is a
// structural predicate, not a stored flag (design note §9: "model as a
// tagged discriminant ... rather than a class hierarchy").
func (b *Block) IsPoS() bool {
	return len(b.Transactions) >= 2 && b.Transactions[1].IsCoinstake()
}

// IsPoW reports whether b is a proof-of-work block (the complement of IsPoS).
func (b *Block) IsPoW() bool {
	return !b.IsPoS()
}

// MeetsTarget reports whether b.Hash, as a hex string, has at least
// Difficulty leading zero nibbles.
func (b *Block) MeetsTarget() bool {
	if len(b.Hash) < int(b.Difficulty) {
		return false
	}
	return strings.HasPrefix(b.Hash, strings.Repeat("0", int(b.Difficulty)))
}

// Coinstake returns the coinstake transaction of a PoS block, or nil.
func (b *Block) Coinstake() *tx.Transaction {
	if !b.IsPoS() {
		return nil
	}
	return b.Transactions[1]
}
