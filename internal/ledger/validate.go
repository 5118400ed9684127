package ledger

import (
	"github.com/klingon-tech/hybridnode/config"
	"github.com/klingon-tech/hybridnode/internal/utxo"
	"github.com/klingon-tech/hybridnode/pkg/block"
	"github.com/klingon-tech/hybridnode/pkg/tx"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

// validateNextBlock runs the spec.md §4.1.1 pipeline for appending b
// directly after prev, against the live chain and UTXO index. It is used
// by AppendMinedBlock/TryAppendPeerBlock; validateChain calls the same
// validateLink core for each successive pair of a candidate chain, so
// the two paths can never diverge on what counts as valid.
func (l *Ledger) validateNextBlock(b *block.Block, prev *block.Block) error {
	return validateLink(b, prev, l.chain, l.utxo)
}

// validateLink is the chain-shape-agnostic core of the pipeline: it only
// needs prev plus enough history (history) to compute expected difficulty
// and look up referenced outputs (utxoIdx, the index as of prev; it must
// not be nil — validateChain builds one block by block for a candidate
// chain).
func validateLink(b *block.Block, prev *block.Block, history []*block.Block, utxoIdx interface {
	Lookup(types.Hash, uint32) (tx.Output, bool)
}) error {
	// 1. Every transaction structurally valid.
	for _, t := range b.Transactions {
		if !t.IsValid() {
			return ErrInvalidTransactions
		}
	}

	// 2. Linkage.
	if b.PreviousHash != prev.Hash {
		return ErrWrongParent
	}
	if b.Index != prev.Index+1 {
		return ErrWrongIndex
	}

	// 3. Minimum spacing.
	if int64(b.Timestamp)-int64(prev.Timestamp) < config.BlockTimeSeconds*1000 {
		return ErrBlockTooSoon
	}

	if b.IsPoS() {
		if err := validateCoinstake(b, utxoIdx, history); err != nil {
			return err
		}
		return nil
	}

	// PoW path. One final transition PoW block is accepted at exactly
	// POW_CUTOFF (mine_pending emits it when the proposer has no stake);
	// any PoW block above that index is rejected.
	if b.Index > config.PowCutoff {
		return ErrPowAfterCutoff
	}
	timestamps, difficulties := historySeries(append(history, b))
	expected := ExpectedDifficulty(b.Index, timestamps, difficulties)
	if b.Difficulty != expected {
		return ErrBadDifficulty
	}
	if !b.MeetsTarget() {
		return ErrBadProofOfWork
	}
	return nil
}

func validateCoinstake(b *block.Block, utxoIdx interface {
	Lookup(types.Hash, uint32) (tx.Output, bool)
}, history []*block.Block) error {
	if len(b.Transactions) < 2 || !b.Transactions[1].IsCoinstake() {
		return ErrBadStake
	}
	cs := b.Transactions[1]

	if cs.Outputs[1].Amount < config.MinStakeAmount {
		return ErrBadStake
	}
	if len(cs.Inputs) == 0 {
		return ErrBadStake
	}
	in := cs.Inputs[0]

	prevOut, ok := utxoIdx.Lookup(in.PreviousTx, in.OutputIndex)
	if !ok {
		return ErrBadStake // double-stake guard: UTXO no longer unspent, or never existed
	}
	if prevOut.Amount != cs.Outputs[1].Amount || prevOut.Address != cs.Outputs[1].Address {
		return ErrBadStake
	}

	prevTx := findTransaction(history, in.PreviousTx)
	if prevTx == nil {
		return ErrBadStake
	}
	ageMs := int64(b.Timestamp) - int64(prevTx.Timestamp)
	if ageMs < config.MinStakeAgeSeconds*1000 {
		return ErrBadStake
	}
	return nil
}

func findTransaction(chain []*block.Block, hash types.Hash) *tx.Transaction {
	for _, b := range chain {
		for _, t := range b.Transactions {
			if t.Hash() == hash {
				return t
			}
		}
	}
	return nil
}

// historySeries extracts parallel timestamp/difficulty slices indexed by
// height from chain (which must be contiguous from genesis).
func historySeries(chain []*block.Block) ([]uint64, []uint8) {
	timestamps := make([]uint64, len(chain))
	difficulties := make([]uint8, len(chain))
	for i, b := range chain {
		timestamps[i] = b.Timestamp
		difficulties[i] = b.Difficulty
	}
	return timestamps, difficulties
}

// validateChain re-validates a full candidate chain from genesis:
// chain[0] must equal the fixed genesis, and every subsequent block must
// pass validateLink against its predecessor and the index built up to
// that point.
func validateChain(chain []*block.Block) error {
	if len(chain) == 0 {
		return ErrInvalidGenesis
	}
	expectedGenesis := Genesis()
	if chain[0].Hash != expectedGenesis.Hash || chain[0].PreviousHash != block.GenesisPreviousHash || chain[0].Index != 0 {
		return ErrInvalidGenesis
	}

	idx := utxo.New()
	utxo.Apply(idx, chain[0].Transactions)

	for i := 1; i < len(chain); i++ {
		if err := validateLink(chain[i], chain[i-1], chain[:i], idx); err != nil {
			return err
		}
		utxo.Apply(idx, chain[i].Transactions)
	}
	return nil
}

// verifyChainStructure checks the structural invariants of a freshly
// loaded snapshot without recomputing any hash (spec.md §4.1.4: stored
// hashes are trusted, only linkage and transaction validity are
// re-checked).
func verifyChainStructure(chain []*block.Block) error {
	if len(chain) == 0 {
		return ErrInvalidGenesis
	}
	if chain[0].PreviousHash != block.GenesisPreviousHash || chain[0].Index != 0 {
		return ErrInvalidGenesis
	}
	for _, t := range chain[0].Transactions {
		if !t.IsValid() {
			return ErrInvalidTransactions
		}
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].PreviousHash != chain[i-1].Hash {
			return ErrBrokenLink
		}
		if chain[i].Index != chain[i-1].Index+1 {
			return ErrBrokenLink
		}
		for _, t := range chain[i].Transactions {
			if !t.IsValid() {
				return ErrInvalidTransactions
			}
		}
	}
	return nil
}
