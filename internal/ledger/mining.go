package ledger

import (
	"fmt"

	"github.com/klingon-tech/hybridnode/config"
	"github.com/klingon-tech/hybridnode/internal/log"
	"github.com/klingon-tech/hybridnode/pkg/block"
	"github.com/klingon-tech/hybridnode/pkg/tx"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

// searchNonce iterates b.Nonce from zero until the block's hex hash has
// b.Difficulty leading zeros, then fixes b.Hash to the winning value.
// This is the same algorithm internal/miner's worker runs asynchronously;
// here it runs to completion inline because mine_pending is a
// synchronous test convenience (spec.md §4.1), not the production path.
func searchNonce(b *block.Block) {
	for nonce := uint64(0); ; nonce++ {
		b.Nonce = nonce
		b.Hash = b.ComputeHash()
		if b.MeetsTarget() {
			return
		}
	}
}

// mineTimestamp applies the canonical rule resolved in SPEC_FULL.md §4 for
// spec.md §9's open question: always max(now, parent.Timestamp +
// BLOCK_TIME*1000 + 1), for both PoW and PoS paths built via mine_pending
// convenience methods.
func (l *Ledger) mineTimestamp(parent *block.Block) uint64 {
	now := l.clock()
	floor := parent.Timestamp + uint64(config.BlockTimeSeconds)*1000 + 1
	if now > floor {
		return now
	}
	return floor
}

// buildPoWTemplate assembles an unsearched PoW block paying minerAddress a
// POW_BLOCK_REWARD coinbase, at the correct index/timestamp/difficulty for
// appending after the current head. The nonce/hash are left zero-valued —
// callers either search synchronously (buildPoWBlock) or hand the template
// to an asynchronous worker (internal/miner).
func (l *Ledger) buildPoWTemplate(minerAddress types.Address) *block.Block {
	parent := l.chain[len(l.chain)-1]
	ts := l.mineTimestamp(parent)

	coinbase := &tx.Transaction{
		Outputs:   []tx.Output{{Address: minerAddress, Amount: config.PowBlockReward}},
		Timestamp: ts,
	}
	txs := append([]*tx.Transaction{coinbase}, l.pending...)

	timestamps, difficulties := historySeries(l.chain)
	nextIndex := uint32(len(l.chain))
	difficulty := ExpectedDifficulty(nextIndex, timestamps, difficulties)

	return &block.Block{
		Index:        nextIndex,
		Timestamp:    ts,
		PreviousHash: parent.Hash,
		Difficulty:   difficulty,
		Transactions: txs,
	}
}

// buildPoWBlock assembles and synchronously seals a PoW block.
func (l *Ledger) buildPoWBlock(minerAddress types.Address) *block.Block {
	b := l.buildPoWTemplate(minerAddress)
	searchNonce(b)
	return b
}

// PrepareTemplate returns an unsearched PoW block template for
// minerAddress, for use by an asynchronous miner worker (spec.md §4.2). It
// returns nil once the chain has crossed POW_CUTOFF, since no further PoW
// blocks are eligible.
func (l *Ledger) PrepareTemplate(minerAddress types.Address) *block.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.chain) >= int(config.PowCutoff) {
		return nil
	}
	return l.buildPoWTemplate(minerAddress)
}

// MinePending is the deterministic convenience operation spec.md §4.1
// describes: in the PoW phase it mines and appends a PoW block; in the
// PoS phase it either mines a transition PoW block (staker has no
// registered stake yet) or delegates to GenerateStakeBlock.
func (l *Ledger) MinePending(minerAddress types.Address) (*block.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.chain) < int(config.PowCutoff) {
		b := l.buildPoWBlock(minerAddress)
		if err := l.appendLocked(b); err != nil {
			return nil, err
		}
		return b, nil
	}

	if _, ok := l.stakes.Get(minerAddress); !ok {
		b := l.buildPoWBlock(minerAddress)
		if err := l.appendLocked(b); err != nil {
			return nil, err
		}
		return b, nil
	}

	b, ok := l.generateStakeBlockLocked(minerAddress)
	if !ok {
		return nil, fmt.Errorf("generate_stake_block: %s not selected this round", minerAddress)
	}
	if err := l.appendLocked(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateStakeBlock attempts to construct (but not append) a PoS block
// proposed by address: eligibility and weighted lottery per spec.md
// §4.1.2. Returns (nil, false) when address is ineligible or loses the
// lottery this round — callers (staking service, MinePending) decide
// whether to retry.
func (l *Ledger) GenerateStakeBlock(address types.Address) (*block.Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generateStakeBlockLocked(address)
}

// SetDeterministicLottery forces every future lottery draw to succeed,
// used by tests that exercise the PoS path without fighting real
// randomness (spec.md §4.1.2: "test mode may deterministically return
// true").
func (l *Ledger) SetDeterministicLottery(win bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forceLotteryWin = win
}

func (l *Ledger) generateStakeBlockLocked(address types.Address) (*block.Block, bool) {
	now := int64(l.clock())
	if !l.stakes.EligibleToPropose(address, now) {
		return nil, false
	}
	if !l.forceLotteryWin && !l.stakes.Lottery(address, nil) {
		return nil, false
	}

	info, ok := l.stakes.Get(address)
	if !ok {
		return nil, false
	}

	var stakeEntryHash types.Hash
	var stakeOutputIndex uint32
	var stakeOutputAmount uint64
	var found bool
	for _, e := range l.utxo.Outputs(address) {
		if e.Output.Amount >= info.Amount {
			stakeEntryHash, stakeOutputIndex = e.TxHash, e.OutputIndex
			stakeOutputAmount = e.Output.Amount
			found = true
			break
		}
	}
	if !found {
		log.Ledger.Warn().Str("address", string(address)).Msg("no UTXO large enough to back registered stake")
		return nil, false
	}

	parent := l.chain[len(l.chain)-1]
	ts := l.mineTimestamp(parent)

	coinbase := &tx.Transaction{
		Outputs:   []tx.Output{{Address: address, Amount: config.PosBlockReward}},
		Timestamp: ts,
	}
	coinstake := &tx.Transaction{
		Inputs: []tx.Input{{PreviousTx: stakeEntryHash, OutputIndex: stakeOutputIndex, Signature: []byte("stake")}},
		Outputs: []tx.Output{
			{Address: address, Amount: 0}, // marker output
			{Address: address, Amount: stakeOutputAmount},
		},
		Timestamp: ts,
	}

	txs := append([]*tx.Transaction{coinbase, coinstake}, l.pending...)
	timestamps, difficulties := historySeries(l.chain)
	nextIndex := uint32(len(l.chain))
	// PoS blocks reuse the difficulty field for chain identification, not
	// work (spec.md §4.1.2); it still carries the current retarget output.
	difficulty := ExpectedDifficulty(nextIndex, timestamps, difficulties)

	b := &block.Block{
		Index:        nextIndex,
		Timestamp:    ts,
		PreviousHash: parent.Hash,
		Difficulty:   difficulty,
		Transactions: txs,
	}
	return b, true
}
