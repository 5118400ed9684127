// Package ledger implements the replicated chain state machine: block and
// transaction validation, the UTXO index, hybrid PoW/PoS consensus rules,
// difficulty retargeting, stake accounting, chain selection and
// persistence (spec.md §4.1). A single mutex — the "replace-mutex" in the
// spec's vocabulary — serializes every mutating operation, mirroring how
// the teacher's internal/chain.Chain guards ProcessBlock/Reorg with one
// sync.Mutex.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/klingon-tech/hybridnode/config"
	"github.com/klingon-tech/hybridnode/internal/log"
	"github.com/klingon-tech/hybridnode/internal/stake"
	"github.com/klingon-tech/hybridnode/internal/storage"
	"github.com/klingon-tech/hybridnode/internal/utxo"
	"github.com/klingon-tech/hybridnode/pkg/block"
	"github.com/klingon-tech/hybridnode/pkg/crypto"
	"github.com/klingon-tech/hybridnode/pkg/tx"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

// Clock abstracts wall-clock time so tests can drive deterministic
// scenarios (spec.md §8.2's "deterministic timestamps 11-min apart").
type Clock func() uint64

func realClock() uint64 { return uint64(time.Now().UnixMilli()) }

// Ledger owns the chain, the pending transaction pool, the UTXO index and
// the stake registry. All mutating methods take mu; read-only methods
// take it too, briefly, to return a consistent snapshot.
type Ledger struct {
	mu sync.Mutex

	cfg   *config.Config
	cache storage.DB // secondary rebuildable cache; nil disables it
	clock Clock

	chain   []*block.Block
	pending []*tx.Transaction
	utxo    *utxo.Index
	stakes  *stake.Registry

	forceLotteryWin bool
}

// New loads or initializes a ledger at cfg.SnapshotPath(), per spec.md
// §4.1.4: missing file -> write genesis; existing file -> load without
// recomputing hashes, verify structural invariants, rebuild the UTXO
// index by replay. Any failure is fatal (*PersistenceError).
func New(cfg *config.Config, cache storage.DB) (*Ledger, error) {
	l := &Ledger{
		cfg:    cfg,
		cache:  cache,
		clock:  realClock,
		stakes: stake.NewRegistry(),
	}

	chain, err := loadOrInitSnapshot(cfg.SnapshotPath())
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	if err := verifyChainStructure(chain); err != nil {
		return nil, &PersistenceError{Op: "verify", Err: err}
	}

	l.chain = chain
	l.utxo = utxo.Rebuild(blockTxLists(chain))
	log.Ledger.Info().Int("height", len(chain)).Msg("ledger loaded")
	return l, nil
}

// NewForTest builds an in-memory ledger seeded with just the genesis
// block and a deterministic clock, bypassing snapshot persistence. Used
// by _test.go files across packages that need a ledger fixture.
func NewForTest(clock Clock) *Ledger {
	if clock == nil {
		clock = realClock
	}
	genesis := Genesis()
	return &Ledger{
		cfg:    &config.Config{DataDir: ""},
		clock:  clock,
		stakes: stake.NewRegistry(),
		chain:  []*block.Block{genesis},
		utxo:   utxo.Rebuild([][]*tx.Transaction{genesis.Transactions}),
	}
}

func blockTxLists(chain []*block.Block) [][]*tx.Transaction {
	out := make([][]*tx.Transaction, len(chain))
	for i, b := range chain {
		out[i] = b.Transactions
	}
	return out
}

// --- Read-only operations ---

// LatestBlock returns the current chain head.
func (l *Ledger) LatestBlock() *block.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain[len(l.chain)-1]
}

// ChainSnapshot returns a copy of the chain slice (not a deep copy of
// each block; blocks are treated as immutable once appended).
func (l *Ledger) ChainSnapshot() []*block.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*block.Block, len(l.chain))
	copy(out, l.chain)
	return out
}

// PendingSnapshot returns a copy of the pending transaction pool.
func (l *Ledger) PendingSnapshot() []*tx.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*tx.Transaction, len(l.pending))
	copy(out, l.pending)
	return out
}

// Balance returns addr's current spendable balance (sum of its unspent
// outputs in the live index).
func (l *Ledger) Balance(addr types.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.utxo.Balance(addr)
}

// TotalBalance replays the entire chain independently of the live index
// and returns addr's balance, used by consistency tests to cross-check
// Balance (spec.md §8 invariant 6).
func (l *Ledger) TotalBalance(addr types.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return utxo.TotalBalance(blockTxLists(l.chain), addr)
}

// GetStake returns addr's registered stake, if any.
func (l *Ledger) GetStake(addr types.Address) (stake.Info, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stakes.Get(addr)
}

// IsChainValid re-validates the entire in-memory chain from genesis.
func (l *Ledger) IsChainValid() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return validateChain(l.chain) == nil
}

// Height returns the number of blocks in the chain.
func (l *Ledger) Height() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chain)
}

// --- Mutating operations ---

// AddTransaction validates tx structurally and appends it to pending.
func (l *Ledger) AddTransaction(t *tx.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(t.Inputs) == 0 && !t.IsCoinbase() {
		return ErrInvalidTransactions
	}
	if len(t.Outputs) == 0 {
		return ErrInvalidTransactions
	}
	if !t.IsValid() {
		return ErrInvalidTransactions
	}
	l.pending = append(l.pending, t)
	return nil
}

// CreateTransaction selects UTXOs from `from` greedily until their sum
// covers amount, builds outputs [{to,amount},{from,change}] (change
// output omitted when zero), signs every input, and returns the
// transaction unappended (spec.md §4.1 create_transaction).
func (l *Ledger) CreateTransaction(from, to types.Address, amount uint64, signer crypto.Signer) (*tx.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	available := l.utxo.Outputs(from)
	sort.Slice(available, func(i, j int) bool { return available[i].Output.Amount > available[j].Output.Amount })

	var selected []utxo.Entry
	var sum uint64
	for _, e := range available {
		if sum >= amount {
			break
		}
		selected = append(selected, e)
		sum += e.Output.Amount
	}
	if sum < amount {
		return nil, ErrInsufficientFunds
	}

	outputs := []tx.Output{{Address: to, Amount: amount}}
	if change := sum - amount; change > 0 {
		outputs = append(outputs, tx.Output{Address: from, Amount: change})
	}

	t := &tx.Transaction{
		Outputs:   outputs,
		Timestamp: l.clock(),
		Nonce:     l.clock(),
	}
	for _, e := range selected {
		t.Inputs = append(t.Inputs, tx.Input{PreviousTx: e.TxHash, OutputIndex: e.OutputIndex})
	}
	for i := range t.Inputs {
		if err := tx.SignInput(t, i, signer); err != nil {
			return nil, fmt.Errorf("create transaction: %w", err)
		}
	}
	return t, nil
}

// Stake locks amount of address's balance into the stake registry:
// requires amount >= MIN_STAKE_AMOUNT and balance(address) >= amount. No
// separate locking transaction is mined up front — the existing UTXO
// backing the stake is spent later by the coinstake a won PoS block
// assembles (spec.md §4.1.2's "find any UTXO of addr with amount >=
// stake_amount"), which is this implementation's resolution of spec.md's
// terse "constructs and mines a locking transaction" language.
func (l *Ledger) Stake(address types.Address, amount uint64) error {
	if amount < config.MinStakeAmount {
		return ErrBelowMinimumStake
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.utxo.Balance(address) < amount {
		return ErrInsufficientBalanceForStaking
	}
	l.stakes.Register(address, amount, int64(l.clock()))
	return nil
}

// Unstake decrements address's registered stake by amount.
func (l *Ledger) Unstake(address types.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.stakes.Unstake(address, amount); err != nil {
		switch err.Error() {
		case stake.ErrNoStake:
			return ErrNoStake
		case stake.ErrInsufficientStake:
			return ErrInsufficientStake
		}
		return err
	}
	return nil
}

// AppendMinedBlock validates and appends a locally produced block. On
// success the pending pool is cleared, the UTXO delta applied, and the
// chain persisted.
func (l *Ledger) AppendMinedBlock(b *block.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(b)
}

// TryAppendPeerBlock runs the same validation path as AppendMinedBlock
// but is idempotent: a block already present at that index with a
// matching hash is treated as success, not an error, since a peer often
// rebroadcasts blocks already known locally.
func (l *Ledger) TryAppendPeerBlock(b *block.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if int(b.Index) < len(l.chain) {
		existing := l.chain[b.Index]
		if existing.Hash == b.Hash {
			return nil
		}
	}
	return l.appendLocked(b)
}

func (l *Ledger) appendLocked(b *block.Block) error {
	prev := l.chain[len(l.chain)-1]
	if err := l.validateNextBlock(b, prev); err != nil {
		return err
	}

	l.chain = append(l.chain, b)
	l.dropConfirmed(b.Transactions)
	utxo.Apply(l.utxo, b.Transactions)
	if b.IsPoS() {
		cs := b.Coinstake()
		staker := cs.Outputs[1].Address
		l.stakes.RecordWin(staker, int64(b.Timestamp))
	}

	if err := l.persist(); err != nil {
		log.Ledger.Error().Err(err).Msg("persist chain snapshot")
	}
	l.syncCache()
	return nil
}

// dropConfirmed removes from pending every transaction whose hash now
// appears in txs (just-confirmed or, on replace_chain, anywhere in the
// new chain).
func (l *Ledger) dropConfirmed(txs []*tx.Transaction) {
	confirmed := make(map[types.Hash]bool, len(txs))
	for _, t := range txs {
		confirmed[t.Hash()] = true
	}
	kept := l.pending[:0]
	for _, t := range l.pending {
		if !confirmed[t.Hash()] {
			kept = append(kept, t)
		}
	}
	l.pending = kept
}

// ReplaceChain atomically swaps the local chain for newChain if it is
// strictly longer and passes full validation from genesis. On success
// the UTXO index is rebuilt by full replay and pending transactions
// already confirmed in newChain are dropped.
func (l *Ledger) ReplaceChain(newChain []*block.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(newChain) <= len(l.chain) {
		return nil
	}
	if err := validateChain(newChain); err != nil {
		return err
	}

	l.chain = newChain
	l.utxo = utxo.Rebuild(blockTxLists(newChain))

	var allTxs []*tx.Transaction
	for _, b := range newChain {
		allTxs = append(allTxs, b.Transactions...)
	}
	l.dropConfirmed(allTxs)

	if err := l.persist(); err != nil {
		log.Ledger.Error().Err(err).Msg("persist chain snapshot after replace")
	}
	l.syncCache()
	return nil
}
