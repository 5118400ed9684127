// Package utxo maintains the per-address index of unspent transaction
// outputs. The index is owned by the ledger and mutated only under its
// replace-mutex; this package itself holds no locks of its own.
package utxo

import (
	"github.com/klingon-tech/hybridnode/pkg/tx"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

// Entry is a single unspent output together with the coordinates needed
// to spend it (the transaction that created it and the output index
// within that transaction).
type Entry struct {
	TxHash      types.Hash
	OutputIndex uint32
	Output      tx.Output
}

// Index is an in-memory address -> unspent-outputs map. It is rebuilt
// from scratch on load by replaying the chain (see internal/ledger), and
// updated incrementally as blocks are appended.
type Index struct {
	byAddress map[types.Address][]Entry
}

// New returns an empty index.
func New() *Index {
	return &Index{byAddress: make(map[types.Address][]Entry)}
}

// Balance returns the sum of unspent outputs owned by addr.
func (idx *Index) Balance(addr types.Address) uint64 {
	var total uint64
	for _, e := range idx.byAddress[addr] {
		total += e.Output.Amount
	}
	return total
}

// Outputs returns a copy of the unspent outputs owned by addr.
func (idx *Index) Outputs(addr types.Address) []Entry {
	src := idx.byAddress[addr]
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// Addresses returns every address that has held an unspent output in this
// index; an address whose outputs have all been spent stays listed with a
// zero balance. Used to drive the secondary cache sync in internal/ledger.
func (idx *Index) Addresses() []types.Address {
	out := make([]types.Address, 0, len(idx.byAddress))
	for addr := range idx.byAddress {
		out = append(out, addr)
	}
	return out
}

// Lookup resolves a specific previous output, used by coinstake validation
// to check the staked output's amount and owner. It scans
// every address's unspent set; the index is not large enough in practice
// to warrant a secondary txHash->output map.
func (idx *Index) Lookup(txHash types.Hash, outputIndex uint32) (tx.Output, bool) {
	for _, entries := range idx.byAddress {
		for _, e := range entries {
			if e.TxHash == txHash && e.OutputIndex == outputIndex {
				return e.Output, true
			}
		}
	}
	return tx.Output{}, false
}

// Spend removes the UTXO referenced by (txHash, outputIndex) from its
// owner's set, if present.
func (idx *Index) spend(txHash types.Hash, outputIndex uint32) {
	for addr, entries := range idx.byAddress {
		for i, e := range entries {
			if e.TxHash == txHash && e.OutputIndex == outputIndex {
				idx.byAddress[addr] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// add registers a new unspent output produced by transaction txHash.
func (idx *Index) add(txHash types.Hash, outputIndex uint32, out tx.Output) {
	idx.byAddress[out.Address] = append(idx.byAddress[out.Address], Entry{
		TxHash:      txHash,
		OutputIndex: outputIndex,
		Output:      out,
	})
}

// Apply commits one block's transactions to the index: every input's
// referenced output is removed first, then every output is added. Order
// matters only in that inputs are processed before outputs so that a
// transaction cannot accidentally "spend" an output it itself creates.
func Apply(idx *Index, transactions []*tx.Transaction) {
	for _, t := range transactions {
		for _, in := range t.Inputs {
			if t.IsCoinbase() {
				continue
			}
			idx.spend(in.PreviousTx, in.OutputIndex)
		}
	}
	for _, t := range transactions {
		h := t.Hash()
		for i, out := range t.Outputs {
			idx.add(h, uint32(i), out)
		}
	}
}

// Rebuild replays an ordered sequence of blocks' transactions from
// scratch and returns a fresh index, used on startup load and on chain
// replacement.
func Rebuild(blockTxs [][]*tx.Transaction) *Index {
	idx := New()
	for _, txs := range blockTxs {
		Apply(idx, txs)
	}
	return idx
}

// TotalBalance replays blockTxs independently of any live index and
// returns addr's resulting balance. Used to cross-check Index.Balance in
// consistency tests (spec's "idempotent replay" property).
func TotalBalance(blockTxs [][]*tx.Transaction, addr types.Address) uint64 {
	return Rebuild(blockTxs).Balance(addr)
}
