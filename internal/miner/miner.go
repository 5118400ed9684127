// Package miner implements the asynchronous PoW mining pipeline: a
// worker goroutine searches for a valid nonce without blocking the
// ledger/network main loop, reporting progress and results back over a
// channel (spec.md §4.2).
package miner

import (
	"context"
	"sync"
	"time"

	"github.com/klingon-tech/hybridnode/config"
	"github.com/klingon-tech/hybridnode/internal/ledger"
	"github.com/klingon-tech/hybridnode/internal/log"
	"github.com/klingon-tech/hybridnode/pkg/block"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

// Miner owns the start/stop lifecycle and the goroutine that drives mining
// rounds. Grounded on the teacher's consensus.PoW.sealParallel pattern
// (internal/consensus/pow.go): a goroutine racing toward a result,
// reported over a channel, cancellable via context — adapted here from
// "N racing searchers" to "one long-running worker reporting progress
// every 100k attempts," per spec.md §4.2's literal contract.
type Miner struct {
	ledger *ledger.Ledger
	addr   types.Address

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool

	onBlock func(*block.Block)
}

// New creates a Miner bound to a ledger; addr is the coinbase payout
// address used for every round this Miner starts.
func New(l *ledger.Ledger, addr types.Address) *Miner {
	return &Miner{ledger: l, addr: addr}
}

// SetOnBlock registers a callback fired after a mined block is
// successfully appended locally — wired by cmd/klingnetd to gossip the
// block (spec.md §5: "Broadcasts for locally produced blocks occur only
// after successful local append").
func (m *Miner) SetOnBlock(fn func(*block.Block)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBlock = fn
}

// Start begins mining iff not already mining and the chain hasn't
// crossed POW_CUTOFF. If the head is too recent to satisfy BLOCK_TIME
// spacing, the first round is scheduled after the remaining delta rather
// than starting immediately (spec.md §4.2).
func (m *Miner) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	if m.ledger.Height() >= int(config.PowCutoff) {
		log.Miner.Info().Msg("not starting miner: chain already past PoW cutoff")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	go m.run(ctx)
}

// Stop cancels any pending schedule and terminates the worker. A round
// already in flight discards its result if it completes after Stop.
func (m *Miner) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	m.running = false
}

// run drives successive mining rounds until Stop cancels ctx or the
// chain crosses POW_CUTOFF.
func (m *Miner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if m.ledger.Height() >= int(config.PowCutoff) {
			log.Miner.Info().Msg("stopping miner: chain crossed PoW cutoff")
			m.Stop()
			return
		}

		if delay := m.delayUntilNextRound(); delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		m.runRound(ctx)
	}
}

// delayUntilNextRound implements "if now - head.timestamp < target_block_time,
// schedule a one-shot after target_block_time - delta."
func (m *Miner) delayUntilNextRound() time.Duration {
	head := m.ledger.LatestBlock()
	target := time.Duration(config.BlockTimeSeconds) * time.Second
	elapsed := time.Since(time.UnixMilli(int64(head.Timestamp)))
	if elapsed < target {
		return target - elapsed
	}
	return 0
}

// runRound requests a fresh block template from the ledger, spawns the
// worker to search it, drains its messages, and on a successful block
// submits the result back to the ledger.
func (m *Miner) runRound(ctx context.Context) {
	template := m.ledger.PrepareTemplate(m.addr)
	if template == nil {
		return
	}

	out := make(chan workerMsg, 8)
	go runWorker(ctx, template, out)

	for msg := range out {
		switch msg.kind {
		case kindProgress:
			log.Miner.Debug().Uint64("nonce", msg.nonce).Msg("mining progress")
		case kindError:
			log.Miner.Error().Err(msg.err).Msg("mining round failed")
			return
		case kindBlock:
			if ctx.Err() != nil {
				// Stop was called while the result was in flight; discard it.
				return
			}
			if err := m.ledger.AppendMinedBlock(msg.block); err != nil {
				log.Miner.Error().Err(err).Msg("submit mined block")
				return
			}
			log.Miner.Info().Uint32("index", msg.block.Index).Str("hash", msg.block.Hash).Msg("mined block appended")
			m.mu.Lock()
			onBlock := m.onBlock
			m.mu.Unlock()
			if onBlock != nil {
				onBlock(msg.block)
			}
			return
		}
	}
}
