// Package staking implements the proof-of-stake proposal service: a
// periodic ticker that attempts to win a block and, on success, append it
// (spec.md §4.3). Grounded on the teacher's background-loop shape in
// internal/p2p/node.go (a ticker plus select against ctx.Done()).
package staking

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

// Service periodically attempts to propose a PoS block on behalf of a
// fixed address.
type Service struct {
	ledger *ledger.Ledger
	addr   types.Address

	checkInterval time.Duration
	retryDelay    time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool

	onBlock func(*block.Block)
}

// New creates a staking Service that proposes blocks for addr.
func New(l *ledger.Ledger, addr types.Address) *Service {
	return &Service{
		ledger:        l,
		addr:          addr,
		checkInterval: config.CheckFrequencySeconds * time.Second,
		retryDelay:    config.StakingRetryDelaySeconds * time.Second,
	}
}

// SetOnBlock registers a callback fired after a proposed block is
// successfully appended locally — wired by cmd/klingnetd to gossip the
// block (spec.md §5: "Broadcasts for locally produced blocks occur only
// after successful local append").
func (s *Service) SetOnBlock(fn func(*block.Block)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBlock = fn
}

// Start begins the ticking loop, a no-op if already running.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	go s.run(ctx)
}

// Stop cancels the ticker. An in-flight tick's result is discarded if it
// completes after Stop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick attempts one proposal round. When appending the proposed block
// fails, it waits retryDelay and tries again, until a block is appended,
// no block is proposed, or the service is stopped.
func (s *Service) tick(ctx context.Context) {
	var b *block.Block
	for {
		var ok bool
		b, ok = s.ledger.GenerateStakeBlock(s.addr)
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}
		err := s.ledger.AppendMinedBlock(b)
		if err == nil {
			break
		}
		log.Staking.Error().Err(err).Msg("append proposed stake block")
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
	}
	log.Staking.Info().Uint32("index", b.Index).Str("hash", b.Hash).Msg("stake block appended")
	s.mu.Lock()
	onBlock := s.onBlock
	s.mu.Unlock()
	if onBlock != nil {
		onBlock(b)
	}
}
