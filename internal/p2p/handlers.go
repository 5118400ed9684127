package p2p

import (
	"encoding/json"

	"github.com/klingon-tech/hybridnode/internal/log"
	"github.com/klingon-tech/hybridnode/pkg/block"
	"github.com/klingon-tech/hybridnode/pkg/tx"
)

// readLoop owns the single reader of p.conn: per-peer message order is
// preserved by handling each message to completion before reading the
// next (spec.md §5 "Per-peer message order is preserved"). It returns
// when the connection closes or errors, after deregistering the peer.
func (s *Server) readLoop(p *Peer) {
	defer func() {
		p.Close()
		s.removeSocket(p)
	}()

	for {
		var msg Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			return
		}
		s.dispatch(p, msg)
	}
}

func (s *Server) dispatch(from *Peer, msg Message) {
	switch msg.Type {
	case TypeChain:
		s.handleChain(msg.Data)
	case TypeBlock:
		s.handleBlock(from, msg.Data)
	case TypeTransaction:
		s.handleTransaction(msg.Data)
	case TypeStake:
		s.handleStake(msg.Data)
	case TypeUnstake:
		s.handleUnstake(msg.Data)
	case TypeGetLatestBlock:
		s.handleGetLatestBlock(from)
	case TypeLatestBlock:
		s.handleLatestBlock(from, msg.Data)
	default:
		log.P2P.Warn().Str("type", msg.Type).Msg("unknown message type")
	}
}

// handleChain is the "Chain handler": replace_chain already acquires the
// replace-mutex and no-ops unless the candidate is strictly longer and
// passes full validation, so this just forwards the decision (spec.md
// §4.4 "Chain handler").
func (s *Server) handleChain(data json.RawMessage) {
	var chain []*block.Block
	if err := json.Unmarshal(data, &chain); err != nil {
		log.P2P.Warn().Err(err).Msg("malformed CHAIN message")
		return
	}
	if err := s.ledger.ReplaceChain(chain); err != nil {
		log.P2P.Warn().Err(err).Msg("reject candidate chain")
	}
}

// handleBlock is the "Block handler": if the peer is ahead of us by more
// than one block, broadcast a GET_LATEST_BLOCK probe and drop the block
// (the probe's reply is only the peer's head, which handleLatestBlock
// logs; no full chain is fetched here), otherwise attempt to append and
// re-broadcast on success (spec.md §4.4 "Block handler").
func (s *Server) handleBlock(from *Peer, data json.RawMessage) {
	var b block.Block
	if err := json.Unmarshal(data, &b); err != nil {
		log.P2P.Warn().Err(err).Msg("malformed BLOCK message")
		return
	}

	if !s.seen.MarkIfNew(data) {
		return
	}

	if int(b.Index) > s.ledger.Height() {
		s.Broadcast(getLatestBlockMessage())
		return
	}

	if err := s.ledger.TryAppendPeerBlock(&b); err != nil {
		log.P2P.Debug().Err(err).Uint32("index", b.Index).Msg("peer block rejected")
		return
	}
	s.Broadcast(blockMessage(&b))
}

func (s *Server) handleTransaction(data json.RawMessage) {
	var t tx.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		log.P2P.Warn().Err(err).Msg("malformed TRANSACTION message")
		return
	}
	if err := s.ledger.AddTransaction(&t); err != nil {
		log.P2P.Debug().Err(err).Msg("peer transaction rejected")
	}
}

func (s *Server) handleStake(data json.RawMessage) {
	var p StakePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.P2P.Warn().Err(err).Msg("malformed STAKE message")
		return
	}
	if err := s.ledger.Stake(p.Address, p.Amount); err != nil {
		log.P2P.Debug().Err(err).Msg("peer stake rejected")
	}
}

func (s *Server) handleUnstake(data json.RawMessage) {
	var p StakePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.P2P.Warn().Err(err).Msg("malformed UNSTAKE message")
		return
	}
	if err := s.ledger.Unstake(p.Address, p.Amount); err != nil {
		log.P2P.Debug().Err(err).Msg("peer unstake rejected")
	}
}

func (s *Server) handleGetLatestBlock(from *Peer) {
	if err := from.Send(latestBlockMessage(s.ledger.LatestBlock())); err != nil {
		log.P2P.Warn().Err(err).Msg("send latest block")
	}
}

// handleLatestBlock receives a peer's head probe response. Head probing
// is purely informational per spec.md §4.4 ("GET_LATEST_BLOCK /
// LATEST_BLOCK — head probing"); a peer found to be ahead will shortly
// broadcast its own BLOCK or CHAIN message, which the existing handlers
// already reconcile against the local ledger.
func (s *Server) handleLatestBlock(from *Peer, data json.RawMessage) {
	var b block.Block
	if err := json.Unmarshal(data, &b); err != nil {
		log.P2P.Warn().Err(err).Msg("malformed LATEST_BLOCK message")
		return
	}
	log.P2P.Debug().Uint32("peer_head_index", b.Index).Int("local_height", s.ledger.Height()).Msg("received peer head probe")
}
