package p2p

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klingon-tech/hybridnode/internal/log"
)

// normalizeURL prepends ws:// when no scheme is present and strips a
// trailing slash (spec.md §4.4 "Dial").
func normalizeURL(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	return addr
}

// Dial connects to addr (deduplicating via connectedPeers) and keeps the
// connection alive with exponential-backoff reconnection on unexpected
// close, up to maxReconnectAttempts (spec.md §4.4 "Reconnect").
func (s *Server) Dial(addr string) {
	normalized := normalizeURL(addr)

	s.mu.Lock()
	if s.connectedPeers[normalized] {
		s.mu.Unlock()
		return
	}
	s.connectedPeers[normalized] = true
	s.mu.Unlock()

	go s.dialLoop(normalized)
}

func (s *Server) dialLoop(normalized string) {
	attempt := 0
	for {
		if s.ctx != nil && s.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(normalized, nil)
		if err != nil {
			attempt++
			if attempt > maxReconnectAttempts {
				log.P2P.Warn().Str("peer", normalized).Int("attempts", attempt-1).Msg("giving up reconnecting to peer")
				s.mu.Lock()
				delete(s.connectedPeers, normalized)
				s.mu.Unlock()
				return
			}
			delay := reconnectDelay(attempt)
			log.P2P.Warn().Str("peer", normalized).Err(err).Dur("retry_in", delay).Msg("dial failed")
			if !s.sleepOrCancel(delay) {
				return
			}
			continue
		}

		attempt = 0
		s.peerLog.Add(normalized)
		peer := &Peer{id: atomic.AddUint64(&s.nextID, 1), conn: conn, url: normalized}
		s.registerSocket(peer)
		s.acceptFlow(peer)
		s.readLoop(peer) // blocks until the connection closes or errors
	}
}

// reconnectDelay implements delay = min(1000*2^(attempt-1), 30_000) ms.
func reconnectDelay(attempt int) time.Duration {
	ms := int64(1000)
	for i := 1; i < attempt; i++ {
		ms *= 2
		if ms >= 30_000 {
			ms = 30_000
			break
		}
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Server) sleepOrCancel(d time.Duration) bool {
	if s.ctx == nil {
		time.Sleep(d)
		return true
	}
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
