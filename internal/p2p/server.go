package p2p

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klingon-tech/hybridnode/internal/ledger"
	"github.com/klingon-tech/hybridnode/internal/log"
	"github.com/klingon-tech/hybridnode/pkg/block"
	"github.com/klingon-tech/hybridnode/pkg/tx"
)

const maxReconnectAttempts = 10

// Server is the gossip node: a WebSocket listener accepting inbound
// peers plus a set of outbound dialers to configured peers, all relaying
// chain/block/transaction/stake messages into a shared Ledger.
type Server struct {
	ledger *ledger.Ledger
	port   int

	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu             sync.Mutex
	sockets        map[uint64]*Peer
	connectedPeers map[string]bool // normalized URL -> dial/hold in progress

	nextID uint64

	peerLog *peerLog
	seen    *seenSet

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server bound to l, listening on port, persisting its peer
// log at peerLogPath (empty disables persistence).
func New(l *ledger.Ledger, port int, peerLogPath string) *Server {
	return &Server{
		ledger:         l,
		port:           port,
		sockets:        make(map[uint64]*Peer),
		connectedPeers: make(map[string]bool),
		peerLog:        loadPeerLog(peerLogPath),
		seen:           newSeenSet(),
		upgrader:       websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Start begins listening for inbound connections and dials every seed
// peer plus every peer recorded in the persisted peer log.
func (s *Server) Start(seedPeers []string) error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleInbound)
	s.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", s.port), Handler: mux}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.P2P.Error().Err(err).Msg("p2p http server stopped")
		}
	}()

	seen := make(map[string]bool, len(seedPeers))
	for _, addr := range seedPeers {
		seen[normalizeURL(addr)] = true
		s.Dial(addr)
	}
	for _, addr := range s.peerLog.All() {
		if !seen[normalizeURL(addr)] {
			s.Dial(addr)
		}
	}

	log.P2P.Info().Int("port", s.port).Msg("p2p server listening")
	return nil
}

// Stop closes every socket, cancels all dialers/reconnect loops, and
// shuts down the HTTP listener.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	sockets := make([]*Peer, 0, len(s.sockets))
	for _, p := range s.sockets {
		sockets = append(sockets, p)
	}
	s.mu.Unlock()
	for _, p := range sockets {
		p.Close()
	}

	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// PeerCount returns the number of currently open sockets.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

// BroadcastBlock re-announces a locally appended block to every peer
// (spec.md §5: "Broadcasts for locally produced blocks occur only after
// successful local append").
func (s *Server) BroadcastBlock(b *block.Block) {
	s.Broadcast(blockMessage(b))
}

// BroadcastTransaction relays a locally submitted transaction to peers.
func (s *Server) BroadcastTransaction(t *tx.Transaction) {
	s.Broadcast(transactionMessage(t))
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.P2P.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	peer := &Peer{id: atomic.AddUint64(&s.nextID, 1), conn: conn}
	s.registerSocket(peer)
	if addr := conn.RemoteAddr(); addr != nil {
		s.peerLog.Add(normalizeURL(addr.String()))
	}
	s.acceptFlow(peer)
	go s.readLoop(peer)
}

// acceptFlow runs on every newly registered socket, inbound or outbound:
// log it and immediately send our own chain (spec.md §4.4 "Accept").
func (s *Server) acceptFlow(p *Peer) {
	log.P2P.Info().Uint64("peer_id", p.id).Str("url", p.url).Msg("peer connected")
	if err := p.Send(chainMessage(s.ledger.ChainSnapshot())); err != nil {
		log.P2P.Warn().Err(err).Msg("send initial chain to peer")
	}
}

func (s *Server) registerSocket(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[p.id] = p
}

func (s *Server) removeSocket(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, p.id)
	if p.url != "" {
		delete(s.connectedPeers, p.url)
	}
}

// Broadcast sends msg to every currently open socket.
func (s *Server) Broadcast(msg Message) {
	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.sockets))
	for _, p := range s.sockets {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if !p.isOpen() {
			continue
		}
		if err := p.Send(msg); err != nil {
			log.P2P.Warn().Err(err).Uint64("peer_id", p.id).Msg("broadcast to peer failed")
		}
	}
}
