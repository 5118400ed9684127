package p2p

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Peer wraps one WebSocket connection. Writes are serialized with a
// mutex since gorilla/websocket connections are not safe for concurrent
// writers; reads happen only from the single owning readLoop goroutine.
type Peer struct {
	id   uint64
	conn *websocket.Conn
	url  string // dialed URL; empty for inbound-only peers

	writeMu sync.Mutex
	closed  bool
}

// Send writes msg to the peer if its socket is still open ("OPEN" in
// spec.md's vocabulary); a Send after Close is a silent no-op, matching
// broadcast's "every socket whose state is OPEN" rule.
func (p *Peer) Send(msg Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed {
		return nil
	}
	return p.conn.WriteJSON(msg)
}

// Close marks the peer closed and releases the underlying connection.
// Idempotent.
func (p *Peer) Close() {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	_ = p.conn.Close()
}

func (p *Peer) isOpen() bool {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return !p.closed
}
