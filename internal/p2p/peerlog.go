package p2p

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// peerLog is the persisted list of host:port strings this node has
// observed (spec.md §4.4's "peer_log"). Grounded on the shape of the
// teacher's PeerStore (internal/p2p/peerstore.go) but simplified from a
// storage.DB-backed record set to a single JSON file, matching the
// snapshot/peers.json persistence model spec.md §6 names for peer
// discovery — the Badger-backed storage.DB is reserved for the UTXO
// balance cache (internal/ledger/cache.go).
type peerLog struct {
	mu    sync.Mutex
	path  string // "" disables persistence
	peers map[string]bool
}

func loadPeerLog(path string) *peerLog {
	pl := &peerLog{path: path, peers: make(map[string]bool)}
	if path == "" {
		return pl
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pl
	}
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return pl
	}
	for _, e := range entries {
		pl.peers[e] = true
	}
	return pl
}

// Add records addr as observed and persists the updated log. A scheme
// prefix such as "ws://" is stripped, so entries are host:port strings.
func (pl *peerLog) Add(addr string) {
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+len("://"):]
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.peers[addr] {
		return
	}
	pl.peers[addr] = true
	pl.save()
}

// All returns every host:port string recorded so far.
func (pl *peerLog) All() []string {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	out := make([]string, 0, len(pl.peers))
	for addr := range pl.peers {
		out = append(out, addr)
	}
	return out
}

// save writes the log via a temp-file-then-rename, matching the ledger
// snapshot's atomic-write pattern (internal/ledger/snapshot.go). Caller
// must hold pl.mu.
func (pl *peerLog) save() {
	if pl.path == "" {
		return
	}
	entries := make([]string, 0, len(pl.peers))
	for addr := range pl.peers {
		entries = append(entries, addr)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return
	}
	tmp := pl.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(pl.path), 0o755); err != nil {
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, pl.path)
}
