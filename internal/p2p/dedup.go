package p2p

import (
	"sync"

	"github.com/zeebo/blake3"
)

// dedupCapacity bounds how many recent message digests are remembered
// before the oldest are evicted.
const dedupCapacity = 4096

// seenSet guards against rebroadcast storms: a BLOCK message relayed by
// several peers simultaneously would otherwise bounce around the mesh
// indefinitely. Keyed by BLAKE3 rather than the ledger's SHA-256 content
// hash — this is transport-layer dedup, not consensus, so it reuses the
// teacher's fast general-purpose hash (pkg/crypto redeploys BLAKE3
// nowhere else since the ledger's canonical hash is SHA-256; this is its
// home).
type seenSet struct {
	mu    sync.Mutex
	order []string
	seen  map[string]bool
}

func newSeenSet() *seenSet {
	return &seenSet{seen: make(map[string]bool)}
}

// MarkIfNew returns true the first time data is seen, false on repeats.
func (s *seenSet) MarkIfNew(data []byte) bool {
	h := blake3.Sum256(data)
	key := string(h[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	s.order = append(s.order, key)
	if len(s.order) > dedupCapacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	return true
}
