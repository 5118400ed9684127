package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klingon-tech/hybridnode/pkg/block"
)

// loadOrInitSnapshot reads the chain snapshot at path, or writes and
// returns a fresh genesis-only chain if the file does not exist yet
// (spec.md §4.1.4). It does not recompute any block hash — the snapshot
// is trusted for content, only re-checked for structure by the caller.
func loadOrInitSnapshot(path string) ([]*block.Block, error) {
	if path == "" {
		return []*block.Block{Genesis()}, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		genesis := []*block.Block{Genesis()}
		if writeErr := writeSnapshot(path, genesis); writeErr != nil {
			return nil, fmt.Errorf("write genesis snapshot: %w", writeErr)
		}
		return genesis, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var chain []*block.Block
	if err := json.Unmarshal(raw, &chain); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return chain, nil
}

// persist serializes the full chain to the configured path. Callers must
// hold l.mu. Writes to a temp file and renames over the target so a
// crash mid-write never leaves a truncated snapshot (spec.md §5 "single
// writer" guarantee).
func (l *Ledger) persist() error {
	path := l.cfg.SnapshotPath()
	if path == "" {
		return nil
	}
	return writeSnapshot(path, l.chain)
}

func writeSnapshot(path string, chain []*block.Block) error {
	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
