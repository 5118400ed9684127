package ledger

import (
	"encoding/binary"

	"github.com/klingon-tech/hybridnode/internal/log"
)

// syncCache writes the current UTXO balances into the secondary Badger
// cache, if one is configured. It is a rebuildable read-side index, never
// the source of truth (the JSON snapshot is); a write failure here is
// logged and otherwise ignored, matching the teacher's own treatment of
// its secondary indices as best-effort.
func (l *Ledger) syncCache() {
	if l.cache == nil {
		return
	}
	for _, addr := range l.utxo.Addresses() {
		key := append([]byte("balance:"), []byte(addr)...)
		var value [8]byte
		binary.LittleEndian.PutUint64(value[:], l.utxo.Balance(addr))
		if err := l.cache.Put(key, value[:]); err != nil {
			log.Storage.Warn().Err(err).Str("address", string(addr)).Msg("sync balance cache")
		}
	}
}
