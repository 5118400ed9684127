// Package p2p implements the gossip transport: a WebSocket server and
// dialer exchanging a small tagged-union JSON message protocol that
// drives chain sync, block propagation and mempool relay (spec.md §4.4).
// Grounded on the teacher's internal/p2p/node.go (struct-held peer table,
// SetXHandler-free direct ledger wiring here since there's a single
// consumer) with the transport swapped from libp2p pubsub to
// gorilla/websocket, matching spec.md's literal WebSocket/TCP framing —
// libp2p's topic/DHT/mDNS machinery has no analogue in a spec that names
// only "dial a URL, accept a socket."
package p2p

import (
	"encoding/json"

	"github.com/klingon-tech/hybridnode/pkg/block"
	"github.com/klingon-tech/hybridnode/pkg/tx"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

// Message kinds, tagged by Type (spec.md §4.4).
const (
	TypeChain          = "CHAIN"
	TypeBlock          = "BLOCK"
	TypeTransaction    = "TRANSACTION"
	TypeStake          = "STAKE"
	TypeUnstake        = "UNSTAKE"
	TypeGetLatestBlock = "GET_LATEST_BLOCK"
	TypeLatestBlock    = "LATEST_BLOCK"
)

// Message is the wire envelope every peer message is wrapped in.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StakePayload is the body of STAKE/UNSTAKE messages.
type StakePayload struct {
	Address types.Address `json:"address"`
	Amount  uint64        `json:"amount"`
}

func chainMessage(chain []*block.Block) Message {
	return Message{Type: TypeChain, Data: mustMarshal(chain)}
}

func blockMessage(b *block.Block) Message {
	return Message{Type: TypeBlock, Data: mustMarshal(b)}
}

func transactionMessage(t *tx.Transaction) Message {
	return Message{Type: TypeTransaction, Data: mustMarshal(t)}
}

func latestBlockMessage(b *block.Block) Message {
	return Message{Type: TypeLatestBlock, Data: mustMarshal(b)}
}

func getLatestBlockMessage() Message {
	return Message{Type: TypeGetLatestBlock}
}

// mustMarshal panics only on programmer error (a type that can't marshal
// to JSON); every caller passes concrete, marshalable domain types.
func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic("p2p: marshal message payload: " + err.Error())
	}
	return b
}
