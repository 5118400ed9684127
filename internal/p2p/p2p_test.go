package p2p

import (
	"testing"
	"time"

	"github.com/klingon-tech/hybridnode/internal/ledger"
)

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"localhost:5001/":  "ws://localhost:5001",
		"localhost:5001":   "ws://localhost:5001",
		"ws://host:5002":   "ws://host:5002",
		"ws://host:5002/":  "ws://host:5002",
		"wss://host:5003/": "wss://host:5003",
	}
	for in, want := range cases {
		if got := normalizeURL(in); got != want {
			t.Errorf("normalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReconnectDelay(t *testing.T) {
	cases := []struct {
		attempt int
		wantMs  int64
	}{
		{1, 1000},
		{2, 2000},
		{3, 4000},
		{4, 8000},
		{5, 16000},
		{6, 30000}, // 32000 clamped to 30000
		{10, 30000},
	}
	for _, c := range cases {
		got := reconnectDelay(c.attempt)
		if got != time.Duration(c.wantMs)*time.Millisecond {
			t.Errorf("reconnectDelay(%d) = %v, want %dms", c.attempt, got, c.wantMs)
		}
	}
}

func TestSeenSet_DedupesRepeatedPayloads(t *testing.T) {
	s := newSeenSet()
	payload := []byte(`{"index":1}`)
	if !s.MarkIfNew(payload) {
		t.Fatal("first sighting should be new")
	}
	if s.MarkIfNew(payload) {
		t.Fatal("repeated payload should not be new")
	}
	if !s.MarkIfNew([]byte(`{"index":2}`)) {
		t.Fatal("distinct payload should be new")
	}
}

func TestServer_BroadcastsMinedBlockToDialedPeer(t *testing.T) {
	serverLedger := ledger.NewForTest(nil)
	clientLedger := ledger.NewForTest(nil)

	server := New(serverLedger, 19501, "")
	if err := server.Start(nil); err != nil {
		t.Fatalf("server start: %v", err)
	}
	defer server.Stop()

	client := New(clientLedger, 19502, "")
	if err := client.Start(nil); err != nil {
		t.Fatalf("client start: %v", err)
	}
	defer client.Stop()

	client.Dial("localhost:19501")

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for server.PeerCount() == 0 || client.PeerCount() == 0 {
		select {
		case <-tick.C:
		case <-deadline:
			t.Fatal("timed out waiting for peers to connect")
		}
	}

	b, err := serverLedger.MinePending("miner1")
	if err != nil {
		t.Fatalf("mine_pending: %v", err)
	}
	server.BroadcastBlock(b)

	deadline = time.After(5 * time.Second)
	for clientLedger.Height() < 2 {
		select {
		case <-tick.C:
		case <-deadline:
			t.Fatal("timed out waiting for client to receive the mined block")
		}
	}
	if clientLedger.LatestBlock().Hash != b.Hash {
		t.Fatal("client's head does not match the broadcast block")
	}
}
