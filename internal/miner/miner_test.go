package miner

import (
	"testing"
	"time"

	"github.com/klingon-tech/hybridnode/internal/ledger"
)

func TestMiner_MinesAndAppendsBlock(t *testing.T) {
	l := ledger.NewForTest(nil)
	heightBefore := l.Height()

	m := New(l, "miner1")
	m.Start()
	defer m.Stop()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()

	for l.Height() == heightBefore {
		select {
		case <-tick.C:
		case <-deadline:
			t.Fatal("timed out waiting for miner to append a block")
		}
	}

	head := l.LatestBlock()
	if head.Index != uint32(heightBefore) {
		t.Fatalf("head index = %d, want %d", head.Index, heightBefore)
	}
	if !head.MeetsTarget() {
		t.Fatal("appended block does not meet its own difficulty target")
	}
}

func TestMiner_StopPreventsFurtherRounds(t *testing.T) {
	l := ledger.NewForTest(nil)

	m := New(l, "miner1")
	m.Start()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for l.Height() == 1 {
		select {
		case <-tick.C:
		case <-deadline:
			t.Fatal("timed out waiting for the first block")
		}
	}
	m.Stop()

	heightAfterStop := l.Height()
	time.Sleep(100 * time.Millisecond)
	if l.Height() != heightAfterStop {
		t.Fatal("miner kept appending blocks after Stop")
	}
}

func TestMiner_StartTwiceIsNoop(t *testing.T) {
	l := ledger.NewForTest(nil)
	m := New(l, "miner1")
	m.Start()
	defer m.Stop()
	m.Start() // must not panic, deadlock, or spawn a second worker loop
}
