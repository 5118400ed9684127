package staking

import (
	"testing"
	"time"

	"github.com/klingon-tech/hybridnode/config"
	"github.com/klingon-tech/hybridnode/internal/ledger"
)

// fastClock advances the ledger's notion of time quickly so PoW blocks
// past cutoff, stake registration aging, and eligibility windows don't
// require real wall-clock waits.
func fastClock(startMs, stepMs uint64) ledger.Clock {
	cur := startMs
	return func() uint64 {
		cur += stepMs
		return cur
	}
}

func TestService_ProposesAndAppendsWinningBlock(t *testing.T) {
	const twoDaysMs = 2 * 24 * 60 * 60 * 1000
	l := ledger.NewForTest(fastClock(config.GenesisTimestampMs, twoDaysMs))

	for i := uint32(0); i < config.PowCutoff; i++ {
		if _, err := l.MinePending("staker1"); err != nil {
			t.Fatalf("mine_pending round %d: %v", i, err)
		}
	}
	if err := l.Stake("staker1", 100); err != nil {
		t.Fatalf("stake: %v", err)
	}
	l.SetDeterministicLottery(true)

	heightBefore := l.Height()

	svc := New(l, "staker1")
	svc.checkInterval = 10 * time.Millisecond
	svc.Start()
	defer svc.Stop()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for l.Height() == heightBefore {
		select {
		case <-tick.C:
		case <-deadline:
			t.Fatal("timed out waiting for the staking service to append a block")
		}
	}

	if !l.LatestBlock().IsPoS() {
		t.Fatal("appended block should be PoS")
	}
}

func TestService_StartTwiceIsNoop(t *testing.T) {
	l := ledger.NewForTest(nil)
	svc := New(l, "staker1")
	svc.Start()
	defer svc.Stop()
	svc.Start()
}

func TestService_StopHaltsTicking(t *testing.T) {
	l := ledger.NewForTest(nil)
	svc := New(l, "staker1")
	svc.checkInterval = 5 * time.Millisecond
	svc.Start()
	time.Sleep(20 * time.Millisecond)
	svc.Stop()
	heightAfterStop := l.Height()
	time.Sleep(50 * time.Millisecond)
	if l.Height() != heightAfterStop {
		t.Fatal("service kept acting after Stop")
	}
}
