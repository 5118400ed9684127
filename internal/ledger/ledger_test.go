package ledger

import (
	"testing"

	"github.com/klingon-tech/hybridnode/config"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

func steppingClock(startMs, stepMs uint64) Clock {
	cur := startMs
	return func() uint64 {
		cur += stepMs
		return cur
	}
}

func TestGenesisOnly(t *testing.T) {
	l := NewForTest(nil)
	if l.Height() != 1 {
		t.Fatalf("height = %d, want 1", l.Height())
	}
	head := l.LatestBlock()
	if head.PreviousHash != "0" {
		t.Fatalf("genesis previous_hash = %q, want \"0\"", head.PreviousHash)
	}
	if head.Index != 0 {
		t.Fatalf("genesis index = %d, want 0", head.Index)
	}
	if head.IsPoS() {
		t.Fatal("genesis must be PoW")
	}
}

func TestPoWRewardAccrual(t *testing.T) {
	clock := steppingClock(config.GenesisTimestampMs, 11*60*1000)
	l := NewForTest(clock)

	const rounds = 50
	for i := 0; i < rounds; i++ {
		if _, err := l.MinePending("miner1"); err != nil {
			t.Fatalf("round %d: mine_pending failed: %v", i, err)
		}
	}

	if l.Height() != rounds+1 {
		t.Fatalf("chain length = %d, want %d", l.Height(), rounds+1)
	}
	want := uint64(rounds) * config.PowBlockReward
	if got := l.TotalBalance("miner1"); got != want {
		t.Fatalf("total_balance(miner1) = %d, want %d", got, want)
	}
	if got := l.Balance("miner1"); got != want {
		t.Fatalf("balance(miner1) = %d, want %d (must match total_balance)", got, want)
	}
}

func TestTransitionToPoS(t *testing.T) {
	const twoDaysMs = 2 * 24 * 60 * 60 * 1000
	clock := steppingClock(config.GenesisTimestampMs, twoDaysMs)
	l := NewForTest(clock)

	for i := uint32(0); i < config.PowCutoff; i++ {
		if _, err := l.MinePending("miner1"); err != nil {
			t.Fatalf("round %d: mine_pending failed: %v", i, err)
		}
	}
	if l.Height() != int(config.PowCutoff)+1 {
		t.Fatalf("chain length = %d, want %d", l.Height(), config.PowCutoff+1)
	}

	if err := l.Stake("miner1", 100); err != nil {
		t.Fatalf("stake failed: %v", err)
	}

	l.SetDeterministicLottery(true)
	b, err := l.MinePending("miner1")
	if err != nil {
		t.Fatalf("mine_pending after staking failed: %v", err)
	}
	if !b.IsPoS() {
		t.Fatal("expected new head to be PoS")
	}

	info, ok := l.GetStake("miner1")
	if !ok {
		t.Fatal("expected stake to be registered")
	}
	if info.Amount != 100 {
		t.Fatalf("get_stake(miner1) = %d, want 100", info.Amount)
	}
}

func TestStakeBelowMinimum(t *testing.T) {
	l := NewForTest(nil)
	heightBefore := l.Height()

	err := l.Stake("someone", config.MinStakeAmount-1)
	if err != ErrBelowMinimumStake {
		t.Fatalf("err = %v, want ErrBelowMinimumStake", err)
	}
	if l.Height() != heightBefore {
		t.Fatal("chain must be unchanged on rejected stake")
	}
}

func TestInsufficientBalanceForStaking(t *testing.T) {
	l := NewForTest(nil)
	err := l.Stake("user_with_0_balance", config.MinStakeAmount)
	if err != ErrInsufficientBalanceForStaking {
		t.Fatalf("err = %v, want ErrInsufficientBalanceForStaking", err)
	}
}

func mineN(t *testing.T, l *Ledger, miner types.Address, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := l.MinePending(miner); err != nil {
			t.Fatalf("mine_pending: %v", err)
		}
	}
}

func TestChainReplacement_LongerValidChainWins(t *testing.T) {
	primary := NewForTest(steppingClock(config.GenesisTimestampMs, 11*60*1000))
	mineN(t, primary, "miner1", 3)
	if primary.Height() != 4 {
		t.Fatalf("primary height = %d, want 4", primary.Height())
	}

	secondary := NewForTest(steppingClock(config.GenesisTimestampMs, 13*60*1000))
	mineN(t, secondary, "miner2", 4)
	if secondary.Height() != 5 {
		t.Fatalf("secondary height = %d, want 5", secondary.Height())
	}

	if err := primary.ReplaceChain(secondary.ChainSnapshot()); err != nil {
		t.Fatalf("replace_chain failed: %v", err)
	}
	if primary.Height() != 5 {
		t.Fatalf("primary height after replace = %d, want 5", primary.Height())
	}
	if primary.Balance("miner2") != 4*config.PowBlockReward {
		t.Fatalf("miner2 balance after replace = %d", primary.Balance("miner2"))
	}
}

func TestChainReplacement_ShorterOrEqualChainRejected(t *testing.T) {
	primary := NewForTest(steppingClock(config.GenesisTimestampMs, 11*60*1000))
	mineN(t, primary, "miner1", 3)

	other := NewForTest(steppingClock(config.GenesisTimestampMs, 13*60*1000))
	mineN(t, other, "miner2", 3)

	if err := primary.ReplaceChain(other.ChainSnapshot()); err != nil {
		t.Fatalf("replace_chain with equal-length chain should be a no-op, not error: %v", err)
	}
	if primary.Height() != 4 {
		t.Fatal("equal-length candidate chain must not replace the local chain")
	}
	if primary.Balance("miner1") == 0 {
		t.Fatal("local chain state must be untouched")
	}
}

func TestTryAppendPeerBlock_RejectsAlteredParentHash(t *testing.T) {
	l := NewForTest(steppingClock(config.GenesisTimestampMs, 11*60*1000))

	b, err := l.MinePending("miner1")
	if err != nil {
		t.Fatalf("mine_pending: %v", err)
	}
	heightBefore := l.Height()

	tampered := *b
	tampered.PreviousHash = "not-a-real-parent"
	tampered.Index++

	err = l.TryAppendPeerBlock(&tampered)
	if err != ErrWrongParent {
		t.Fatalf("err = %v, want ErrWrongParent", err)
	}
	if l.Height() != heightBefore {
		t.Fatal("chain must be unchanged after rejecting an invalid peer block")
	}
}

func TestIsChainValid(t *testing.T) {
	l := NewForTest(steppingClock(config.GenesisTimestampMs, 11*60*1000))
	mineN(t, l, "miner1", 5)
	if !l.IsChainValid() {
		t.Fatal("freshly mined chain should validate")
	}
}
