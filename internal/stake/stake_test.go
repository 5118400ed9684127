package stake

import "testing"

func TestWeight_MonotonicInAge(t *testing.T) {
	base := Info{Amount: 100, StakeStartMs: 0, LastBlockTime: 0}
	w0 := Weight(base)

	older := Info{Amount: 100, StakeStartMs: 0, LastBlockTime: 86_400_000}
	w1 := Weight(older)

	if w1 < w0 {
		t.Fatalf("weight decreased with age: %d -> %d", w0, w1)
	}

	evenOlder := Info{Amount: 100, StakeStartMs: 0, LastBlockTime: 2 * 86_400_000}
	w2 := Weight(evenOlder)
	if w2 < w1 {
		t.Fatalf("weight decreased with age: %d -> %d", w1, w2)
	}
}

func TestWeight_ZeroDays(t *testing.T) {
	info := Info{Amount: 250, StakeStartMs: 1000, LastBlockTime: 1000}
	if got := Weight(info); got != 250 {
		t.Fatalf("weight = %d, want 250", got)
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", 100, 5000)

	info, ok := r.Get("alice")
	if !ok {
		t.Fatal("expected stake to be registered")
	}
	if info.Amount != 100 || info.StakeStartMs != 5000 {
		t.Fatalf("unexpected info: %+v", info)
	}

	r.Register("alice", 50, 6000)
	info, _ = r.Get("alice")
	if info.Amount != 150 {
		t.Fatalf("amount = %d, want 150", info.Amount)
	}
	if info.StakeStartMs != 5000 {
		t.Fatal("stake_start must not move on top-up")
	}
}

func TestRegistry_UnstakeErrors(t *testing.T) {
	r := NewRegistry()
	if err := r.Unstake("alice", 10); err == nil || err.Error() != ErrNoStake {
		t.Fatalf("expected NoStake, got %v", err)
	}

	r.Register("alice", 100, 0)
	if err := r.Unstake("alice", 200); err == nil || err.Error() != ErrInsufficientStake {
		t.Fatalf("expected InsufficientStake, got %v", err)
	}
}

func TestRegistry_UnstakeRemovesEntryAtZero(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", 100, 0)
	if err := r.Unstake("alice", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Get("alice"); ok {
		t.Fatal("expected stake entry to be removed at zero")
	}
}

func TestEligibleToPropose(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", 100, 0)

	if r.EligibleToPropose("alice", 1000) {
		t.Fatal("should not be eligible before minimum age")
	}

	const minAgeMs = 86_400 * 1000
	if !r.EligibleToPropose("alice", minAgeMs+60_000) {
		t.Fatal("expected eligible once age and cooldown satisfied")
	}
}

func TestLottery_Deterministic(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", 100, 0)

	if !r.Lottery("alice", AlwaysWins{}) {
		t.Fatal("expected deterministic win")
	}
}

func TestLottery_UnregisteredNeverWins(t *testing.T) {
	r := NewRegistry()
	if r.Lottery("ghost", AlwaysWins{}) {
		t.Fatal("unregistered address must never win")
	}
}
