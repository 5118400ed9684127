// Package stake tracks registered stakes and implements the weighted
// proposer-selection lottery used by the PoS phase of consensus.
package stake

import (
	"math"
	"math/rand"

	"github.com/klingon-tech/hybridnode/config"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

// Info mirrors the ledger's StakeInfo: the staked amount and the two
// timestamps (ms since epoch) that drive weight growth and the proposal
// cooldown.
type Info struct {
	Amount        uint64
	StakeStartMs  int64
	LastBlockTime int64
}

// Registry is the address -> Info map. Not safe for concurrent use on its
// own; the ledger serializes access via its replace-mutex.
type Registry struct {
	byAddress map[types.Address]*Info
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byAddress: make(map[types.Address]*Info)}
}

// Get returns the stake info for addr, or (Info{}, false) if none registered.
func (r *Registry) Get(addr types.Address) (Info, bool) {
	info, ok := r.byAddress[addr]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Register creates or tops up a stake: amount is added, stake_start is
// set on first registration, last_block_time is reset to nowMs.
func (r *Registry) Register(addr types.Address, amount uint64, nowMs int64) {
	info, ok := r.byAddress[addr]
	if !ok {
		r.byAddress[addr] = &Info{Amount: amount, StakeStartMs: nowMs, LastBlockTime: nowMs}
		return
	}
	info.Amount += amount
	info.LastBlockTime = nowMs
}

// Unstake decrements amount from addr's stake, removing the entry once
// it reaches zero. Returns an error sentinel string identifying which
// invariant failed, matching the ledger's error taxonomy.
const (
	ErrNoStake          = "NoStake"
	ErrInsufficientStake = "InsufficientStake"
)

func (r *Registry) Unstake(addr types.Address, amount uint64) error {
	info, ok := r.byAddress[addr]
	if !ok {
		return stakeError{ErrNoStake}
	}
	if info.Amount < amount {
		return stakeError{ErrInsufficientStake}
	}
	info.Amount -= amount
	if info.Amount == 0 {
		delete(r.byAddress, addr)
	}
	return nil
}

type stakeError struct{ code string }

func (e stakeError) Error() string { return e.code }

// RecordWin advances last_block_time to nowMs after addr successfully
// proposes a block, which is how stake_weight grows over time.
func (r *Registry) RecordWin(addr types.Address, nowMs int64) {
	if info, ok := r.byAddress[addr]; ok {
		info.LastBlockTime = nowMs
	}
}

// Weight computes floor(stake_amount * 1.1^d) where
// d = floor((last_block_time - stake_start) / 86_400_000), d >= 0.
func Weight(info Info) uint64 {
	d := (info.LastBlockTime - info.StakeStartMs) / 86_400_000
	if d < 0 {
		d = 0
	}
	factor := math.Pow(1.1, float64(d))
	return uint64(math.Floor(float64(info.Amount) * factor))
}

// EligibleToPropose reports whether addr's stake has cleared both the
// minimum age and the inter-proposal cooldown as of nowMs.
func (r *Registry) EligibleToPropose(addr types.Address, nowMs int64) bool {
	info, ok := r.byAddress[addr]
	if !ok {
		return false
	}
	ageMs := nowMs - info.StakeStartMs
	if ageMs < config.MinStakeAgeSeconds*1000 {
		return false
	}
	if nowMs-info.LastBlockTime < config.StakeCheckIntervalMs {
		return false
	}
	return true
}

// TotalWeight sums Weight across every registered stake, the lottery's
// denominator.
func (r *Registry) TotalWeight() uint64 {
	var total uint64
	for _, info := range r.byAddress {
		total += Weight(*info)
	}
	return total
}

// rng abstracts math/rand so tests can force deterministic outcomes.
type rng interface {
	Float64() float64
}

// Lottery draws a uniform random number and reports whether addr wins
// this proposal attempt given the current registry weights. A nil rand
// source falls back to the package-level default.
func (r *Registry) Lottery(addr types.Address, source rng) bool {
	info, ok := r.byAddress[addr]
	if !ok {
		return false
	}
	total := r.TotalWeight()
	if total == 0 {
		return false
	}
	probability := float64(Weight(*info)) / float64(total)
	if source == nil {
		source = rand.New(rand.NewSource(rand.Int63()))
	}
	return source.Float64() <= probability
}

// AlwaysWins is a test-mode rng that deterministically returns a win.
type AlwaysWins struct{}

func (AlwaysWins) Float64() float64 { return 0 }
