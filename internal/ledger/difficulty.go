package ledger

import "github.com/klingon-tech/hybridnode/config"

// CalcNextDifficulty retargets prevDifficulty given how long the last
// DIFFICULTY_ADJUSTMENT_INTERVAL blocks actually took versus how long they
// were expected to take (both in milliseconds). Ported from the teacher's
// consensus.CalcNextDifficulty, adapted from a numeric 256-bit target to
// spec.md's "leading hex zero nibbles" difficulty unit: one nibble up or
// down per retarget, clamped, floor of 1, per spec.md §4.1.3.
func CalcNextDifficulty(prevDifficulty uint8, actualMs, expectedMs int64) uint8 {
	if actualMs <= 0 {
		actualMs = 1
	}
	factor := config.DifficultyAdjustmentFactor

	switch {
	case actualMs < expectedMs/factor:
		return prevDifficulty + 1
	case actualMs > expectedMs*factor:
		if prevDifficulty <= 1 {
			return 1
		}
		return prevDifficulty - 1
	default:
		return prevDifficulty
	}
}

// ExpectedDifficulty computes the difficulty a block at `height` must
// carry. `timestamps` and `difficulties` hold every prior block's
// recorded values, indexed by height (chain[0..height-1]). Chains shorter
// than the adjustment interval always use the genesis difficulty; at
// non-boundary heights the previous block's difficulty carries forward
// unchanged; at a boundary, CalcNextDifficulty retargets from the
// interval's elapsed time.
//
// Both append_mined_block and is_chain_valid call this same function, so
// the two paths can never disagree on what difficulty a given height
// requires (spec.md §9, resolving the retarget-cadence open question).
func ExpectedDifficulty(height uint32, timestamps []uint64, difficulties []uint8) uint8 {
	if height == 0 || height < config.DifficultyAdjustmentInterval {
		return config.GenesisDifficulty
	}

	prev := difficulties[height-1]
	if height%config.DifficultyAdjustmentInterval != 0 {
		return prev
	}

	start := timestamps[height-config.DifficultyAdjustmentInterval]
	end := timestamps[height-1]
	actual := int64(end) - int64(start)
	expected := int64(config.DifficultyAdjustmentInterval) * config.BlockTimeSeconds * 1000

	return CalcNextDifficulty(prev, actual, expected)
}
