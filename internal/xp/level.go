// Package xp computes level progression from cumulative experience points.
package xp

import (
	"math"
	"math/bits"
)

// LevelProgress describes where a total XP amount sits on the level curve.
type LevelProgress struct {
	Level            int
	TotalXP          int64
	CurrentThreshold int64
	NextThreshold    int64
}

// RequiredForLevel returns the cumulative XP needed to reach level. Level zero and
// below need nothing; levels 1, 2 and 3 need 10, 25 and 45. Thresholds beyond the
// int64 range saturate at math.MaxInt64.
func RequiredForLevel(level int) int64 {
	if level <= 0 {
		return 0
	}
	l := uint64(level)
	hi, lo := bits.Mul64(l, l+3)
	if hi != 0 {
		return math.MaxInt64
	}
	// l*(l+3) is always even.
	half := lo / 2
	if half > math.MaxInt64/5 {
		return math.MaxInt64
	}
	return int64(5 * half)
}

// Progress places total on the curve. Negative totals count as zero. At the top
// of the int64 range NextThreshold saturates at math.MaxInt64.
func Progress(total int64) LevelProgress {
	safeTotal := max(total, 0)
	level := estimateLevel(safeTotal)
	for level > 0 {
		current := RequiredForLevel(level)
		if current <= safeTotal && current != math.MaxInt64 {
			break
		}
		level--
	}
	for {
		next := RequiredForLevel(level + 1)
		if next > safeTotal || next == math.MaxInt64 {
			break
		}
		level++
	}
	return LevelProgress{
		Level:            level,
		TotalXP:          safeTotal,
		CurrentThreshold: RequiredForLevel(level),
		NextThreshold:    RequiredForLevel(level + 1),
	}
}

// estimateLevel inverts 5*l*(l+3)/2 = total in floating point. The result is
// off by at most a few levels and is corrected by Progress.
func estimateLevel(total int64) int {
	estimate := (math.Sqrt(9+1.6*float64(total)) - 3) / 2
	if estimate <= 0 {
		return 0
	}
	return int(estimate)
}

// XPToNext is the XP still missing for the next level.
func (p LevelProgress) XPToNext() int64 {
	return max(p.NextThreshold-p.TotalXP, 0)
}

// XPIntoLevel is the XP earned since reaching the current level.
func (p LevelProgress) XPIntoLevel() int64 {
	return max(p.TotalXP-p.CurrentThreshold, 0)
}

// AddScore adds amount to score, saturating at math.MaxInt64 and never dropping
// below zero.
func AddScore(score, amount int64) int64 {
	if amount > 0 && score > math.MaxInt64-amount {
		return math.MaxInt64
	}
	if amount < 0 && score < math.MinInt64-amount {
		return 0
	}
	return max(score+amount, 0)
}
