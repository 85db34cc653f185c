package xp

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestRequiredForLevelMatchesCurve(t *testing.T) {
	expected := map[int]int64{-1: 0, 0: 0, 1: 10, 2: 25, 3: 45, 10: 325}
	for level, want := range expected {
		if got := RequiredForLevel(level); got != want {
			t.Fatalf("level %d: expected %d, got %d", level, want, got)
		}
	}
}

func TestProgressAtThresholds(t *testing.T) {
	progress := Progress(25)
	if progress.Level != 2 {
		t.Fatalf("expected level 2, got %d", progress.Level)
	}
	if progress.XPIntoLevel() != 0 || progress.XPToNext() != 20 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	progress = Progress(-40)
	if progress.Level != 0 || progress.TotalXP != 0 || progress.NextThreshold != 10 {
		t.Fatalf("expected negative totals to clamp, got %+v", progress)
	}
}

func TestProgressStaysWithinThresholdsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int64Range(0, 5_000_000).Draw(t, "total")
		progress := Progress(total)
		if progress.CurrentThreshold > total || total >= progress.NextThreshold {
			t.Fatalf("total %d outside [%d, %d)", total, progress.CurrentThreshold, progress.NextThreshold)
		}
		if progress.XPIntoLevel()+progress.XPToNext() != progress.NextThreshold-progress.CurrentThreshold {
			t.Fatalf("progress parts do not add up: %+v", progress)
		}
	})
}

func TestProgressAtRangeBounds(t *testing.T) {
	progress := Progress(0)
	if progress.Level != 0 || progress.CurrentThreshold != 0 || progress.NextThreshold != 10 {
		t.Fatalf("unexpected progress at zero: %+v", progress)
	}

	progress = Progress(math.MaxInt64)
	if progress.Level <= 0 {
		t.Fatalf("expected a positive level, got %+v", progress)
	}
	if progress.CurrentThreshold == math.MaxInt64 || progress.CurrentThreshold != RequiredForLevel(progress.Level) {
		t.Fatalf("current threshold must be a real threshold, got %+v", progress)
	}
	if progress.NextThreshold != math.MaxInt64 || progress.XPToNext() != 0 {
		t.Fatalf("expected the next threshold to saturate, got %+v", progress)
	}
}

func TestRequiredForLevelSaturates(t *testing.T) {
	if got := RequiredForLevel(math.MaxInt); got != math.MaxInt64 {
		t.Fatalf("expected saturation, got %d", got)
	}
	if got := RequiredForLevel(3_000_000_000); got != math.MaxInt64 {
		t.Fatalf("expected saturation past the int64 range, got %d", got)
	}
	if got := RequiredForLevel(1_000_000_000); got != 2_500_000_007_500_000_000 {
		t.Fatalf("unexpected large threshold %d", got)
	}
}

func TestProgressMatchesCurveOverFullRangeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int64Range(0, math.MaxInt64).Draw(t, "total")
		progress := Progress(total)
		if progress.CurrentThreshold > total {
			t.Fatalf("total %d below current threshold %d", total, progress.CurrentThreshold)
		}
		if total >= progress.NextThreshold && progress.NextThreshold != math.MaxInt64 {
			t.Fatalf("total %d reaches next threshold %d", total, progress.NextThreshold)
		}
		if progress.Level > 0 && RequiredForLevel(progress.Level-1) >= progress.CurrentThreshold {
			t.Fatalf("thresholds must increase: %+v", progress)
		}
	})
}

func TestAddScoreSaturates(t *testing.T) {
	cases := []struct {
		name     string
		score    int64
		amount   int64
		expected int64
	}{
		{name: "plain", score: 10, amount: 5, expected: 15},
		{name: "negative delta", score: 8, amount: -5, expected: 3},
		{name: "clamps at zero", score: 3, amount: -10, expected: 0},
		{name: "saturates at max", score: math.MaxInt64, amount: 1, expected: math.MaxInt64},
		{name: "max plus max", score: math.MaxInt64, amount: math.MaxInt64, expected: math.MaxInt64},
		{name: "negative legacy score", score: -5, amount: math.MinInt64, expected: 0},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := AddScore(testCase.score, testCase.amount); got != testCase.expected {
				t.Fatalf("AddScore(%d, %d) = %d, expected %d", testCase.score, testCase.amount, got, testCase.expected)
			}
		})
	}
}
