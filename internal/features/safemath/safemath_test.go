package safemath

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDivideZeroDenominator(t *testing.T) {
	cases := []struct {
		name string
		num  float64
	}{
		{"positive", 5},
		{"negative", -3},
		{"zero", 0},
		{"large", 1e12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Divide(tc.num, 0, 0, 1e6, 1e-10)
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Fatalf("Divide(%v, 0) = %v, want finite", tc.num, got)
			}
		})
	}
}

func TestDivideSignPreservedOnFloor(t *testing.T) {
	pos := Divide(1, 1e-15, 0, 1e6, 1e-10)
	neg := Divide(1, -1e-15, 0, 1e6, 1e-10)
	if pos <= 0 {
		t.Fatalf("expected positive result for tiny positive denominator, got %v", pos)
	}
	if neg >= 0 {
		t.Fatalf("expected negative result for tiny negative denominator, got %v", neg)
	}
}

func TestDivideClips(t *testing.T) {
	if got := Divide(1e9, 1, 0, 100, 1e-10); got != 100 {
		t.Fatalf("expected clip to 100, got %v", got)
	}
	if got := Divide(-1e9, 1, 0, 100, 1e-10); got != -100 {
		t.Fatalf("expected clip to -100, got %v", got)
	}
}

func TestDivideFillOnNonFinite(t *testing.T) {
	if got := Divide(math.NaN(), 1, 7, 1e6, 1e-10); got != 7 {
		t.Fatalf("expected fill 7 for NaN numerator, got %v", got)
	}
	if got := Divide(math.Inf(1), 0, -1, 1e6, 1e-10); got != -1 {
		t.Fatalf("expected fill -1 for inf numerator, got %v", got)
	}
}

func TestDivideNeverNonFinite(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("result is finite and within bounds for finite input", prop.ForAll(
		func(num, den float64) bool {
			r := Divide(num, den, 0, 1e6, 1e-10)
			return IsFinite(r) && r >= -1e6 && r <= 1e6
		},
		gen.Float64Range(-1e15, 1e15),
		gen.Float64Range(-1e15, 1e15),
	))

	properties.Property("zero denominator returns fill for zero numerator", prop.ForAll(
		func(fill float64) bool {
			return Divide(0, 0, fill, 1e6, 1e-10) == 0
		},
		gen.Float64Range(-1e3, 1e3),
	))

	properties.TestingRun(t)
}

func TestClip(t *testing.T) {
	if got := Clip(5, -1, 1); got != 1 {
		t.Fatalf("Clip(5,-1,1) = %v", got)
	}
	if got := Clip(-5, -1, 1); got != -1 {
		t.Fatalf("Clip(-5,-1,1) = %v", got)
	}
	if got := Clip(0.5, -1, 1); got != 0.5 {
		t.Fatalf("Clip(0.5,-1,1) = %v", got)
	}
}

func TestReplaceNonFinite(t *testing.T) {
	if got := ReplaceNonFinite(math.Inf(-1), 2); got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
	if got := ReplaceNonFinite(3, 2); got != 3 {
		t.Fatalf("expected passthrough 3, got %v", got)
	}
}
