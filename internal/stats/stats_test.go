package stats

import (
	"math"
	"testing"
)

func TestAccumulatorEmpty(t *testing.T) {
	var a Accumulator
	if a.Count() != 0 || a.Mean() != 0 || a.StdDev() != 0 {
		t.Fatalf("zero value not zero: %+v", a.Sample())
	}
}

func TestAccumulatorSingleValue(t *testing.T) {
	var a Accumulator
	a.Add(5)
	if a.Mean() != 5 {
		t.Errorf("mean = %v, want 5", a.Mean())
	}
	if a.StdDev() != 0 {
		t.Errorf("stddev of one value = %v, want 0", a.StdDev())
	}
}

func TestAccumulatorKnownSeries(t *testing.T) {
	var a Accumulator
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		a.Add(v)
	}
	if a.Count() != 8 {
		t.Fatalf("count = %d", a.Count())
	}
	if a.Mean() != 5 {
		t.Errorf("mean = %v, want 5", a.Mean())
	}
	// Population stddev of the classic series is exactly 2.
	if math.Abs(a.StdDev()-2) > 1e-12 {
		t.Errorf("stddev = %v, want 2", a.StdDev())
	}
}

func TestAccumulatorNumericalStability(t *testing.T) {
	// Large offset with tiny variance breaks the naive sum-of-squares form.
	var a Accumulator
	for _, v := range []float64{1e9 + 4, 1e9 + 7, 1e9 + 13, 1e9 + 16} {
		a.Add(v)
	}
	if math.Abs(a.Mean()-(1e9+10)) > 1e-6 {
		t.Errorf("mean = %v", a.Mean())
	}
	want := math.Sqrt(22.5) // population variance of {4,7,13,16}
	if math.Abs(a.StdDev()-want) > 1e-6 {
		t.Errorf("stddev = %v, want %v", a.StdDev(), want)
	}
}

func TestHandRecordCut(t *testing.T) {
	var h Hand
	h.RecordCut(20, 0.1, 5, 0.01, true)
	h.RecordCut(30, 0.3, 7, 0.03, false)

	s := h.Sample()
	if s.Cuts != 2 || s.CorrectCuts != 1 {
		t.Fatalf("cuts = %d/%d, want 2/1", s.Cuts, s.CorrectCuts)
	}
	if s.Speed.Mean != 25 {
		t.Errorf("speed mean = %v, want 25", s.Speed.Mean)
	}
	if math.Abs(s.Distance.Mean-0.2) > 1e-12 {
		t.Errorf("distance mean = %v, want 0.2", s.Distance.Mean)
	}
	if s.DirDeviation.Count != 2 || s.TimeDeviation.Count != 2 {
		t.Error("deviation accumulators not fed")
	}
}
