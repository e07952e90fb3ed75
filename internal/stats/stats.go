// Package stats provides running per-hand swing statistics.
package stats

import "math"

// Accumulator keeps running count/mean/spread over a sample stream
// (Welford's method, single pass).
type Accumulator struct {
	n    int
	mean float64
	m2   float64
}

// Add feeds one sample.
func (a *Accumulator) Add(x float64) {
	a.n++
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

func (a *Accumulator) Count() int { return a.n }

func (a *Accumulator) Mean() float64 {
	if a.n == 0 {
		return 0
	}
	return a.mean
}

// StdDev is the population standard deviation; 0 for fewer than two samples.
func (a *Accumulator) StdDev() float64 {
	if a.n < 2 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.n))
}

// Sample is a frozen accumulator view.
type Sample struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

func (a *Accumulator) Sample() Sample {
	return Sample{Count: a.n, Mean: a.Mean(), StdDev: a.StdDev()}
}

// Hand accumulates cut quality for one saber.
type Hand struct {
	Speed         Accumulator
	Distance      Accumulator
	DirDeviation  Accumulator
	TimeDeviation Accumulator
	Cuts          int
	CorrectCuts   int
}

// RecordCut feeds one fully-cut note. correctHand marks a cut made with
// the expected saber.
func (h *Hand) RecordCut(speed, distance, dirDev, timeDev float64, correctHand bool) {
	h.Speed.Add(speed)
	h.Distance.Add(distance)
	h.DirDeviation.Add(dirDev)
	h.TimeDeviation.Add(timeDev)
	h.Cuts++
	if correctHand {
		h.CorrectCuts++
	}
}

// HandSample is a frozen Hand view, persisted with the final result.
type HandSample struct {
	Cuts          int    `json:"cuts"`
	CorrectCuts   int    `json:"correct_cuts"`
	Speed         Sample `json:"speed"`
	Distance      Sample `json:"distance_to_center"`
	DirDeviation  Sample `json:"dir_deviation"`
	TimeDeviation Sample `json:"time_deviation"`
}

func (h *Hand) Sample() HandSample {
	return HandSample{
		Cuts:          h.Cuts,
		CorrectCuts:   h.CorrectCuts,
		Speed:         h.Speed.Sample(),
		Distance:      h.Distance.Sample(),
		DirDeviation:  h.DirDeviation.Sample(),
		TimeDeviation: h.TimeDeviation.Sample(),
	}
}
