// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package rawpvt

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Time-tagged reference position
type RefPoint struct {
	FctSeconds float64
	Pos        PosXYZ
}

// RefTrajectory gives the true receiver position for comparison with PVT output.
// A single point is stationary. A series is interpolated linearly between the two
// points straddling the query time and has no value outside the series.
type RefTrajectory struct {
	pts []RefPoint
}

// NewStationaryRef is a reference that never moves
func NewStationaryRef(llh PosLLH) *RefTrajectory {
	return &RefTrajectory{pts: []RefPoint{{Pos: llh.ToXYZ()}}}
}

// NewRefTrajectory creates a reference from points in any order
func NewRefTrajectory(pts []RefPoint) (*RefTrajectory, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("%w: empty reference trajectory", ErrInputShape)
	}
	v := make([]RefPoint, len(pts))
	copy(v, pts)
	sort.SliceStable(v, func(i, j int) bool { return v[i].FctSeconds < v[j].FctSeconds })
	return &RefTrajectory{pts: v}, nil
}

// At returns the reference position at fct
func (r *RefTrajectory) At(fct float64) (PosXYZ, bool) {
	if len(r.pts) == 1 {
		return r.pts[0].Pos, true
	}
	k := sort.Search(len(r.pts), func(i int) bool { return r.pts[i].FctSeconds >= fct })
	if k == len(r.pts) {
		return PosXYZ{}, false
	}
	if r.pts[k].FctSeconds == fct {
		return r.pts[k].Pos, true
	}
	if k == 0 {
		return PosXYZ{}, false
	}
	a, b := r.pts[k-1], r.pts[k]
	f := (fct - a.FctSeconds) / (b.FctSeconds - a.FctSeconds)
	d := b.Pos.Sub(a.Pos)
	return a.Pos.Add(PosXYZ{d.X * f, d.Y * f, d.Z * f}), true
}

// PositionErrorsNed returns the NED error of each solution against the reference.
// NaN when the epoch has no solution or the reference has no value.
func PositionErrorsNed(pvt []PvtEstimate, ref *RefTrajectory) []PosNED {
	out := make([]PosNED, len(pvt))
	for i, e := range pvt {
		out[i] = NaNNED()
		if !e.Valid {
			continue
		}
		p, ok := ref.At(e.FctSeconds)
		if !ok {
			continue
		}
		out[i] = e.Xyz.Sub(p).ToNED(p.ToLLH())
	}
	return out
}

// Summary of the position errors of a run against a reference
type RefErrorStats struct {
	Epochs         int     `json:"epochs"` // Epochs with a known error
	HorizontalRmsM float64 `json:"horizontal_rms_m"`
	VerticalRmsM   float64 `json:"vertical_rms_m"`
	MaxHorizontalM float64 `json:"max_horizontal_m"`
}

// SummarizeErrors reduces NED errors to RMS values. NaN entries are skipped.
// The values are NaN when no epoch has an error.
func SummarizeErrors(errs []PosNED) RefErrorStats {
	var h, v []float64
	for _, e := range errs {
		if math.IsNaN(e.N) || math.IsNaN(e.E) || math.IsNaN(e.D) {
			continue
		}
		h = append(h, e.Horizontal())
		v = append(v, e.D)
	}
	st := RefErrorStats{Epochs: len(h)}
	if len(h) == 0 {
		nan := math.NaN()
		st.HorizontalRmsM, st.VerticalRmsM, st.MaxHorizontalM = nan, nan, nan
		return st
	}
	n := float64(len(h))
	st.HorizontalRmsM = math.Sqrt(floats.Dot(h, h) / n)
	st.VerticalRmsM = math.Sqrt(floats.Dot(v, v) / n)
	st.MaxHorizontalM = floats.Max(h)
	return st
}
