// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Carrier phase (accumulated delta range) residuals for cycle slip diagnosis.

package rawpvt

import (
	"fmt"
	"math"
)

// Residuals of one epoch
type AdrResidualEpoch struct {
	FctSeconds float64
	RefSvid    int
	ResidM     []float64 // Single difference residual per column [m]. NaN when unknown.
}

// Carrier residuals of a run. Empty when no satellite has usable ADR.
type AdrResiduals struct {
	Svid           []int // Column order of every per-satellite slice
	RefSvid        int
	Epochs         []AdrResidualEpoch
	DelPrMinusAdrM [][]float64 // [epoch][column]
}

// Empty reports whether the run had no carrier phase data
func (r *AdrResiduals) Empty() bool {
	return len(r.Epochs) == 0
}

// AdrEngine computes carrier residuals against a known receiver position
type AdrEngine struct {
	nav    *Nav
	refLla PosLLH
	ref    PosXYZ
}

// NewAdrEngine creates an engine for the reference position refLla
func NewAdrEngine(nav *Nav, refLla *PosLLH) (*AdrEngine, error) {
	if refLla == nil {
		return nil, ErrNoReferencePosition
	}
	if nav == nil {
		return nil, fmt.Errorf("%w: no navigation data", ErrInputShape)
	}
	return &AdrEngine{nav: nav, refLla: *refLla, ref: refLla.ToXYZ()}, nil
}

// Usable ADR sample
func adrOK(st AdrState, adr float64) bool {
	return st.IsValid() && isFinite(adr) && adr != 0
}

// HasAdr reports whether any column carries a valid non-zero ADR
func HasAdr(meas *Meas) bool {
	for _, ep := range meas.Epochs {
		for j, adr := range ep.AdrM {
			if adrOK(ep.AdrState[j], adr) {
				return true
			}
		}
	}
	return false
}

// ReferenceSatellite returns the column with the most ADR-valid epochs.
// Ties go to the lowest column. ok is false when no column is ever valid.
func ReferenceSatellite(meas *Meas) (col int, ok bool) {
	counts := make([]int, meas.Sats.Len())
	for _, ep := range meas.Epochs {
		for j, st := range ep.AdrState {
			if st.IsValid() {
				counts[j]++
			}
		}
	}
	best := 0
	col = -1
	for j, n := range counts {
		if n > best {
			best = n
			col = j
		}
	}
	return col, col >= 0
}

// ExpectedPseudoranges predicts the pseudorange of every epoch and column at the
// reference position: geometric range after the earth rotation correction minus the
// satellite clock. NaN where there is no pseudorange or no ephemeris.
func (a *AdrEngine) ExpectedPseudoranges(meas *Meas) [][]float64 {
	out := make([][]float64, len(meas.Epochs))
	for i, ep := range meas.Epochs {
		row := make([]float64, meas.Sats.Len())
		for j := range row {
			row[j] = math.NaN()
			if !isFinite(ep.PrM[j]) || !isFinite(ep.TRxSeconds[j]) {
				continue
			}
			eph, err := a.nav.ClosestEphe(meas.Sats.Svids[j], ep.FctSeconds)
			if err != nil {
				continue
			}
			st := satAtReception(eph, ep.RxWeek[j], ep.TRxSeconds[j], ep.PrM[j])
			row[j] = a.expectedRange(st.Pos) - C*st.Clk
		}
		out[i] = row
	}
	return out
}

// Geometric range from the reference position, flight time iterated twice
func (a *AdrEngine) expectedRange(sv PosXYZ) float64 {
	r := a.ref.Sub(sv).Norm()
	for k := 0; k < 2; k++ {
		r = a.ref.Sub(FlightTimeCorrection(sv, r/C)).Norm()
	}
	return r
}

// SingleDifferences computes the carrier residual of every column against the
// reference column ref:
//
//	[(ADR_j(i) - ADR_ref(i)) - (ADR_j(i0) - ADR_ref(i0))]
//	  - [(prHat_j(i) - prHat_ref(i)) - (prHat_j(i0) - prHat_ref(i0))]
//
// i0 is the common start: the first epoch where both columns have usable ADR and a
// finite prHat. It is unset when either loses them and restarts on an ADR reset or
// cycle slip flag. The reference column itself is NaN.
func SingleDifferences(meas *Meas, ref int, prHat [][]float64) ([]AdrResidualEpoch, error) {
	if len(prHat) != len(meas.Epochs) {
		return nil, fmt.Errorf("%w: %d epochs, %d predictions", ErrInputShape, len(meas.Epochs), len(prHat))
	}
	n := meas.Sats.Len()
	if ref < 0 || ref >= n {
		return nil, fmt.Errorf("%w: reference column %d of %d", ErrInputShape, ref, n)
	}
	refSvid := meas.Sats.Svids[ref]
	i0 := make([]int, n)
	for j := range i0 {
		i0[j] = -1
	}
	out := make([]AdrResidualEpoch, len(meas.Epochs))
	for i, ep := range meas.Epochs {
		if len(prHat[i]) != n {
			return nil, fmt.Errorf("%w: %d predictions at epoch %d", ErrInputShape, len(prHat[i]), i)
		}
		res := make([]float64, n)
		refOK := adrOK(ep.AdrState[ref], ep.AdrM[ref]) && isFinite(prHat[i][ref])
		refRestart := ep.AdrState[ref].IsReset() || ep.AdrState[ref].HasCycleSlip()
		for j := range res {
			res[j] = math.NaN()
			if j == ref {
				continue
			}
			if !refOK || !adrOK(ep.AdrState[j], ep.AdrM[j]) || !isFinite(prHat[i][j]) {
				i0[j] = -1
				continue
			}
			if i0[j] < 0 || refRestart || ep.AdrState[j].IsReset() || ep.AdrState[j].HasCycleSlip() {
				i0[j] = i
			}
			e0 := meas.Epochs[i0[j]]
			p0 := prHat[i0[j]]
			dAdr := (ep.AdrM[j] - ep.AdrM[ref]) - (e0.AdrM[j] - e0.AdrM[ref])
			dPr := (prHat[i][j] - prHat[i][ref]) - (p0[j] - p0[ref])
			res[j] = dAdr - dPr
		}
		out[i] = AdrResidualEpoch{FctSeconds: ep.FctSeconds, RefSvid: refSvid, ResidM: res}
	}
	return out, nil
}

// Continuity state of one column
type adrTrack struct {
	delPr0    float64 // DelPrM - ADR at the last re-initialisation [m]
	lastIdx   int
	clkDCount int
	set       bool
}

// DelPrMinusAdr tracks DelPrM(i) - DelPrM0 - ADR(i) per column, with DelPrM0 chosen so
// the value starts at zero. It re-initialises when the ADR is invalid, reset, zero or not
// finite, and when DelPrM itself restarts after a gap or a clock discontinuity.
func DelPrMinusAdr(meas *Meas) [][]float64 {
	trk := make([]adrTrack, meas.Sats.Len())
	out := make([][]float64, len(meas.Epochs))
	for i, ep := range meas.Epochs {
		row := make([]float64, meas.Sats.Len())
		for j := range row {
			row[j] = math.NaN()
			t := &trk[j]
			adr := ep.AdrM[j]
			st := ep.AdrState[j]
			if !adrOK(st, adr) || st.IsReset() || !isFinite(ep.DelPrM[j]) {
				t.set = false
				continue
			}
			if !t.set || t.lastIdx != i-1 || t.clkDCount != ep.ClkDCount {
				t.delPr0 = ep.DelPrM[j] - adr
				t.set = true
			}
			row[j] = ep.DelPrM[j] - t.delPr0 - adr
			t.lastIdx = i
			t.clkDCount = ep.ClkDCount
		}
		out[i] = row
	}
	return out
}

// Process computes the carrier residuals of a run
func (a *AdrEngine) Process(meas *Meas) (*AdrResiduals, error) {
	res := &AdrResiduals{Svid: meas.Sats.Svids}
	if !HasAdr(meas) {
		return res, nil
	}
	ref, ok := ReferenceSatellite(meas)
	if !ok {
		return res, nil
	}
	res.RefSvid = meas.Sats.Svids[ref]
	PrintD(2, "ADR reference satellite: G%02d\n", res.RefSvid)

	prHat := a.ExpectedPseudoranges(meas)
	eps, err := SingleDifferences(meas, ref, prHat)
	if err != nil {
		return nil, err
	}
	res.Epochs = eps
	res.DelPrMinusAdrM = DelPrMinusAdr(meas)
	return res, nil
}
