// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.14
//

// Converts raw measurement events into epoch and satellite aligned observations.

package rawpvt

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AlignOpt contains the quality gates and grouping window of the aligner
type AlignOpt struct {
	TowUncNanosMax  float64 `yaml:"tow_unc_nanos_max"` // Maximum ReceivedSvTimeUncertaintyNanos [ns]
	PrrUncMpsMax    float64 `yaml:"prr_unc_mps_max"`   // Maximum pseudorange rate uncertainty [m/s]
	EpochGroupNanos int64   `yaml:"epoch_group_nanos"` // Events closer than this belong to one epoch [ns]
	MaxPrBiasSec    float64 `yaml:"max_pr_bias_sec"`   // Largest pseudorange accepted after a rollover fix [s]
}

// NewAlignOpt creates a new AlignOpt with default values
func NewAlignOpt() *AlignOpt {
	return &AlignOpt{
		TowUncNanosMax:  TOW_UNC_NANOS_MAX,
		PrrUncMpsMax:    PRR_UNC_MPS_MAX,
		EpochGroupNanos: EPOCH_GROUP_NANOS,
		MaxPrBiasSec:    MAX_PR_BIAS_SEC,
	}
}

// Counts of events removed before alignment
type FilterStats struct {
	Total          int `json:"total"`
	TowUncertainty int `json:"tow_uncertainty"`
	PrrUncertainty int `json:"prr_uncertainty"`
	NotTracking    int `json:"not_tracking"` // No code lock or TOW not decoded
	NoFullBias     int `json:"no_full_bias"`
	Kept           int `json:"kept"`
}

// FilterRaw applies the quality gates.
// The first event passing the uncertainty gates must have code lock and a decoded TOW,
// since the GPS week is derived from it. Events without them are dropped afterwards.
func FilterRaw(obs []RawObservation, opt *AlignOpt) ([]RawObservation, FilterStats, error) {
	if opt == nil {
		opt = NewAlignOpt()
	}
	st := FilterStats{Total: len(obs)}
	kept := make([]RawObservation, 0, len(obs))
	first := true
	for _, o := range obs {
		if o.ReceivedSvTimeUncertaintyNanos > opt.TowUncNanosMax {
			st.TowUncertainty++
			continue
		}
		if o.PseudorangeRateUncertaintyMetersPerSecond > opt.PrrUncMpsMax {
			st.PrrUncertainty++
			continue
		}
		if first {
			if !o.State.HasCodeLock() || !o.State.HasTowDecoded() {
				return nil, st, fmt.Errorf("%w: first event of G%02d has State=%#x", ErrClockNotReady, o.Svid, int(o.State))
			}
			first = false
		}
		if !o.State.HasCodeLock() || !o.State.HasTowDecoded() {
			st.NotTracking++
			continue
		}
		if o.FullBiasNanos == 0 {
			st.NoFullBias++
			continue
		}
		kept = append(kept, o)
	}
	st.Kept = len(kept)
	if len(kept) == 0 {
		return nil, st, fmt.Errorf("%w: %d events", ErrAllFiltered, st.Total)
	}
	return kept, st, nil
}

// SatIndex is the stable ordered mapping from svid to column for one run
type SatIndex struct {
	Svids []int
	col   map[int]int
}

// NewSatIndex builds the index from svids in ascending order. Duplicates are merged.
func NewSatIndex(svids []int) *SatIndex {
	m := map[int]int{}
	for _, s := range svids {
		m[s] = 0
	}
	keys := maps.Keys(m)
	slices.Sort(keys)
	for i, s := range keys {
		m[s] = i
	}
	return &SatIndex{Svids: keys, col: m}
}

// Col returns the column of svid
func (s *SatIndex) Col(svid int) (int, bool) {
	i, ok := s.col[svid]
	return i, ok
}

func (s *SatIndex) Len() int {
	return len(s.Svids)
}

// EpochObs is the aligned observation set of one epoch.
// Every slice is positional against the run's SatIndex. Missing values are NaN.
type EpochObs struct {
	FctSeconds  float64 // Full cycle time of the epoch [s]
	Week        int     // GPS week of the epoch
	ClkDCount   int     // HardwareClockDiscontinuityCount
	RxWeek      []int   // Week of TRxSeconds after rollover fixes
	TRxSeconds  []float64
	TTxSeconds  []float64
	PrM         []float64
	PrSigmaM    []float64
	PrrMps      []float64
	PrrSigmaMps []float64
	AdrM        []float64
	AdrSigmaM   []float64
	AdrState    []AdrState
	Cn0DbHz     []float64
	DelPrM      []float64
	Err         error // Epoch-local failure. The epoch is not solved.
}

func newEpochObs(n int) *EpochObs {
	nan := func() []float64 {
		v := make([]float64, n)
		for i := range v {
			v[i] = math.NaN()
		}
		return v
	}
	return &EpochObs{
		RxWeek:      make([]int, n),
		TRxSeconds:  nan(),
		TTxSeconds:  nan(),
		PrM:         nan(),
		PrSigmaM:    nan(),
		PrrMps:      nan(),
		PrrSigmaMps: nan(),
		AdrM:        nan(),
		AdrSigmaM:   nan(),
		AdrState:    make([]AdrState, n),
		Cn0DbHz:     nan(),
		DelPrM:      nan(),
	}
}

// NumPr returns the number of satellites with a finite pseudorange
func (e *EpochObs) NumPr() int {
	n := 0
	for _, pr := range e.PrM {
		if !math.IsNaN(pr) {
			n++
		}
	}
	return n
}

// Aligned measurements of a run
type Meas struct {
	Sats   *SatIndex
	Epochs []*EpochObs
	Stats  AlignStats
}

// Statistics of the alignment
type AlignStats struct {
	Clock          ClockCheck  `json:"clock"`
	Filter         FilterStats `json:"filter"`
	Duplicates     int         `json:"duplicates"`
	RolloverFixed  int         `json:"rollover_fixed"`
	RolloverFailed int         `json:"rollover_failed"`
}

// Per-event values computed before grouping
type rowTime struct {
	obs      *RawObservation
	allNanos int64 // Receiver GPS time since the GPS epoch [ns]
	week     int
	tRx      float64 // [s of week]
	tTx      float64 // [s of week]
	prSec    float64
	err      error
}

// ProcessRaw checks, filters and aligns a raw log.
func ProcessRaw(l *RawLog, opt *AlignOpt) (*Meas, error) {
	if opt == nil {
		opt = NewAlignOpt()
	}
	chk, err := CheckClock(l)
	if err != nil {
		return nil, err
	}
	obs, fst, err := FilterRaw(l.Obs, opt)
	if err != nil {
		return nil, err
	}
	meas := &Meas{Stats: AlignStats{Clock: chk, Filter: fst}}

	// Full bias of the first event
	fb0 := obs[0].FullBiasNanos

	rows := make([]rowTime, len(obs))
	svids := make([]int, 0, len(obs))
	for i := range obs {
		o := &obs[i]
		r := rowTime{obs: o, allNanos: o.TimeNanos - o.FullBiasNanos}
		r.week = int(math.Floor(-float64(o.FullBiasNanos) * 1e-9 / WEEKSEC))
		weekNanos := int64(r.week) * WEEKNANOS
		// Integer nanoseconds first, the row's own sub-nanosecond corrections after
		tRxNanos := o.TimeNanos - fb0 - weekNanos
		r.tRx = (float64(tRxNanos) - o.TimeOffsetNanos - o.BiasNanos) * 1e-9
		r.tTx = float64(o.ReceivedSvTimeNanos) * 1e-9

		pr, del := CheckWeekRollover(r.tRx - r.tTx)
		if del != 0 {
			r.tRx -= del
			r.week += int(math.Round(del / WEEKSEC))
			meas.Stats.RolloverFixed++
			PrintD(2, "G%02d: week rollover fixed by %.0fs\n", o.Svid, del)
		}
		r.prSec = pr
		if math.Abs(pr) > opt.MaxPrBiasSec {
			r.err = fmt.Errorf("%w: G%02d pseudorange %.3fs", ErrWeekRollover, o.Svid, pr)
			meas.Stats.RolloverFailed++
		}
		rows[i] = r
		svids = append(svids, o.Svid)
	}
	meas.Sats = NewSatIndex(svids)

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].allNanos < rows[j].allNanos })

	// Group into epochs
	var cur *EpochObs
	var start int64
	for _, r := range rows {
		if cur == nil || r.allNanos-start >= opt.EpochGroupNanos {
			cur = newEpochObs(meas.Sats.Len())
			start = r.allNanos
			cur.FctSeconds = float64(floorDiv(r.allNanos, 1000000)) * 1e-3
			cur.Week = r.week
			cur.ClkDCount = r.obs.HardwareClockDiscontinuityCount
			meas.Epochs = append(meas.Epochs, cur)
		} else if r.obs.HardwareClockDiscontinuityCount != cur.ClkDCount {
			return nil, fmt.Errorf("%w: %d and %d at fct %.3f", ErrDiscontinuity,
				cur.ClkDCount, r.obs.HardwareClockDiscontinuityCount, cur.FctSeconds)
		}
		j, _ := meas.Sats.Col(r.obs.Svid)
		if !math.IsNaN(cur.TRxSeconds[j]) {
			meas.Stats.Duplicates++
			PrintD(2, "G%02d: duplicate event at fct %.3f\n", r.obs.Svid, cur.FctSeconds)
			continue
		}
		if r.err != nil {
			if cur.Err == nil {
				cur.Err = r.err
			}
			continue
		}
		o := r.obs
		cur.RxWeek[j] = r.week
		cur.TRxSeconds[j] = r.tRx
		cur.TTxSeconds[j] = r.tTx
		cur.PrM[j] = r.prSec * C
		cur.PrSigmaM[j] = C * 1e-9 * o.ReceivedSvTimeUncertaintyNanos
		cur.PrrMps[j] = o.PseudorangeRateMetersPerSecond
		cur.PrrSigmaMps[j] = o.PseudorangeRateUncertaintyMetersPerSecond
		cur.AdrM[j] = o.AccumulatedDeltaRangeMeters
		cur.AdrSigmaM[j] = o.AccumulatedDeltaRangeUncertaintyMeters
		cur.AdrState[j] = o.AccumulatedDeltaRangeState
		cur.Cn0DbHz[j] = o.Cn0DbHz
	}

	fillDelPr(meas)
	return meas, nil
}

// Continuity state of one satellite column
type prTrack struct {
	baseline  float64 // Pseudorange at the last reset [m]
	lastIdx   int     // Last epoch with a pseudorange
	clkDCount int
	set       bool
}

// fillDelPr derives DelPrM, the pseudorange change since the last reset.
// A column resets on its first sample, after a clock discontinuity and after a tracking gap.
func fillDelPr(meas *Meas) {
	trk := make([]prTrack, meas.Sats.Len())
	for i, ep := range meas.Epochs {
		for j, pr := range ep.PrM {
			if math.IsNaN(pr) {
				continue
			}
			t := &trk[j]
			if !t.set || t.clkDCount != ep.ClkDCount || t.lastIdx != i-1 {
				t.baseline = pr
				t.set = true
			}
			ep.DelPrM[j] = pr - t.baseline
			t.lastIdx = i
			t.clkDCount = ep.ClkDCount
		}
	}
}

// Integer division rounding toward negative infinity
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
