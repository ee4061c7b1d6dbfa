// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.14
//

package rawpvt

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
)

// Receiver sync state bits (State field)
type SyncState int

const (
	STATE_CODE_LOCK   SyncState = 1 << 0
	STATE_TOW_DECODED SyncState = 1 << 3
)

func (s SyncState) HasCodeLock() bool {
	return s&STATE_CODE_LOCK != 0
}

func (s SyncState) HasTowDecoded() bool {
	return s&STATE_TOW_DECODED != 0
}

// Accumulated delta range state bits
type AdrState int

const (
	ADR_STATE_VALID      AdrState = 1 << 0
	ADR_STATE_RESET      AdrState = 1 << 1
	ADR_STATE_CYCLE_SLIP AdrState = 1 << 2
)

func (s AdrState) IsValid() bool {
	return s&ADR_STATE_VALID != 0
}

func (s AdrState) IsReset() bool {
	return s&ADR_STATE_RESET != 0
}

func (s AdrState) HasCycleSlip() bool {
	return s&ADR_STATE_CYCLE_SLIP != 0
}

// One raw measurement event of a GPS satellite
type RawObservation struct {
	TimeNanos                                 int64
	TimeOffsetNanos                           float64
	FullBiasNanos                             int64
	BiasNanos                                 float64
	HardwareClockDiscontinuityCount           int
	Svid                                      int
	State                                     SyncState
	ReceivedSvTimeNanos                       int64
	ReceivedSvTimeUncertaintyNanos            float64
	PseudorangeRateMetersPerSecond            float64
	PseudorangeRateUncertaintyMetersPerSecond float64
	AccumulatedDeltaRangeState                AdrState
	AccumulatedDeltaRangeMeters               float64
	AccumulatedDeltaRangeUncertaintyMeters    float64
	Cn0DbHz                                   float64
	ConstellationType                         int
}

// Fields that must be present in a raw log
var RequiredRawFields = []string{
	"TimeNanos",
	"FullBiasNanos",
	"Svid",
	"State",
	"ReceivedSvTimeNanos",
	"ReceivedSvTimeUncertaintyNanos",
}

// Fields that default when missing. Clock fields default to 0, measurements to NaN.
var OptionalRawFields = []string{
	"BiasNanos",
	"TimeOffsetNanos",
	"HardwareClockDiscontinuityCount",
	"PseudorangeRateMetersPerSecond",
	"PseudorangeRateUncertaintyMetersPerSecond",
	"AccumulatedDeltaRangeState",
	"AccumulatedDeltaRangeMeters",
	"AccumulatedDeltaRangeUncertaintyMeters",
	"Cn0DbHz",
}

// Tokenized raw measurement table
type RawLog struct {
	Fields []string // Column names present in the source. nil means every field is present.
	Obs    []RawObservation
}

// Has reports whether the source carried the named column
func (l *RawLog) Has(field string) bool {
	if l.Fields == nil {
		return true
	}
	return slices.Contains(l.Fields, field)
}

// MissingFields lists the required fields the source did not carry
func (l *RawLog) MissingFields() []string {
	var missing []string
	for _, f := range RequiredRawFields {
		if !l.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Result of the receiver clock checks
type ClockCheck struct {
	Defaulted   []string `json:"defaulted,omitempty"` // Optional fields that were missing and defaulted
	FlippedBias bool     `json:"flipped_bias"`        // FullBiasNanos was positive in every row and has been negated
}

// CheckClock validates the receiver clock fields of a raw log and fills defaults.
// A missing required field is fatal and every missing one is listed. FullBiasNanos must
// not change sign; if it is positive everywhere it is negated in place.
func CheckClock(l *RawLog) (ClockCheck, error) {
	var chk ClockCheck
	if missing := l.MissingFields(); len(missing) > 0 {
		return chk, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	for _, f := range OptionalRawFields {
		if !l.Has(f) {
			chk.Defaulted = append(chk.Defaulted, f)
			l.applyDefault(f)
		}
	}

	npos, nneg := 0, 0
	for i := range l.Obs {
		switch {
		case l.Obs[i].FullBiasNanos > 0:
			npos++
		case l.Obs[i].FullBiasNanos < 0:
			nneg++
		}
	}
	if npos > 0 && nneg > 0 {
		return chk, fmt.Errorf("%w: %d positive and %d negative rows", ErrClockSign, npos, nneg)
	}
	if npos > 0 {
		for i := range l.Obs {
			l.Obs[i].FullBiasNanos = -l.Obs[i].FullBiasNanos
		}
		chk.FlippedBias = true
	}
	return chk, nil
}

func (l *RawLog) applyDefault(field string) {
	for i := range l.Obs {
		o := &l.Obs[i]
		switch field {
		case "BiasNanos":
			o.BiasNanos = 0
		case "TimeOffsetNanos":
			o.TimeOffsetNanos = 0
		case "HardwareClockDiscontinuityCount":
			o.HardwareClockDiscontinuityCount = 0
		case "PseudorangeRateMetersPerSecond":
			o.PseudorangeRateMetersPerSecond = math.NaN()
		case "PseudorangeRateUncertaintyMetersPerSecond":
			o.PseudorangeRateUncertaintyMetersPerSecond = math.NaN()
		case "AccumulatedDeltaRangeState":
			o.AccumulatedDeltaRangeState = 0
		case "AccumulatedDeltaRangeMeters":
			o.AccumulatedDeltaRangeMeters = math.NaN()
		case "AccumulatedDeltaRangeUncertaintyMeters":
			o.AccumulatedDeltaRangeUncertaintyMeters = math.NaN()
		case "Cn0DbHz":
			o.Cn0DbHz = math.NaN()
		}
	}
}
