// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.17
//

package rawpvt

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// GPS in the ConstellationType column
const CONSTELLATION_GPS = 1

// Parse an integer column. Empty means zero.
func parseRawInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	// Some loggers write integers as floats. Only exact ones are accepted.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.Abs(f) > 1<<53 || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an exact integer", s)
	}
	return int64(f), nil
}

// Parse a float column. Empty means def.
func parseRawFloat(s string, def float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

// Setters of the known columns
var rawSetters = map[string]func(o *RawObservation, s string) error{
	"TimeNanos": func(o *RawObservation, s string) (err error) {
		o.TimeNanos, err = parseRawInt(s)
		return
	},
	"TimeOffsetNanos": func(o *RawObservation, s string) (err error) {
		o.TimeOffsetNanos, err = parseRawFloat(s, 0)
		return
	},
	"FullBiasNanos": func(o *RawObservation, s string) (err error) {
		o.FullBiasNanos, err = parseRawInt(s)
		return
	},
	"BiasNanos": func(o *RawObservation, s string) (err error) {
		o.BiasNanos, err = parseRawFloat(s, 0)
		return
	},
	"HardwareClockDiscontinuityCount": func(o *RawObservation, s string) error {
		v, err := parseRawInt(s)
		o.HardwareClockDiscontinuityCount = int(v)
		return err
	},
	"Svid": func(o *RawObservation, s string) error {
		v, err := parseRawInt(s)
		o.Svid = int(v)
		return err
	},
	"State": func(o *RawObservation, s string) error {
		v, err := parseRawInt(s)
		o.State = SyncState(v)
		return err
	},
	"ReceivedSvTimeNanos": func(o *RawObservation, s string) (err error) {
		o.ReceivedSvTimeNanos, err = parseRawInt(s)
		return
	},
	"ReceivedSvTimeUncertaintyNanos": func(o *RawObservation, s string) (err error) {
		o.ReceivedSvTimeUncertaintyNanos, err = parseRawFloat(s, math.NaN())
		return
	},
	"PseudorangeRateMetersPerSecond": func(o *RawObservation, s string) (err error) {
		o.PseudorangeRateMetersPerSecond, err = parseRawFloat(s, math.NaN())
		return
	},
	"PseudorangeRateUncertaintyMetersPerSecond": func(o *RawObservation, s string) (err error) {
		o.PseudorangeRateUncertaintyMetersPerSecond, err = parseRawFloat(s, math.NaN())
		return
	},
	"AccumulatedDeltaRangeState": func(o *RawObservation, s string) error {
		v, err := parseRawInt(s)
		o.AccumulatedDeltaRangeState = AdrState(v)
		return err
	},
	"AccumulatedDeltaRangeMeters": func(o *RawObservation, s string) (err error) {
		o.AccumulatedDeltaRangeMeters, err = parseRawFloat(s, math.NaN())
		return
	},
	"AccumulatedDeltaRangeUncertaintyMeters": func(o *RawObservation, s string) (err error) {
		o.AccumulatedDeltaRangeUncertaintyMeters, err = parseRawFloat(s, math.NaN())
		return
	},
	"Cn0DbHz": func(o *RawObservation, s string) (err error) {
		o.Cn0DbHz, err = parseRawFloat(s, math.NaN())
		return
	},
	"ConstellationType": func(o *RawObservation, s string) error {
		v, err := parseRawInt(s)
		o.ConstellationType = int(v)
		return err
	},
}

// Read raw measurements in the GnssLogger text format.
// The column names come from the "# Raw," header line and data rows start with "Raw,".
// Rows of constellations other than GPS are dropped.
func ReadRawCsv(r io.Reader) (*RawLog, error) {
	var header []string
	l := &RawLog{}
	hasConst := false

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	nline := 0
	for s.Scan() {
		nline++
		line := strings.TrimRight(s.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "# Raw,"):
			header = strings.Split(strings.TrimPrefix(line, "# "), ",")[1:]
			l.Fields = []string{}
			for i := range header {
				header[i] = strings.TrimSpace(header[i])
				if _, ok := rawSetters[header[i]]; ok {
					l.Fields = append(l.Fields, header[i])
				}
				if header[i] == "ConstellationType" {
					hasConst = true
				}
			}
		case strings.HasPrefix(line, "Raw,"):
			if header == nil {
				return nil, fmt.Errorf("line %d: Raw record before \"# Raw,\" header", nline)
			}
			vals := strings.Split(line, ",")[1:]
			if len(vals) > len(header) {
				return nil, fmt.Errorf("line %d: %d values for %d columns", nline, len(vals), len(header))
			}
			o := RawObservation{
				PseudorangeRateMetersPerSecond:            math.NaN(),
				PseudorangeRateUncertaintyMetersPerSecond: math.NaN(),
				AccumulatedDeltaRangeMeters:               math.NaN(),
				AccumulatedDeltaRangeUncertaintyMeters:    math.NaN(),
				Cn0DbHz:                                   math.NaN(),
				ConstellationType:                         CONSTELLATION_GPS,
			}
			for i, v := range vals {
				set, ok := rawSetters[header[i]]
				if !ok {
					continue
				}
				if err := set(&o, v); err != nil {
					return nil, fmt.Errorf("line %d: %s: %w", nline, header[i], err)
				}
			}
			if hasConst && o.ConstellationType != CONSTELLATION_GPS {
				continue
			}
			l.Obs = append(l.Obs, o)
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if header == nil {
		return nil, fmt.Errorf("no \"# Raw,\" header found")
	}
	return l, nil
}
