// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package rawpvt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// Synthetic receiver, constellation and raw log
type scenario struct {
	week int
	tow0 float64 // Reception time of the first epoch [s of week]
	llh  PosLLH
	rx   PosXYZ
	bc   float64 // Receiver clock bias [m]
	bd   float64 // Receiver clock drift [m/s]
	ephs []*Ephe
	vis  []*Ephe // Satellites above 10 deg at tow0
}

// 8 planes of 4 satellites in near circular orbits with Toe at toe
func testConstellation(week int, toe float64) []*Ephe {
	ephs := []*Ephe{}
	for p := 0; p < 8; p++ {
		for k := 0; k < 4; k++ {
			prn := p*4 + k + 1
			ephs = append(ephs, &Ephe{
				Sat:    prn,
				Week:   week,
				Toe:    toe,
				Toc:    toe,
				Tot:    toe - 3600,
				Iode:   prn,
				Iodc:   prn,
				Af0:    1e-5 * float64(k-2),
				Af1:    1e-12,
				Tgd:    -5e-9,
				Ecc:    0.002 + 0.004*float64(k),
				SqrtA:  5153.6,
				I0:     ToRad(55),
				Omega0: ToRad(45 * float64(p)),
				Omega:  ToRad(30),
				M0:     ToRad(90*float64(k) + 22.5*float64(p)),
				DeltaN: 4.5e-9,
				OmegaD: -8e-9,
				Idot:   1e-10,
				Cuc:    1e-6,
				Cus:    5e-6,
				Crc:    250,
				Crs:    20,
				Cic:    1e-8,
				Cis:    -1e-8,
				Fit:    4,
			})
		}
	}
	return ephs
}

func newScenario(t *testing.T) *scenario {
	s := &scenario{
		week: 2200,
		tow0: 345600,
		llh:  *NewPosLLHDeg(37.4225, -122.084, -27),
		bc:   1500,
		bd:   -25,
	}
	s.rx = s.llh.ToXYZ()
	s.ephs = testConstellation(s.week, s.tow0)
	for _, e := range s.ephs {
		st := SatPos(e, s.week, s.tow0)
		los := st.Pos.Sub(s.rx).ToNED(s.llh)
		if math.Atan2(-los.D, los.Horizontal()) > ToRad(10) {
			s.vis = append(s.vis, e)
		}
	}
	require.GreaterOrEqual(t, len(s.vis), 6, "visible satellites")
	return s
}

func (s *scenario) nav() *Nav {
	return NewNav(s.ephs)
}

// Pseudorange the solver model gives for a receiver at rx with clock bias bc.
// The dependence on the pseudorange itself is weak, so a few fixed point steps converge.
func synthPr(e *Ephe, week int, tRx float64, rx PosXYZ, bc float64) (float64, SatState) {
	pr := 2.2e7
	var st SatState
	for i := 0; i < 8; i++ {
		st = satAtReception(e, week, tRx, pr)
		sv := FlightTimeCorrection(st.Pos, (pr-bc)/C+st.Clk)
		pr = rx.Sub(sv).Norm() + bc - C*st.Clk
	}
	return pr, st
}

// Pseudorange rate of a static receiver with clock drift bd
func synthPrr(st SatState, rx PosXYZ, pr, bc, bd float64) float64 {
	sv := FlightTimeCorrection(st.Pos, (pr-bc)/C+st.Clk)
	d := rx.Sub(sv)
	r := d.Norm()
	los := PosXYZ{d.X / r, d.Y / r, d.Z / r}
	return -st.Vel.Dot(los) + bd - C*st.ClkDrift
}

// WLS input of the visible satellites at reception time tRx
func (s *scenario) wlsInput(tRx float64) *WlsInput {
	in := &WlsInput{}
	for _, e := range s.vis {
		pr, st := synthPr(e, s.week, tRx, s.rx, s.bc)
		in.Ephs = append(in.Ephs, e)
		in.Weeks = append(in.Weeks, s.week)
		in.TRx = append(in.TRx, tRx)
		in.PrM = append(in.PrM, pr)
		in.PrSigmaM = append(in.PrSigmaM, 3)
		in.PrrMps = append(in.PrrMps, synthPrr(st, s.rx, pr, s.bc, s.bd))
		in.PrrSigmaMps = append(in.PrrSigmaMps, 0.1)
	}
	return in
}

// Hardware clock of the first epoch [ns]
const testTimeNanos0 = int64(500000000000)

// Raw log of n epochs at 1 s interval
func (s *scenario) rawLog(n int) *RawLog {
	gps0 := int64(s.week)*WEEKNANOS + int64(s.tow0)*1000000000
	fullBias := testTimeNanos0 - gps0
	obs := []RawObservation{}
	for k := 0; k < n; k++ {
		tRx := s.tow0 + float64(k)
		for _, e := range s.vis {
			pr, st := synthPr(e, s.week, tRx, s.rx, s.bc)
			obs = append(obs, RawObservation{
				TimeNanos:                                 testTimeNanos0 + int64(k)*1000000000,
				FullBiasNanos:                             fullBias,
				Svid:                                      e.Sat,
				State:                                     STATE_CODE_LOCK | STATE_TOW_DECODED,
				ReceivedSvTimeNanos:                       int64(math.Round((tRx - pr/C) * 1e9)),
				ReceivedSvTimeUncertaintyNanos:            10,
				PseudorangeRateMetersPerSecond:            synthPrr(st, s.rx, pr, s.bc, s.bd),
				PseudorangeRateUncertaintyMetersPerSecond: 0.1,
				AccumulatedDeltaRangeMeters:               math.NaN(),
				AccumulatedDeltaRangeUncertaintyMeters:    math.NaN(),
				Cn0DbHz:                                   40,
				ConstellationType:                         CONSTELLATION_GPS,
			})
		}
	}
	return &RawLog{Obs: obs}
}

// Full cycle time of epoch k of the raw log
func (s *scenario) fct(k int) float64 {
	return float64(s.week)*WEEKSEC + s.tow0 + float64(k)
}
