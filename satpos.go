// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.13
//

package rawpvt

import (
	"fmt"
	"math"
)

// Result of the Kepler equation solve
type KeplerResult struct {
	E         float64 // Eccentric anomaly [rad]
	Iter      int     // Number of updates applied
	Converged bool    // False: E is the last iterate
}

// Kepler solves E - e*sin(E) = M for the eccentric anomaly.
// The correction E - e*sin(E) - M is scaled by the derivative 1 - e*cos(E).
// The loop is capped at MAX_KEPLER_LOOP updates; when the residual is still above
// KEPLER_TOL the last iterate is returned with Converged false.
func Kepler(M, e float64) KeplerResult {
	// Work in [-PI, PI) and add the whole turns back at the end
	turns := math.Floor((M+PI)/(2*PI)) * 2 * PI
	m := M - turns

	ek := m
	if e > 0 {
		ek = m + 0.85*e*math.Copysign(1, math.Sin(m))
	}
	res := KeplerResult{}
	for res.Iter = 0; res.Iter < MAX_KEPLER_LOOP; res.Iter++ {
		f := ek - e*math.Sin(ek) - m
		if math.Abs(f) < KEPLER_TOL {
			res.Converged = true
			break
		}
		ek -= f / (1 - e*math.Cos(ek))
	}
	if !res.Converged {
		res.Converged = math.Abs(ek-e*math.Sin(ek)-m) < KEPLER_TOL
	}
	res.E = ek + turns
	return res
}

// Satellite state at one transmission time
type SatState struct {
	Pos      PosXYZ  // ECEF position at transmission time [m]
	Vel      PosXYZ  // ECEF velocity [m/s]. Zero unless requested.
	Clk      float64 // Satellite clock bias including relativity and TGD [s]
	ClkDrift float64 // Satellite clock drift [s/s]. Zero unless requested.
	Tk       float64 // Time from Toe [s]
	KeplerOK bool    // Kepler solve converged
	InFit    bool    // |Tk| within the fit interval
}

// Calculate satellite position and clock bias at transmission time ttx [s of week]
// in GPS week "week". Weeks are subtracted before seconds.
func SatPos(e *Ephe, week int, ttx float64) SatState {
	var s SatState
	dw := float64(week-e.Week) * WEEKSEC
	tk := dw + (ttx - e.Toe)
	s.Tk = tk
	s.InFit = math.Abs(tk) <= e.propFitSec()

	// Mean anomaly
	a := e.SqrtA * e.SqrtA
	n := math.Sqrt(MU/(a*a*a)) + e.DeltaN
	mk := e.M0 + n*tk

	kr := Kepler(mk, e.Ecc)
	ek := kr.E
	s.KeplerOK = kr.Converged
	sinE := math.Sin(ek)
	cosE := math.Cos(ek)

	// Clock bias
	dt := dw + (ttx - e.Toc)
	s.Clk = e.Af0 + e.Af1*dt + e.Af2*dt*dt + FREL*e.Ecc*e.SqrtA*sinE - e.Tgd

	// True anomaly and argument of latitude
	den := 1 - e.Ecc*cosE
	vk := math.Atan2(math.Sqrt(1-e.Ecc*e.Ecc)*sinE/den, (cosE-e.Ecc)/den)
	pk := vk + e.Omega
	sin2p := math.Sin(2 * pk)
	cos2p := math.Cos(2 * pk)

	// Second harmonic corrections
	duk := e.Cus*sin2p + e.Cuc*cos2p
	drk := e.Crc*cos2p + e.Crs*sin2p
	dik := e.Cic*cos2p + e.Cis*sin2p

	uk := pk + duk
	rk := a*(1-e.Ecc*e.Ecc)/(1+e.Ecc*math.Cos(vk)) + drk
	ik := e.I0 + e.Idot*tk + dik

	// Position in the orbital plane
	xkp := rk * math.Cos(uk)
	ykp := rk * math.Sin(uk)

	// Longitude of ascending node, earth rotation included
	wk := e.Omega0 + (e.OmegaD-WE)*tk - WE*e.Toe
	sinW := math.Sin(wk)
	cosW := math.Cos(wk)
	cosI := math.Cos(ik)

	s.Pos.X = xkp*cosW - ykp*cosI*sinW
	s.Pos.Y = xkp*sinW + ykp*cosI*cosW
	s.Pos.Z = ykp * math.Sin(ik)
	return s
}

// SatClk returns only the satellite clock bias [s]
func SatClk(e *Ephe, week int, ttx float64) float64 {
	return SatPos(e, week, ttx).Clk
}

// SatPvt is SatPos plus velocity and clock drift by central difference over +-0.5s
func SatPvt(e *Ephe, week int, ttx float64) SatState {
	s := SatPos(e, week, ttx)
	s1 := SatPos(e, week, ttx-0.5)
	s2 := SatPos(e, week, ttx+0.5)
	s.Vel = s2.Pos.Sub(s1.Pos)
	s.ClkDrift = s2.Clk - s1.Clk
	return s
}

// Propagate computes the state of many satellites. ephs, weeks and ttx are positional.
func Propagate(ephs []*Ephe, weeks []int, ttx []float64, withVel bool) ([]SatState, error) {
	if len(ephs) != len(ttx) || len(weeks) != len(ttx) {
		return nil, fmt.Errorf("%w: %d ephemerides, %d weeks, %d times", ErrInputShape, len(ephs), len(weeks), len(ttx))
	}
	states := make([]SatState, len(ephs))
	for i, e := range ephs {
		if e == nil {
			return nil, fmt.Errorf("%w: no ephemeris at index %d", ErrInputShape, i)
		}
		if withVel {
			states[i] = SatPvt(e, weeks[i], ttx[i])
		} else {
			states[i] = SatPos(e, weeks[i], ttx[i])
		}
	}
	return states, nil
}

// FlightTimeCorrection rotates a satellite position about the Z axis by the earth
// rotation during the signal flight time, giving coordinates in the ECEF frame at reception.
func FlightTimeCorrection(p PosXYZ, dtflight float64) PosXYZ {
	theta := WE * dtflight
	c := math.Cos(theta)
	s := math.Sin(theta)
	return PosXYZ{
		X: c*p.X + s*p.Y,
		Y: -s*p.X + c*p.Y,
		Z: p.Z,
	}
}

// Satellite state for a pseudorange received at tRx [s of week, week "week"].
// The satellite clock is evaluated at the uncorrected transmission time,
// then the orbit is propagated to the corrected one.
func satAtReception(e *Ephe, week int, tRx, prM float64) SatState {
	ttxSv := tRx - prM/C
	dtsv := SatClk(e, week, ttxSv)
	return SatPvt(e, week, ttxSv-dtsv)
}
