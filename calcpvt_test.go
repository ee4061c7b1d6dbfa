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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// HDOP of the visible satellites seen from the true receiver position
func scenarioHdop(t *testing.T, s *scenario, tRx float64) float64 {
	H := mat.NewDense(len(s.vis), 4, nil)
	for i, e := range s.vis {
		pr, st := synthPr(e, s.week, tRx, s.rx, s.bc)
		d := FlightTimeCorrection(st.Pos, (pr-s.bc)/C+st.Clk).Sub(s.rx)
		r := d.Norm()
		los := PosXYZ{d.X / r, d.Y / r, d.Z / r}.ToNED(s.llh)
		H.SetRow(i, []float64{-los.N, -los.E, -los.D, 1})
	}
	var A, Q mat.Dense
	A.Mul(H.T(), H)
	require.NoError(t, Q.Inverse(&A))
	return math.Sqrt(Q.At(0, 0) + Q.At(1, 1))
}

func TestWlsPvt(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)
	in := s.wlsInput(s.tow0)

	res, err := WlsPvt(in, PosXYZ{}, 0, 0, nil)
	require.NoError(t, err)
	assert.LessOrEqual(res.Iter, 10)
	assert.InDelta(0, res.Pos.Sub(s.rx).Norm(), 1e-3)
	assert.InDelta(s.bc, res.Bc, 1e-3)

	// Static receiver
	require.True(t, res.VelOK)
	assert.Len(res.VelRow, len(s.vis))
	assert.InDelta(0, res.Vel.Norm(), 0.05)
	assert.InDelta(s.bd, res.Bd, 0.05)

	// Starting at the answer takes one iteration
	res2, err := WlsPvt(in, s.rx, s.bc, s.bd, nil)
	require.NoError(t, err)
	assert.Equal(1, res2.Iter)
	assert.InDelta(0, res2.Pos.Sub(s.rx).Norm(), 1e-3)
}

func TestWlsPvtWithoutRangeRate(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)
	in := s.wlsInput(s.tow0)
	for i := range in.PrrMps {
		if i > 2 {
			in.PrrMps[i] = math.NaN()
		}
	}
	res, err := WlsPvt(in, PosXYZ{}, 0, 0, nil)
	require.NoError(t, err)
	assert.InDelta(0, res.Pos.Sub(s.rx).Norm(), 1e-3)
	assert.False(res.VelOK)
	assert.True(res.Vel.IsNaN())
	assert.True(math.IsNaN(res.Bd))
}

func TestWlsPvtFailures(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)
	in := s.wlsInput(s.tow0)

	opt := NewPvtOpt()
	opt.MaxIter = 1
	_, err := WlsPvt(in, PosXYZ{}, 0, 0, opt)
	assert.ErrorIs(err, ErrWlsNotConverged)

	short := &WlsInput{
		Ephs:        in.Ephs[:3],
		Weeks:       in.Weeks[:3],
		TRx:         in.TRx[:3],
		PrM:         in.PrM[:3],
		PrSigmaM:    in.PrSigmaM[:3],
		PrrMps:      in.PrrMps[:3],
		PrrSigmaMps: in.PrrSigmaMps[:3],
	}
	_, err = WlsPvt(short, PosXYZ{}, 0, 0, nil)
	assert.ErrorIs(err, ErrDegenerateGeometry)

	short.PrM = in.PrM[:2]
	_, err = WlsPvt(short, PosXYZ{}, 0, 0, nil)
	assert.ErrorIs(err, ErrInputShape)
}

func TestSolveAll(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)
	meas, err := ProcessRaw(s.rawLog(5), nil)
	require.NoError(t, err)

	solver := NewSolver(s.nav(), nil, nil)
	ests := solver.SolveAll(meas)
	require.Len(t, ests, 5)
	for k, e := range ests {
		require.True(t, e.Valid, "epoch %d: %v", k, e.Err)
		assert.NoError(e.Err)
		assert.Equal(SKIP_NONE, e.Skip)
		assert.InDelta(s.fct(k), e.FctSeconds, 1e-6)
		assert.Equal(len(s.vis), e.NumSvs)
		assert.InDelta(0, e.Xyz.Sub(s.rx).Norm(), 2.0)
		assert.InDelta(s.llh.Lat, e.Lla.Lat, 1e-6)
		assert.InDelta(s.llh.Lon, e.Lla.Lon, 1e-6)
		assert.InDelta(s.llh.Hei, e.Lla.Hei, 2.0)
		assert.InDelta(s.bc, e.ClkBiasM, 2.0)
		assert.InDelta(0, e.VelNed.N, 0.05)
		assert.InDelta(0, e.VelNed.E, 0.05)
		assert.InDelta(0, e.VelNed.D, 0.05)
		assert.InDelta(s.bd, e.ClkDriftMps, 0.05)
		assert.Greater(e.Hdop, 0.3)
		assert.Less(e.Hdop, 5.0)
		assert.InDelta(scenarioHdop(t, s, s.tow0+float64(k)), e.Hdop, 1e-5)
		assert.Greater(e.SigmaPosNed.N, 0.0)
		assert.Greater(e.SigmaPosNed.D, 0.0)
		assert.Greater(e.SigmaClkM, 0.0)
		assert.Greater(e.SigmaVelNed.E, 0.0)
		assert.Greater(e.SigmaClkDriftMps, 0.0)
		assert.GreaterOrEqual(e.Iterations, 1)
	}

	// Warm start needs fewer iterations than the cold first epoch
	assert.Less(ests[1].Iterations, ests[0].Iterations)
	assert.Empty(solver.Warnings().Counts())
}

func TestSolveEpochSkips(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)
	meas, err := ProcessRaw(s.rawLog(1), nil)
	require.NoError(t, err)
	ep := meas.Epochs[0]
	svids := meas.Sats.Svids

	// No navigation data
	est, err := NewSolver(NewNav(nil), nil, nil).SolveEpoch(ep, svids, PosXYZ{}, 0, 0)
	assert.NoError(err)
	assert.False(est.Valid)
	assert.Equal(SKIP_NO_EPHEMERIS, est.Skip)
	assert.True(math.IsNaN(est.Hdop))
	assert.True(est.Xyz.IsNaN())

	// Excluded satellites leave too few
	opt := NewPvtOpt()
	opt.ExSats = svids[:len(svids)-3]
	est, err = NewSolver(s.nav(), opt, nil).SolveEpoch(ep, svids, PosXYZ{}, 0, 0)
	assert.NoError(err)
	assert.Equal(SKIP_TOO_FEW_SATS, est.Skip)
	assert.Equal(3, est.NumSvs)

	// C/N0 mask
	opt = NewPvtOpt()
	opt.CnMask = 45
	est, _ = NewSolver(s.nav(), opt, nil).SolveEpoch(ep, svids, PosXYZ{}, 0, 0)
	assert.Equal(SKIP_TOO_FEW_SATS, est.Skip)
	assert.Equal(0, est.NumSvs)

	// Not converging
	opt = NewPvtOpt()
	opt.MaxIter = 1
	est, err = NewSolver(s.nav(), opt, nil).SolveEpoch(ep, svids, PosXYZ{}, 0, 0)
	assert.ErrorIs(err, ErrWlsNotConverged)
	assert.Equal(SKIP_NOT_CONVERGED, est.Skip)
}

func TestCheckStatesWarnings(t *testing.T) {
	assert := assert.New(t)
	e := testConstellation(2200, 345600)[0]
	states := []SatState{
		SatPos(e, 2200, e.Toe+100),
		SatPos(e, 2200, e.Toe+5*3600),
		{KeplerOK: false, InFit: true},
	}
	solver := NewSolver(NewNav(nil), nil, nil)
	solver.checkStates(2200*WEEKSEC+345600, []*Ephe{e, e, e}, states)
	counts := solver.Warnings().Counts()
	assert.Equal(1, counts[WARN_FIT_INTERVAL])
	assert.Equal(1, counts[WARN_KEPLER])
}
