// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

// Implements the weighted least squares position, velocity and time solution of one epoch.

package rawpvt

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
)

// PvtOpt contains options of the PVT solver
type PvtOpt struct {
	MaxDelPosM float64 `yaml:"max_del_pos_m"` // Stop iterating when the position update is below this [m]
	MaxIter    int     `yaml:"max_iter"`      // Maximum number of WLS iterations
	MinSats    int     `yaml:"min_sats"`      // Minimum number of satellites for a solution
	CnMask     float64 `yaml:"cn_mask"`       // Signal strength mask [dB-Hz]. 0 means off.
	ExSats     []int   `yaml:"ex_sats"`       // Satellites to exclude (PRN)
}

// NewPvtOpt creates a new PvtOpt with default values
func NewPvtOpt() *PvtOpt {
	return &PvtOpt{
		MaxDelPosM: MAX_DEL_POS_FOR_NAVM,
		MaxIter:    MAX_WLS_LOOP_COUNT,
		MinSats:    MIN_SATS_FOR_PVT,
		CnMask:     0,
		ExSats:     []int{},
	}
}

// Reason an epoch has no solution
type SkipReason string

const (
	SKIP_NONE          SkipReason = ""
	SKIP_TOO_FEW_SATS  SkipReason = "too_few_sats"
	SKIP_NO_EPHEMERIS  SkipReason = "no_ephemeris"
	SKIP_NOT_CONVERGED SkipReason = "wls_not_converged"
	SKIP_DEGENERATE    SkipReason = "degenerate_geometry"
	SKIP_WEEK_ROLLOVER SkipReason = "week_rollover"
	SKIP_CANCELED      SkipReason = "canceled"
)

// PvtEstimate is the solution of one epoch.
// A skipped epoch keeps FctSeconds and NumSvs and has NaN everywhere else.
type PvtEstimate struct {
	FctSeconds       float64
	Xyz              PosXYZ  // ECEF position [m]
	Lla              PosLLH  // Geodetic position [rad, rad, m]
	ClkBiasM         float64 // Receiver clock bias [m]
	VelNed           PosNED  // [m/s]
	ClkDriftMps      float64 // Receiver clock drift [m/s]
	SigmaPosNed      PosNED  // [m]
	SigmaClkM        float64
	SigmaVelNed      PosNED // [m/s]
	SigmaClkDriftMps float64
	NumSvs           int
	Hdop             float64
	Iterations       int
	Valid            bool
	Skip             SkipReason
	Err              error // Hard failure of this epoch
}

func newSkippedEstimate(fct float64, nsv int, reason SkipReason) PvtEstimate {
	nan := math.NaN()
	return PvtEstimate{
		FctSeconds:       fct,
		Xyz:              NaNXYZ(),
		Lla:              PosLLH{nan, nan, nan},
		ClkBiasM:         nan,
		VelNed:           NaNNED(),
		ClkDriftMps:      nan,
		SigmaPosNed:      NaNNED(),
		SigmaClkM:        nan,
		SigmaVelNed:      NaNNED(),
		SigmaClkDriftMps: nan,
		NumSvs:           nsv,
		Hdop:             nan,
		Skip:             reason,
	}
}

// Per-satellite inputs of one WLS solve. Every slice is positional.
type WlsInput struct {
	Ephs        []*Ephe
	Weeks       []int     // Week of TRx
	TRx         []float64 // Reception time [s of week]
	PrM         []float64
	PrSigmaM    []float64
	PrrMps      []float64
	PrrSigmaMps []float64
}

// Validate the lengths of the slices
func (in *WlsInput) check() error {
	n := len(in.Ephs)
	if len(in.Weeks) != n || len(in.TRx) != n || len(in.PrM) != n || len(in.PrSigmaM) != n ||
		len(in.PrrMps) != n || len(in.PrrSigmaMps) != n {
		return fmt.Errorf("%w: wls input with %d satellites", ErrInputShape, n)
	}
	return nil
}

// Result of one WLS solve
type WlsResult struct {
	Pos    PosXYZ     // Receiver position [m]
	Bc     float64    // Receiver clock bias [m]
	Vel    PosXYZ     // Receiver velocity [m/s]. NaN when not solved.
	Bd     float64    // Receiver clock drift [m/s]. NaN when not solved.
	H      *mat.Dense // Geometry matrix of the last iteration [los, 1]
	VelRow []int      // Rows of H used for the velocity solution
	Iter   int
	VelOK  bool
	States []SatState
}

// WlsPvt solves position and clock bias by Gauss-Newton iteration starting from
// x0 and bc, then velocity and clock drift in one step. bd is the clock drift
// prior used in the predicted range rate.
func WlsPvt(in *WlsInput, x0 PosXYZ, bc, bd float64, opt *PvtOpt) (*WlsResult, error) {
	if opt == nil {
		opt = NewPvtOpt()
	}
	if err := in.check(); err != nil {
		return nil, err
	}
	n := len(in.Ephs)
	if n < 4 {
		return nil, fmt.Errorf("%w: %d satellites", ErrDegenerateGeometry, n)
	}

	// Satellite states at the corrected transmission time
	states := make([]SatState, n)
	for i, e := range in.Ephs {
		states[i] = satAtReception(e, in.Weeks[i], in.TRx[i], in.PrM[i])
	}

	Wpr := sigmaWeights(in.PrSigmaM)
	H := mat.NewDense(n, 4, nil)
	z := mat.NewVecDense(n, nil)
	los := make([]PosXYZ, n)
	res := &WlsResult{States: states}

	x := x0
	dxPos := math.Inf(1)
	for dxPos >= opt.MaxDelPosM {
		if res.Iter >= opt.MaxIter {
			return nil, fmt.Errorf("%w: |dx|=%.3fm after %d iterations", ErrWlsNotConverged, dxPos, res.Iter)
		}
		res.Iter++
		for i := range states {
			pr := in.PrM[i]
			dtsv := states[i].Clk
			// Earth rotation during flight
			dtflight := (pr-bc)/C + dtsv
			sv := FlightTimeCorrection(states[i].Pos, dtflight)
			d := x.Sub(sv)
			r := d.Norm()
			los[i] = PosXYZ{d.X / r, d.Y / r, d.Z / r}
			prHat := r + bc - C*dtsv
			z.SetVec(i, pr-prHat)
			H.Set(i, 0, los[i].X)
			H.Set(i, 1, los[i].Y)
			H.Set(i, 2, los[i].Z)
			H.Set(i, 3, 1)
		}
		printLS(H, z, Wpr)
		dx, _, err := SolveLS(H, z, Wpr)
		if err != nil {
			return nil, err
		}
		x = x.Add(PosXYZ{dx.AtVec(0), dx.AtVec(1), dx.AtVec(2)})
		bc += dx.AtVec(3)
		dxPos = math.Sqrt(SQ(dx.AtVec(0)) + SQ(dx.AtVec(1)) + SQ(dx.AtVec(2)))
		PrintD(3, "\tLOOP %d: XYZ= %.3f %.3f %.3f, bc=%.3f, |dx|=%.6f\n", res.Iter, x.X, x.Y, x.Z, bc, dxPos)
	}
	res.Pos = x
	res.Bc = bc
	res.H = H

	// Velocity and clock drift from rows with a usable range rate
	for i := range states {
		if isFinite(in.PrrMps[i]) && isFinite(in.PrrSigmaMps[i]) && in.PrrSigmaMps[i] > 0 {
			res.VelRow = append(res.VelRow, i)
		}
	}
	res.Vel = NaNXYZ()
	res.Bd = math.NaN()
	if len(res.VelRow) < 4 {
		return res, nil
	}
	m := len(res.VelRow)
	Hv := mat.NewDense(m, 4, nil)
	zv := mat.NewVecDense(m, nil)
	sig := make([]float64, m)
	for k, i := range res.VelRow {
		rr := -states[i].Vel.Dot(los[i])
		prrHat := rr + bd - C*states[i].ClkDrift
		zv.SetVec(k, in.PrrMps[i]-prrHat)
		Hv.SetRow(k, H.RawRowView(i))
		sig[k] = in.PrrSigmaMps[i]
	}
	vHat, _, err := SolveLS(Hv, zv, sigmaWeights(sig))
	if err != nil {
		// Position stands, velocity stays NaN
		PrintD(2, "\tvelocity: %s\n", err)
		return res, nil
	}
	res.Vel = PosXYZ{vHat.AtVec(0), vHat.AtVec(1), vHat.AtVec(2)}
	res.Bd = bd + vHat.AtVec(3)
	res.VelOK = true
	return res, nil
}

// Solver computes PVT of aligned epochs
type Solver struct {
	opt    *PvtOpt
	nav    *Nav
	logger *slog.Logger
	warns  *WarnTally
}

// NewSolver creates a solver. nil opt and logger take defaults.
func NewSolver(nav *Nav, opt *PvtOpt, logger *slog.Logger) *Solver {
	if opt == nil {
		opt = NewPvtOpt()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Solver{
		opt:    opt,
		nav:    nav,
		logger: logger,
		warns:  NewWarnTally(),
	}
}

// Warnings returns the soft numerical warnings seen so far
func (s *Solver) Warnings() *WarnTally {
	return s.warns
}

// SolveEpoch computes PVT of one epoch from the initial guess x0, bc, bd.
// Skips return an estimate with Skip set and a nil error. Hard numerical failures
// return the error as well.
func (s *Solver) SolveEpoch(ep *EpochObs, svids []int, x0 PosXYZ, bc, bd float64) (PvtEstimate, error) {
	if ep.Err != nil {
		return newSkippedEstimate(ep.FctSeconds, 0, SKIP_WEEK_ROLLOVER), ep.Err
	}

	// Select satellites with a usable pseudorange
	prns := make([]int, 0, len(svids))
	cols := make([]int, 0, len(svids))
	for j, prn := range svids {
		if !isFinite(ep.PrM[j]) || !isFinite(ep.PrSigmaM[j]) || ep.PrSigmaM[j] <= 0 {
			continue
		}
		if slices.Contains(s.opt.ExSats, prn) {
			PrintD(3, "\tG%02d: Exclude satellite\n", prn)
			continue
		}
		if s.opt.CnMask > 0 && ep.Cn0DbHz[j] < s.opt.CnMask {
			PrintD(3, "\tG%02d: C/N Mask (c/n=%f < %f)\n", prn, ep.Cn0DbHz[j], s.opt.CnMask)
			continue
		}
		prns = append(prns, prn)
		cols = append(cols, j)
	}
	if len(prns) < s.opt.MinSats {
		return newSkippedEstimate(ep.FctSeconds, len(prns), SKIP_TOO_FEW_SATS), nil
	}

	ephs, idx := s.nav.ClosestEphes(prns, ep.FctSeconds)
	if len(ephs) < s.opt.MinSats {
		return newSkippedEstimate(ep.FctSeconds, len(ephs), SKIP_NO_EPHEMERIS), nil
	}

	in := &WlsInput{}
	for k, e := range ephs {
		j := cols[idx[k]]
		in.Ephs = append(in.Ephs, e)
		in.Weeks = append(in.Weeks, ep.RxWeek[j])
		in.TRx = append(in.TRx, ep.TRxSeconds[j])
		in.PrM = append(in.PrM, ep.PrM[j])
		in.PrSigmaM = append(in.PrSigmaM, ep.PrSigmaM[j])
		in.PrrMps = append(in.PrrMps, ep.PrrMps[j])
		in.PrrSigmaMps = append(in.PrrSigmaMps, ep.PrrSigmaMps[j])
	}

	w, err := WlsPvt(in, x0, bc, bd, s.opt)
	if err != nil {
		reason := SKIP_DEGENERATE
		if errors.Is(err, ErrWlsNotConverged) {
			reason = SKIP_NOT_CONVERGED
		}
		s.logger.Debug("epoch failed", "fct", ep.FctSeconds, "reason", string(reason), "err", err)
		return newSkippedEstimate(ep.FctSeconds, len(ephs), reason), err
	}
	s.checkStates(ep.FctSeconds, in.Ephs, w.States)

	est, err := s.makeEstimate(ep.FctSeconds, in, w)
	if err != nil {
		return newSkippedEstimate(ep.FctSeconds, len(ephs), SKIP_DEGENERATE), err
	}
	s.logger.Debug("epoch solved", "fct", ep.FctSeconds, "nsv", est.NumSvs, "iter", est.Iterations, "hdop", est.Hdop)
	return est, nil
}

// Soft numerical warnings of the propagated satellites
func (s *Solver) checkStates(fct float64, ephs []*Ephe, states []SatState) {
	for i, st := range states {
		if !st.KeplerOK {
			s.warns.Add(WARN_KEPLER)
			s.logger.Warn("kepler did not converge", "fct", fct, "prn", ephs[i].Sat)
		}
		if !st.InFit {
			s.warns.Add(WARN_FIT_INTERVAL)
			s.logger.Warn("propagation outside fit interval", "fct", fct, "prn", ephs[i].Sat, "tk", st.Tk)
		}
	}
}

// Geodetic position, NED velocity, HDOP and sigmas of a WLS result
func (s *Solver) makeEstimate(fct float64, in *WlsInput, w *WlsResult) (PvtEstimate, error) {
	est := newSkippedEstimate(fct, len(in.Ephs), SKIP_NONE)
	est.Xyz = w.Pos
	est.Lla = w.Pos.ToLLH()
	est.ClkBiasM = w.Bc
	est.Iterations = w.Iter

	rot := est.Lla.RotEcefToNed()
	Hned := nedGeometry(w.H, rot)

	// HDOP from unweighted geometry
	dop, err := NormalCov(Hned, nil)
	if err != nil {
		return est, err
	}
	est.Hdop = math.Sqrt(dop.At(0, 0) + dop.At(1, 1))

	// Sigmas from weighted covariance
	cov, err := NormalCov(Hned, sigmaWeights(in.PrSigmaM))
	if err != nil {
		return est, err
	}
	est.SigmaPosNed = PosNED{math.Sqrt(cov.At(0, 0)), math.Sqrt(cov.At(1, 1)), math.Sqrt(cov.At(2, 2))}
	est.SigmaClkM = math.Sqrt(cov.At(3, 3))

	if w.VelOK {
		est.VelNed = w.Vel.ToNED(est.Lla)
		est.ClkDriftMps = w.Bd
		m := len(w.VelRow)
		Hv := mat.NewDense(m, 4, nil)
		sig := make([]float64, m)
		for k, i := range w.VelRow {
			Hv.SetRow(k, Hned.RawRowView(i))
			sig[k] = in.PrrSigmaMps[i]
		}
		if vcov, err := NormalCov(Hv, sigmaWeights(sig)); err == nil {
			est.SigmaVelNed = PosNED{math.Sqrt(vcov.At(0, 0)), math.Sqrt(vcov.At(1, 1)), math.Sqrt(vcov.At(2, 2))}
			est.SigmaClkDriftMps = math.Sqrt(vcov.At(3, 3))
		}
	}
	est.Valid = true
	return est, nil
}

// SolveAll solves every epoch in order. Each epoch starts from the previous solution;
// velocity is not carried over, clock drift is.
func (s *Solver) SolveAll(meas *Meas) []PvtEstimate {
	out := make([]PvtEstimate, len(meas.Epochs))
	var x0 PosXYZ
	bc, bd := 0.0, 0.0
	for i, ep := range meas.Epochs {
		PrintD(2, "--- EPOCH %d: fct=%.3f ---\n", i, ep.FctSeconds)
		est, err := s.SolveEpoch(ep, meas.Sats.Svids, x0, bc, bd)
		est.Err = err
		out[i] = est
		if est.Valid {
			x0 = est.Xyz
			bc = est.ClkBiasM
			if isFinite(est.ClkDriftMps) {
				bd = est.ClkDriftMps
			}
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
