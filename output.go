// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package rawpvt

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"time"
)

// Epoch time string of a full cycle time, rounded to milliseconds
func fctTimeStr(fct float64) string {
	t := NewGTimeFct(fct).ToTime().Round(time.Millisecond)
	return t.UTC().Format("2006/01/02 15:04:05.000")
}

// WritePosHeader writes the header section of a pos file
func WritePosHeader(w io.Writer, program, rawFn, navFn string, meas *Meas) {
	fmt.Fprintf(w, "%% program   : %s\n", filepath.Base(program))
	fmt.Fprintf(w, "%% inp file  : %s\n", rawFn)
	fmt.Fprintf(w, "%% inp file  : %s\n", navFn)
	if meas != nil && len(meas.Epochs) > 0 {
		s := NewGTimeFct(meas.Epochs[0].FctSeconds)
		e := NewGTimeFct(meas.Epochs[len(meas.Epochs)-1].FctSeconds)
		fmt.Fprintf(w, "%% obs start : %s(GPST) (week%d %7.1fs)\n", fctTimeStr(s.Fct()), s.Week, s.Sec)
		fmt.Fprintf(w, "%% obs end   : %s(GPST) (week%d %7.1fs)\n", fctTimeStr(e.Fct()), e.Week, e.Sec)
	}
	fmt.Fprintf(w, "%%  GPST                   latitude(deg) longitude(deg)  height(m)   Q  ns       clk_bias(m)     vn(m/s)     ve(m/s)     vd(m/s)   drift(m/s)      hdop    sdn(m)    sde(m)    sdd(m)  sdclk(m)\n")
}

// WritePos writes one line per solved epoch. Skipped epochs are not written.
func WritePos(w io.Writer, ests []PvtEstimate) error {
	for _, e := range ests {
		if !e.Valid {
			continue
		}
		Q := 5 // Single point
		_, err := fmt.Fprintf(w, "%s %13.9f %14.9f %10.4f %3d %3d %17.4f %11.4f %11.4f %11.4f %12.4f %9.3f %9.3f %9.3f %9.3f %9.3f\n",
			fctTimeStr(e.FctSeconds), ToDeg(e.Lla.Lat), ToDeg(e.Lla.Lon), e.Lla.Hei, Q, e.NumSvs,
			e.ClkBiasM, e.VelNed.N, e.VelNed.E, e.VelNed.D, e.ClkDriftMps,
			e.Hdop, e.SigmaPosNed.N, e.SigmaPosNed.E, e.SigmaPosNed.D, e.SigmaClkM)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteAdr writes the carrier residuals, one line per epoch and satellite with a value
func WriteAdr(w io.Writer, r *AdrResiduals) error {
	if r == nil || r.Empty() {
		_, err := fmt.Fprintf(w, "%% no carrier phase data\n")
		return err
	}
	fmt.Fprintf(w, "%% ref sat   : G%02d\n", r.RefSvid)
	fmt.Fprintf(w, "%%  GPST                    sat  ref     resid(m)  delpr-adr(m)\n")
	for i, ep := range r.Epochs {
		for j, v := range ep.ResidM {
			d := math.NaN()
			if i < len(r.DelPrMinusAdrM) {
				d = r.DelPrMinusAdrM[i][j]
			}
			if math.IsNaN(v) && math.IsNaN(d) {
				continue
			}
			_, err := fmt.Fprintf(w, "%s  G%02d  G%02d %12.4f %13.4f\n",
				fctTimeStr(ep.FctSeconds), r.Svid[j], ep.RefSvid, v, d)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
