// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.12
//

package rawpvt

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Structure to store ephemeris (GPS navigation data for one satellite, one issue)
type Ephe struct {
	Sat    int     // PRN
	Toc    float64 // Reference time for satellite clock error correction [s of week]
	Toe    float64 // Reference time for satellite orbit calculation [s of week]
	Week   int     // GPS week of Toe and Toc
	Tot    float64 // Transmission time [s of week]
	Iode   int
	Iodc   int
	Af0    float64
	Af1    float64
	Af2    float64
	Tgd    float64
	Crs    float64
	Crc    float64
	Cus    float64
	Cuc    float64
	Cis    float64
	Cic    float64
	DeltaN float64
	M0     float64
	Ecc    float64
	SqrtA  float64
	Omega0 float64 // Longitude of ascending node at weekly epoch
	I0     float64
	Omega  float64 // Argument of perigee
	OmegaD float64
	Idot   float64
	Sva    int
	Svh    int
	Fit    float64 // Fit interval [h]. 0 means unknown.
}

func (e *Ephe) String() string {
	str := ""
	str += fmt.Sprintf("### Nav. for G%02d\n", e.Sat)
	str += fmt.Sprintf("    Toc: %v\n", GTime{e.Week, e.Toc})
	str += fmt.Sprintf("    Toe: %v\n", GTime{e.Week, e.Toe})
	str += fmt.Sprintf("   Iode: %v\n", e.Iode)
	str += fmt.Sprintf("    Af0: %v\n", e.Af0)
	str += fmt.Sprintf("    Af1: %v\n", e.Af1)
	str += fmt.Sprintf("    Af2: %v\n", e.Af2)
	str += fmt.Sprintf("    Tgd: %v\n", e.Tgd)
	str += fmt.Sprintf("  SqrtA: %v\n", e.SqrtA)
	str += fmt.Sprintf("    Ecc: %v\n", e.Ecc)
	str += fmt.Sprintf("     I0: %v\n", e.I0)
	str += fmt.Sprintf(" Omega0: %v\n", e.Omega0)
	str += fmt.Sprintf("  Omega: %v\n", e.Omega)
	str += fmt.Sprintf("     M0: %v\n", e.M0)
	str += fmt.Sprintf("    Svh: %v\n", e.Svh)
	str += fmt.Sprintf("    Fit: %v\n", e.Fit)
	return str
}

// Full cycle time of Toe
func (e *Ephe) ToeFct() float64 {
	return float64(e.Week)*WEEKSEC + e.Toe
}

// Fit interval used to select an ephemeris [s]
func (e *Ephe) selectFitSec() float64 {
	if e.Fit == 0 {
		return 4 * 3600
	}
	return e.Fit * 3600
}

// Fit interval used to warn about propagation far from Toe [s]
func (e *Ephe) propFitSec() float64 {
	if e.Fit == 0 {
		return 2 * 3600
	}
	return e.Fit * 3600
}

// Structure to store navigation data for each satellite
// - Map with PRN as Key and slice sorted by Toe in ascending order as Value
type Nav map[int][]*Ephe

// NewNav builds the store from parsed records
func NewNav(ephs []*Ephe) *Nav {
	nav := Nav{}
	for _, e := range ephs {
		nav.Add(e)
	}
	return &nav
}

// Add inserts a record keeping Toe order
func (nav *Nav) Add(e *Ephe) {
	v := append((*nav)[e.Sat], e)
	sort.SliceStable(v, func(i, j int) bool { return v[i].ToeFct() < v[j].ToeFct() })
	(*nav)[e.Sat] = v
}

// Len returns the number of records
func (nav *Nav) Len() int {
	n := 0
	for _, v := range *nav {
		n += len(v)
	}
	return n
}

// ClosestEphe selects the healthy ephemeris whose Toe is closest to fct among those
// that lie within half of their fit interval.
func (nav *Nav) ClosestEphe(prn int, fct float64) (*Ephe, error) {
	navs, ok := (*nav)[prn]
	if !ok || len(navs) == 0 {
		return nil, fmt.Errorf("%w: can't find G%02d", ErrNoEphemeris, prn)
	}
	var best *Ephe
	ageMin := math.Inf(1)
	unhealthy := 0
	for _, eph := range navs {
		age := math.Abs(fct - eph.ToeFct())
		if age >= eph.selectFitSec()/2 {
			continue
		}
		if eph.Svh != 0 {
			unhealthy++
			continue
		}
		if age < ageMin {
			ageMin = age
			best = eph
		}
	}
	if best == nil {
		if unhealthy > 0 {
			return nil, fmt.Errorf("%w: G%02d not healthy", ErrNoEphemeris, prn)
		}
		return nil, fmt.Errorf("%w: G%02d no Toe within the fit interval", ErrNoEphemeris, prn)
	}
	return best, nil
}

// ClosestEphes selects ephemerides for a list of satellites.
// It returns the records found and the indices into prns they belong to.
func (nav *Nav) ClosestEphes(prns []int, fct float64) ([]*Ephe, []int) {
	ephs := make([]*Ephe, 0, len(prns))
	idx := make([]int, 0, len(prns))
	for i, prn := range prns {
		eph, err := nav.ClosestEphe(prn, fct)
		if err != nil {
			PrintD(3, "\tG%02d: %s\n", prn, err)
			continue
		}
		ephs = append(ephs, eph)
		idx = append(idx, i)
	}
	return ephs, idx
}

// Display navigation data overview
func (p *Nav) String() string {
	keys := maps.Keys(*p)
	slices.Sort(keys)
	var sb strings.Builder
	sb.WriteString("toe:\n")
	for _, sat := range keys {
		sb.WriteString(fmt.Sprintf("\tG%02d: ", sat))
		if v := (*p)[sat]; len(v) > 0 {
			st := GTime{v[0].Week, v[0].Toe}
			et := GTime{v[len(v)-1].Week, v[len(v)-1].Toe}
			sb.WriteString(fmt.Sprintf("%s - %s (%d)\n",
				st.ToTime().Format("2006/01/02 15:04:05.000"), et.ToTime().Format("2006/01/02 15:04:05.000"), len(v)))
		} else {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
