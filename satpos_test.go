// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package rawpvt

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKepler(t *testing.T) {
	assert := assert.New(t)
	for e := 0.0; e <= 0.9+1e-9; e += 0.1 {
		for M := -10.0; M <= 10.0; M += 0.37 {
			r := Kepler(M, e)
			msg := fmt.Sprintf("M=%.2f e=%.1f", M, e)
			assert.True(r.Converged, msg)
			assert.LessOrEqual(r.Iter, MAX_KEPLER_LOOP, msg)
			assert.InDelta(0, r.E-e*math.Sin(r.E)-M, 1e-8, msg)
		}
	}

	// Circular orbit: E equals M without iterating
	r := Kepler(1.25, 0)
	assert.Equal(1.25, r.E)
	assert.Equal(0, r.Iter)
}

func TestSatPos(t *testing.T) {
	assert := assert.New(t)
	ephs := testConstellation(2200, 345600)
	e := ephs[5]

	s := SatPos(e, 2200, e.Toe)
	assert.InDelta(0, s.Tk, 1e-9)
	assert.True(s.KeplerOK)
	assert.True(s.InFit)
	a := e.SqrtA * e.SqrtA
	assert.InDelta(a, s.Pos.Norm(), a*e.Ecc+1000)

	// Same inputs, same state
	assert.Equal(s, SatPos(e, 2200, e.Toe))

	// Weeks are accounted for
	s2 := SatPos(e, 2201, e.Toe-WEEKSEC)
	assert.InDelta(0, s2.Tk, 1e-9)
	assert.InDelta(0, s2.Pos.Sub(s.Pos).Norm(), 1e-6)

	// Outside the fit interval the state is still computed
	s3 := SatPos(e, 2200, e.Toe+5*3600)
	assert.False(s3.InFit)
	assert.True(s3.KeplerOK)

	// Clock includes af0 and tgd at Toc
	assert.InDelta(e.Af0-e.Tgd, s.Clk, 2e-8)
}

func TestSatPvt(t *testing.T) {
	assert := assert.New(t)
	e := testConstellation(2200, 345600)[9]
	s := SatPvt(e, 2200, e.Toe+100)
	v := s.Vel.Norm()
	assert.Greater(v, 1000.0)
	assert.Less(v, 5000.0)
	assert.InDelta(e.Af1, s.ClkDrift, 1e-11)

	// Central difference agrees with a position 1 s later
	s1 := SatPos(e, 2200, e.Toe+101)
	assert.InDelta(0, s1.Pos.Sub(s.Pos.Add(s.Vel)).Norm(), 1.0)
}

func TestPropagate(t *testing.T) {
	assert := assert.New(t)
	ephs := testConstellation(2200, 345600)[:3]
	weeks := []int{2200, 2200, 2200}
	ttx := []float64{345600, 345610, 345620}

	states, err := Propagate(ephs, weeks, ttx, true)
	require.NoError(t, err)
	require.Len(t, states, 3)
	for i, st := range states {
		assert.Equal(SatPvt(ephs[i], weeks[i], ttx[i]), st)
	}

	states, err = Propagate(ephs, weeks, ttx, false)
	require.NoError(t, err)
	assert.Equal(PosXYZ{}, states[0].Vel)

	_, err = Propagate(ephs, weeks, ttx[:2], false)
	assert.ErrorIs(err, ErrInputShape)
	_, err = Propagate([]*Ephe{nil}, weeks[:1], ttx[:1], false)
	assert.ErrorIs(err, ErrInputShape)
}

func TestFlightTimeCorrection(t *testing.T) {
	assert := assert.New(t)
	p := PosXYZ{15600e3, 7540e3, 20140e3}
	assert.Equal(p, FlightTimeCorrection(p, 0))

	q := FlightTimeCorrection(p, 0.075)
	assert.InDelta(p.Norm(), q.Norm(), 1e-6)
	assert.Equal(p.Z, q.Z)

	// Rotation by WE*dt about Z
	th := WE * 0.075
	assert.InDelta(math.Atan2(p.Y, p.X)-th, math.Atan2(q.Y, q.X), 1e-12)
}
