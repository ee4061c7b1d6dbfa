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
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//-------------------------------------------------------------------
// PosLLH
//-------------------------------------------------------------------

// Geodetic position. Lat and Lon in radians, Hei in meters.
type PosLLH struct {
	Lat float64
	Lon float64
	Hei float64
}

func NewPosLLH(lat, lon, hei float64) *PosLLH {
	return &PosLLH{
		Lat: lat,
		Lon: lon,
		Hei: hei,
	}
}

// NewPosLLHDeg is NewPosLLH taking degrees
func NewPosLLHDeg(latDeg, lonDeg, hei float64) *PosLLH {
	return NewPosLLH(ToRad(latDeg), ToRad(lonDeg), hei)
}

func (llh *PosLLH) ToXYZ() PosXYZ {
	// Ellipsoid parameters
	f := Fe                     // Flattening
	a := Re                     // Semi-major axis
	e := math.Sqrt(f * (2 - f)) // Eccentricity

	// Conversion to Cartesian coordinates
	n := a / math.Sqrt(1-e*e*math.Sin(llh.Lat)*math.Sin(llh.Lat))
	return PosXYZ{
		X: (n + llh.Hei) * math.Cos(llh.Lat) * math.Cos(llh.Lon),
		Y: (n + llh.Hei) * math.Cos(llh.Lat) * math.Sin(llh.Lon),
		Z: (n*(1-e*e) + llh.Hei) * math.Sin(llh.Lat),
	}
}

// Read from string "lat lon hei" (degrees, degrees, meters)
func (llh *PosLLH) Set(s string) error {
	var err error
	f := strings.Fields(s)
	if len(f) != 3 {
		return fmt.Errorf("position needs \"lat lon hei\": %q", s)
	}
	llh.Lat, err = strconv.ParseFloat(f[0], 64)
	if err != nil {
		return err
	}
	llh.Lon, err = strconv.ParseFloat(f[1], 64)
	if err != nil {
		return err
	}
	llh.Hei, err = strconv.ParseFloat(f[2], 64)
	if err != nil {
		return err
	}
	llh.Lat *= math.Pi / 180
	llh.Lon *= math.Pi / 180
	return nil
}

// Convert to string (degrees)
func (llh *PosLLH) String() string {
	if llh == nil {
		return ""
	}
	return fmt.Sprintf("%.8f %.8f %.4f", ToDeg(llh.Lat), ToDeg(llh.Lon), llh.Hei)
}

// RotEcefToNed returns the 3x3 rotation from ECEF to local north-east-down at llh
func (llh *PosLLH) RotEcefToNed() *mat.Dense {
	sl := math.Sin(llh.Lat)
	cl := math.Cos(llh.Lat)
	so := math.Sin(llh.Lon)
	co := math.Cos(llh.Lon)
	return mat.NewDense(3, 3, []float64{
		-sl * co, -sl * so, cl,
		-so, co, 0,
		-cl * co, -cl * so, -sl,
	})
}

//-------------------------------------------------------------------
// PosXYZ
//-------------------------------------------------------------------

// ECEF position or vector [m]
type PosXYZ struct {
	X float64
	Y float64
	Z float64
}

func (pos *PosXYZ) ToLLH() PosLLH {
	// In case of origin
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return PosLLH{Lat: 0, Lon: 0, Hei: -Re}
	}

	// Ellipsoid parameters
	f := Fe                     // Flattening
	a := Re                     // Semi-major axis
	b := a * (1 - f)            // Semi-minor axis
	e := math.Sqrt(f * (2 - f)) // Eccentricity

	// Parameters for coordinate transformation
	h := a*a - b*b
	p := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y)
	t := math.Atan2(pos.Z*a, p*b)
	sint := math.Sin(t)
	cost := math.Cos(t)

	// Conversion to latitude and longitude
	lat := math.Atan2(pos.Z+h/b*sint*sint*sint, p-h/a*cost*cost*cost)
	lon := math.Atan2(pos.Y, pos.X)
	n := a / math.Sqrt(1-e*e*math.Sin(lat)*math.Sin(lat)) // Radius of curvature in the prime vertical
	hei := p/math.Cos(lat) - n
	return PosLLH{Lat: lat, Lon: lon, Hei: hei}
}

// Rotate an ECEF vector into NED at llh
func (v PosXYZ) ToNED(llh PosLLH) PosNED {
	var n mat.VecDense
	n.MulVec(llh.RotEcefToNed(), mat.NewVecDense(3, v.Slice()))
	return PosNED{N: n.AtVec(0), E: n.AtVec(1), D: n.AtVec(2)}
}

func (a PosXYZ) Sub(b PosXYZ) PosXYZ {
	return PosXYZ{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func (a PosXYZ) Add(b PosXYZ) PosXYZ {
	return PosXYZ{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

func (a PosXYZ) Dot(b PosXYZ) float64 {
	return floats.Dot(a.Slice(), b.Slice())
}

func (a PosXYZ) Norm() float64 {
	return floats.Norm(a.Slice(), 2)
}

func (a PosXYZ) Slice() []float64 {
	return []float64{a.X, a.Y, a.Z}
}

func (a PosXYZ) IsNaN() bool {
	return math.IsNaN(a.X) || math.IsNaN(a.Y) || math.IsNaN(a.Z)
}

// Position with every component NaN
func NaNXYZ() PosXYZ {
	return PosXYZ{math.NaN(), math.NaN(), math.NaN()}
}

//-------------------------------------------------------------------
// PosNED
//-------------------------------------------------------------------

// Local north-east-down vector [m] or [m/s]
type PosNED struct {
	N float64
	E float64
	D float64
}

func (p PosNED) Horizontal() float64 {
	return math.Hypot(p.N, p.E)
}

// Vector with every component NaN
func NaNNED() PosNED {
	return PosNED{math.NaN(), math.NaN(), math.NaN()}
}
