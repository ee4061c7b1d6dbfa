// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.14
//

package rawpvt

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Solve the observation equation using weighted least squares
// - dx = (G^t W G)^-1 G^t W dr
// - Return the error covariance matrix (G^t W G)^-1 as cov
func SolveLS(G mat.Matrix, dr mat.Vector, W mat.Matrix) (dx mat.Vector, cov mat.Matrix, err error) {

	n1, m1 := G.Dims()
	n2, m2 := W.Dims()
	if n1 != n2 {
		return nil, nil, fmt.Errorf("%w: G^T(%d x %d), W(%d x %d)", ErrInputShape, m1, n1, n2, m2)
	}
	l1 := dr.Len()
	if l1 != m2 {
		return nil, nil, fmt.Errorf("%w: W(%d x %d), dr(%d x 1)", ErrInputShape, n2, m2, l1)
	}

	// A (G^t W G)
	var WG mat.Dense
	WG.Mul(W, G)
	var A mat.Dense
	A.Mul(G.T(), &WG)

	// b (G^t W dr)
	var GtW mat.Dense
	GtW.Mul(G.T(), W)
	var b mat.VecDense
	b.MulVec(&GtW, dr)

	// Solve for x (x = A^-1 b)
	var x mat.VecDense
	err = x.SolveVec(&A, &b)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}
	dx = &x

	// Set (G^T W G)^-1 as the covariance matrix
	var c mat.Dense
	err = c.Inverse(&A)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}
	cov = &c

	return
}

// NormalCov returns (G^t W G)^-1. W nil means the identity.
func NormalCov(G mat.Matrix, W mat.Matrix) (*mat.Dense, error) {
	var A mat.Dense
	if W == nil {
		A.Mul(G.T(), G)
	} else {
		var WG mat.Dense
		WG.Mul(W, G)
		A.Mul(G.T(), &WG)
	}
	var c mat.Dense
	if err := c.Inverse(&A); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}
	return &c, nil
}

// Weight matrix W = Wx^t Wx for Wx = diag(1/sigma)
func sigmaWeights(sigma []float64) *mat.DiagDense {
	w := make([]float64, len(sigma))
	for i, s := range sigma {
		w[i] = 1 / (s * s)
	}
	return mat.NewDiagDense(len(w), w)
}

// Express the position columns of an n x 4 geometry matrix in NED
// - Hned = [H(:,0:3) * R^t, 1]
func nedGeometry(H *mat.Dense, rot mat.Matrix) *mat.Dense {
	n, _ := H.Dims()
	Hned := mat.NewDense(n, 4, nil)
	var p mat.Dense
	p.Mul(H.Slice(0, n, 0, 3), rot.T())
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			Hned.Set(i, j, p.At(i, j))
		}
		Hned.Set(i, 3, H.At(i, 3))
	}
	return Hned
}

// Print the equations at debug level 4
func printLS(G mat.Matrix, dr mat.Vector, W mat.Matrix) {
	if DBG_ >= 4 {
		PrintA("G=\n")
		PrintMat(G)
		PrintA("dr=\n")
		PrintMat(dr)
		PrintA("W=\n")
		PrintMat(W)
	}
}
