// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package rawpvt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveParallelMatchesSequential(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)
	meas, err := ProcessRaw(s.rawLog(8), nil)
	require.NoError(t, err)
	solver := NewSolver(s.nav(), nil, nil)

	seq := solver.SolveAll(meas)
	for _, workers := range []int{1, 3, 16} {
		par, err := solver.SolveParallel(context.Background(), meas, workers)
		require.NoError(t, err)
		require.Len(t, par, len(seq))
		for i := range seq {
			require.True(t, par[i].Valid)
			assert.InDelta(seq[i].FctSeconds, par[i].FctSeconds, 0)
			assert.InDelta(0, par[i].Xyz.Sub(seq[i].Xyz).Norm(), 0.01)
			assert.InDelta(seq[i].ClkBiasM, par[i].ClkBiasM, 0.01)
			assert.InDelta(seq[i].Hdop, par[i].Hdop, 1e-6)
		}
	}
}

func TestSolveParallelEmpty(t *testing.T) {
	solver := NewSolver(NewNav(nil), nil, nil)
	out, err := solver.SolveParallel(context.Background(), &Meas{Sats: NewSatIndex(nil)}, 4)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSolveParallelCanceled(t *testing.T) {
	s := newScenario(t)
	meas, err := ProcessRaw(s.rawLog(20), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := NewSolver(s.nav(), nil, nil).SolveParallel(ctx, meas, 2)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, out, 20)
	for i, e := range out {
		assert.InDelta(t, s.fct(i), e.FctSeconds, 1e-6)
		if !e.Valid {
			assert.Equal(t, SKIP_CANCELED, e.Skip)
			assert.ErrorIs(t, e.Err, context.Canceled)
		}
	}
}
