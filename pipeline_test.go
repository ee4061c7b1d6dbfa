// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package rawpvt

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineRun(t *testing.T) {
	for _, workers := range []int{0, 3} {
		assert := assert.New(t)
		s := newScenario(t)
		cfg := NewConfig()
		cfg.Workers = workers
		m, err := NewMetrics(prometheus.NewRegistry())
		require.NoError(t, err)

		res, err := NewPipeline(s.nav(), cfg, nil, m).Run(context.Background(), s.rawLog(4))
		require.NoError(t, err)
		require.Len(t, res.Pvt, 4)
		assert.Nil(res.Adr)
		for _, e := range res.Pvt {
			require.True(t, e.Valid)
			assert.InDelta(0, e.Xyz.Sub(s.rx).Norm(), 2.0)
		}

		d := res.Diag
		assert.NotEmpty(d.RunID)
		assert.Equal(4, d.Epochs)
		assert.Equal(4, d.Solved)
		assert.Empty(d.EpochSkips)
		assert.Empty(d.Error)
		assert.Equal(4*len(s.vis), d.Align.Filter.Kept)
		assert.Equal(4.0, testutil.ToFloat64(m.Epochs.WithLabelValues("solved")))
	}
}

func TestPipelineReferenceErrors(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)
	cfg := NewConfig()
	cfg.Adr.RefLla = s.llh.String()

	res, err := NewPipeline(s.nav(), cfg, nil, nil).Run(context.Background(), s.rawLog(3))
	require.NoError(t, err)
	assert.Nil(res.Adr)
	require.Len(t, res.RefErrNed, 3)
	for _, e := range res.RefErrNed {
		assert.Less(e.Horizontal(), 2.0)
	}
	require.NotNil(t, res.Diag.RefError)
	assert.Equal(3, res.Diag.RefError.Epochs)
	assert.Less(res.Diag.RefError.HorizontalRmsM, 2.0)

	var buf bytes.Buffer
	require.NoError(t, res.Diag.WriteJSON(&buf))
	assert.Contains(buf.String(), "horizontal_rms_m")

	// No reference, no errors
	res, err = NewPipeline(s.nav(), nil, nil, nil).Run(context.Background(), s.rawLog(1))
	require.NoError(t, err)
	assert.Nil(res.RefErrNed)
	assert.Nil(res.Diag.RefError)

	// Unparsable reference is fatal
	cfg.Adr.RefLla = "37.4 x 0"
	res, err = NewPipeline(s.nav(), cfg, nil, nil).Run(context.Background(), s.rawLog(1))
	assert.Error(err)
	assert.NotEmpty(res.Diag.Error)
}

func TestPipelineAdr(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)
	cfg := NewConfig()
	cfg.Adr.Enable = true

	// Carrier residuals need a reference position
	res, err := NewPipeline(s.nav(), cfg, nil, nil).Run(context.Background(), s.rawLog(2))
	assert.ErrorIs(err, ErrNoReferencePosition)
	require.NotNil(t, res)
	assert.NotEmpty(res.Diag.Error)
	assert.Nil(res.Pvt)

	cfg.Adr.RefLla = s.llh.String()
	l := s.rawLog(3)
	for i := range l.Obs {
		l.Obs[i].AccumulatedDeltaRangeState = ADR_STATE_VALID
		l.Obs[i].AccumulatedDeltaRangeMeters = 1000 + float64(i)
	}
	res, err = NewPipeline(s.nav(), cfg, nil, nil).Run(context.Background(), l)
	require.NoError(t, err)
	require.NotNil(t, res.Adr)
	assert.False(res.Adr.Empty())
	assert.Len(res.Adr.Epochs, 3)
	assert.Equal(res.Adr.RefSvid, res.Diag.AdrRefSvid)
	assert.Equal(3, res.Diag.AdrEpochs)

	// No usable ADR in the log
	res, err = NewPipeline(s.nav(), cfg, nil, nil).Run(context.Background(), s.rawLog(2))
	require.NoError(t, err)
	assert.True(res.Adr.Empty())
	assert.Zero(res.Diag.AdrEpochs)
}

func TestPipelineFailures(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)

	// Clock not ready
	l := s.rawLog(2)
	l.Obs[0].State = STATE_CODE_LOCK
	res, err := NewPipeline(s.nav(), nil, nil, nil).Run(context.Background(), l)
	assert.ErrorIs(err, ErrClockNotReady)
	assert.Nil(res.Meas)
	assert.Contains(res.Diag.Error, ErrClockNotReady.Error())

	// Canceled before solving
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewPipeline(s.nav(), nil, nil, nil).Run(ctx, s.rawLog(2))
	assert.ErrorIs(err, context.Canceled)

	// Skipped epochs are reported, not fatal
	res, err = NewPipeline(NewNav(nil), nil, nil, nil).Run(context.Background(), s.rawLog(2))
	require.NoError(t, err)
	assert.Equal(0, res.Diag.Solved)
	assert.Equal(2, res.Diag.Skips[string(SKIP_NO_EPHEMERIS)])
	require.Len(t, res.Diag.EpochSkips, 2)
	assert.InDelta(s.fct(1), res.Diag.EpochSkips[1].FctSeconds, 1e-6)
}

func TestDiagnosticsWriteJSON(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(t)
	res, err := NewPipeline(NewNav(nil), nil, nil, nil).Run(context.Background(), s.rawLog(1))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, res.Diag.WriteJSON(&buf))
	var v map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v))
	assert.Equal(res.Diag.RunID, v["run_id"])
	assert.Equal(1.0, v["epochs"])
	assert.Contains(v, "align")
	assert.Contains(v["skips"], string(SKIP_NO_EPHEMERIS))
}
