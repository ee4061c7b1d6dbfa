// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package rawpvt

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserve(t *testing.T) {
	assert := assert.New(t)
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	ests := []PvtEstimate{
		{Valid: true, Iterations: 5},
		{Valid: true, Iterations: 1},
		newSkippedEstimate(0, 3, SKIP_TOO_FEW_SATS),
		newSkippedEstimate(1, 0, SKIP_NO_EPHEMERIS),
		newSkippedEstimate(2, 2, SKIP_TOO_FEW_SATS),
	}
	m.observe(ests, map[string]int{WARN_KEPLER: 2}, 7)

	assert.Equal(2.0, testutil.ToFloat64(m.Epochs.WithLabelValues("solved")))
	assert.Equal(3.0, testutil.ToFloat64(m.Epochs.WithLabelValues("skipped")))
	assert.Equal(2.0, testutil.ToFloat64(m.Skips.WithLabelValues(string(SKIP_TOO_FEW_SATS))))
	assert.Equal(1.0, testutil.ToFloat64(m.Skips.WithLabelValues(string(SKIP_NO_EPHEMERIS))))
	assert.Equal(2.0, testutil.ToFloat64(m.Warnings.WithLabelValues(WARN_KEPLER)))
	assert.Equal(7.0, testutil.ToFloat64(m.AdrEpochs))
	assert.Equal(2, testutil.CollectAndCount(m.Skips))
	assert.Equal(1, testutil.CollectAndCount(m.Iterations))

	// Second registration of the same names fails
	_, err = NewMetrics(reg)
	assert.Error(err)

	// Unregistered collectors still count
	m2, err := NewMetrics(nil)
	require.NoError(t, err)
	m2.observe(ests[:1], nil, 0)
	assert.Equal(1.0, testutil.ToFloat64(m2.Epochs.WithLabelValues("solved")))
}
