// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.17
//

package rawpvt

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Pipeline runs alignment, PVT and carrier residuals over one raw log
type Pipeline struct {
	cfg     *Config
	nav     *Nav
	logger  *slog.Logger
	metrics *Metrics
}

// NewPipeline creates a pipeline. nil cfg and logger take defaults, nil metrics disables them.
func NewPipeline(nav *Nav, cfg *Config, logger *slog.Logger, metrics *Metrics) *Pipeline {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{cfg: cfg, nav: nav, logger: logger, metrics: metrics}
}

// Output of a run
type Result struct {
	Meas *Meas
	Pvt  []PvtEstimate // One entry per epoch
	Adr  *AdrResiduals // nil when carrier residuals are disabled
	// NED error of each epoch against the reference position. nil without a reference.
	RefErrNed []PosNED
	Diag *Diagnostics
}

// Run processes a raw log. On a fatal error the returned Result carries the
// diagnostics gathered so far.
func (p *Pipeline) Run(ctx context.Context, l *RawLog) (*Result, error) {
	diag := newDiagnostics(uuid.NewString())
	res := &Result{Diag: diag}
	logger := p.logger.With("run_id", diag.RunID)

	fail := func(err error) (*Result, error) {
		diag.Error = err.Error()
		logger.Error("run failed", "error", err)
		return res, err
	}

	ref, err := p.cfg.RefPosition()
	if err != nil {
		return fail(err)
	}

	// The reference position is a precondition of the carrier residuals
	var adr *AdrEngine
	if p.cfg.Adr.Enable {
		if adr, err = NewAdrEngine(p.nav, ref); err != nil {
			return fail(err)
		}
	}

	diag.MissingFields = l.MissingFields()
	meas, err := ProcessRaw(l, &p.cfg.Align)
	if err != nil {
		return fail(err)
	}
	res.Meas = meas
	diag.Align = meas.Stats
	logger.Info("measurements aligned",
		"events", meas.Stats.Filter.Total,
		"kept", meas.Stats.Filter.Kept,
		"epochs", len(meas.Epochs),
		"satellites", meas.Sats.Len(),
	)
	for _, f := range meas.Stats.Clock.Defaulted {
		logger.Warn("raw field missing, defaulted", "field", f)
	}

	solver := NewSolver(p.nav, &p.cfg.Pvt, logger)
	if meas.Stats.Clock.FlippedBias {
		solver.Warnings().Add(WARN_FLIPPED_BIAS)
		logger.Warn("FullBiasNanos positive in every row, sign flipped")
	}

	if p.cfg.Workers > 0 {
		res.Pvt, err = solver.SolveParallel(ctx, meas, p.cfg.Workers)
		if err != nil {
			diag.addEstimates(res.Pvt)
			return fail(err)
		}
	} else {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		res.Pvt = solver.SolveAll(meas)
	}
	diag.addEstimates(res.Pvt)

	if ref != nil {
		res.RefErrNed = PositionErrorsNed(res.Pvt, NewStationaryRef(*ref))
		if st := SummarizeErrors(res.RefErrNed); st.Epochs > 0 {
			diag.RefError = &st
			logger.Info("position error against reference",
				"horizontal_rms_m", st.HorizontalRmsM,
				"vertical_rms_m", st.VerticalRmsM,
			)
		}
	}

	if adr != nil {
		res.Adr, err = adr.Process(meas)
		if err != nil {
			return fail(err)
		}
		diag.AdrRefSvid = res.Adr.RefSvid
		diag.AdrEpochs = len(res.Adr.Epochs)
		if res.Adr.Empty() {
			logger.Info("no carrier phase data")
		}
	}

	diag.Warnings = solver.Warnings().Counts()
	if p.metrics != nil {
		p.metrics.observe(res.Pvt, diag.Warnings, diag.AdrEpochs)
	}
	logger.Info("run complete", "epochs", diag.Epochs, "solved", diag.Solved)
	return res, nil
}
