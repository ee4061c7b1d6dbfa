// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.12
//

package rawpvt

import "errors"

// Fatal precondition failures abort the run.
var (
	ErrRange               = errors.New("time out of range")
	ErrInputShape          = errors.New("mismatched input lengths")
	ErrMissingField        = errors.New("missing required raw field")
	ErrClockSign           = errors.New("inconsistent FullBiasNanos sign")
	ErrAllFiltered         = errors.New("all measurements filtered")
	ErrClockNotReady       = errors.New("receiver clock not ready")
	ErrDiscontinuity       = errors.New("inconsistent HardwareClockDiscontinuityCount within epoch")
	ErrNoReferencePosition = errors.New("reference position is required")
)

// Per-epoch and per-satellite failures. These never abort a run.
var (
	ErrNoEphemeris        = errors.New("no valid ephemeris")
	ErrWeekRollover       = errors.New("failed to correct week rollover")
	ErrWlsNotConverged    = errors.New("wls did not converge")
	ErrDegenerateGeometry = errors.New("degenerate satellite geometry")
)
