// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

package rawpvt

import (
	"encoding/json"
	"io"
	"sync"

	"golang.org/x/exp/maps"
)

// Kinds of soft numerical warnings
const (
	WARN_KEPLER       = "kepler_not_converged"
	WARN_FIT_INTERVAL = "outside_fit_interval"
	WARN_FLIPPED_BIAS = "full_bias_sign_flipped"
)

// WarnTally counts warnings by kind. Safe for concurrent use.
type WarnTally struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewWarnTally() *WarnTally {
	return &WarnTally{counts: map[string]int{}}
}

func (t *WarnTally) Add(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[kind]++
}

// Counts returns a copy of the counts
func (t *WarnTally) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.counts)
}

// Skip record of one epoch
type EpochSkip struct {
	FctSeconds float64    `json:"fct_seconds"`
	Reason     SkipReason `json:"reason"`
	Error      string     `json:"error,omitempty"`
}

// Diagnostics is the structured report of a run
type Diagnostics struct {
	RunID         string         `json:"run_id"`
	MissingFields []string       `json:"missing_fields,omitempty"`
	Align         AlignStats     `json:"align"`
	Epochs        int            `json:"epochs"`
	Solved        int            `json:"solved"`
	Skips         map[string]int `json:"skips"`
	EpochSkips    []EpochSkip    `json:"epoch_skips,omitempty"`
	Warnings      map[string]int `json:"warnings"`
	AdrRefSvid    int            `json:"adr_ref_svid,omitempty"`
	AdrEpochs     int            `json:"adr_epochs"`
	RefError      *RefErrorStats `json:"ref_error,omitempty"`
	Error         string         `json:"error,omitempty"`
}

func newDiagnostics(runID string) *Diagnostics {
	return &Diagnostics{
		RunID:    runID,
		Skips:    map[string]int{},
		Warnings: map[string]int{},
	}
}

// Record the outcome of every epoch
func (d *Diagnostics) addEstimates(ests []PvtEstimate) {
	d.Epochs = len(ests)
	for _, e := range ests {
		if e.Valid {
			d.Solved++
			continue
		}
		d.Skips[string(e.Skip)]++
		s := EpochSkip{FctSeconds: e.FctSeconds, Reason: e.Skip}
		if e.Err != nil {
			s.Error = e.Err.Error()
		}
		d.EpochSkips = append(d.EpochSkips, s)
	}
}

// WriteJSON writes the report as indented JSON
func (d *Diagnostics) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
