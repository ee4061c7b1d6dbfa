// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

package rawpvt

import (
	"context"
	"sync"
)

// solveJob is one epoch for the worker pool
type solveJob struct {
	idx int
	ep  *EpochObs
}

// solveResult is the solution of one epoch
type solveResult struct {
	idx int
	est PvtEstimate
}

// SolveParallel solves epochs on a fixed number of workers. Every epoch starts from
// the earth centre with zero clock bias and drift, so the result does not depend on
// the order of solving. Epochs not solved before ctx is done are marked canceled and
// ctx.Err() is returned.
func (s *Solver) SolveParallel(ctx context.Context, meas *Meas, workers int) ([]PvtEstimate, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]PvtEstimate, len(meas.Epochs))
	done := make([]bool, len(meas.Epochs))
	if len(meas.Epochs) == 0 {
		return out, nil
	}

	jobs := make(chan solveJob, workers*2)
	results := make(chan solveResult, workers*2)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				est, err := s.SolveEpoch(job.ep, meas.Sats.Svids, PosXYZ{}, 0, 0)
				est.Err = err
				select {
				case results <- solveResult{idx: job.idx, est: est}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs
	go func() {
		defer close(jobs)
		for i, ep := range meas.Epochs {
			select {
			case jobs <- solveJob{idx: i, ep: ep}:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		out[r.idx] = r.est
		done[r.idx] = true
	}

	if err := ctx.Err(); err != nil {
		for i, ep := range meas.Epochs {
			if !done[i] {
				out[i] = newSkippedEstimate(ep.FctSeconds, 0, SKIP_CANCELED)
				out[i].Err = err
			}
		}
		return out, err
	}
	return out, nil
}
