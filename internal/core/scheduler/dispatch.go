// Package scheduler provides the pure dispatch arithmetic and job history
// rules used by the build queue.
// This is part of the Functional Core - all functions are pure with no I/O.
package scheduler

import (
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// HistoryLimit is the number of finished jobs kept in memory.
const HistoryLimit = 50

// =============================================================================
// Dispatch
// =============================================================================

// DispatchRequest is the queue state observed at one dispatch pass.
type DispatchRequest struct {
	// Limit is the concurrency limit read for this pass
	Limit int

	// Running is the number of jobs currently holding a slot
	Running int

	// Waiting is the number of queued jobs
	Waiting int
}

// Slots returns how many waiting jobs may start now. A limit below one is
// treated as one. Running jobs above the limit are never preempted; the
// result is simply zero until enough of them finish.
func Slots(req DispatchRequest) int {
	limit := EffectiveLimit(req.Limit)
	free := limit - req.Running
	if free <= 0 || req.Waiting <= 0 {
		return 0
	}
	return min(free, req.Waiting)
}

// EffectiveLimit clamps a configured limit to at least one.
func EffectiveLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	return limit
}

// =============================================================================
// History
// =============================================================================

// AppendHistory appends a finished job, dropping the oldest entries beyond
// capacity. The returned slice does not share its backing array with history.
func AppendHistory(history []domain.Job, job domain.Job, capacity int) []domain.Job {
	if capacity < 1 {
		capacity = HistoryLimit
	}
	out := make([]domain.Job, 0, min(len(history)+1, capacity))
	start := 0
	if len(history)+1 > capacity {
		start = len(history) + 1 - capacity
	}
	out = append(out, history[start:]...)
	return append(out, job)
}

// Recent returns up to limit jobs, newest first. A limit of zero or less
// returns every job.
func Recent(history []domain.Job, limit int) []domain.Job {
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Job, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}
	return out
}
