// Package metrics tracks run-level counters for the optional status
// surface (internal/rpcstub), generalized from the teacher's
// conversion-specific Registry to the work-item-kind buckets spec §4.7's
// download core and §4.8's post-processor actually produce.
package metrics

import (
	"sync/atomic"
	"time"

	"bilidl/internal/model"
)

// Registry is process-wide and safe for concurrent use; every field is an
// atomic counter or a fixed-size histogram.
type Registry struct {
	ActiveTasks    atomic.Int64
	QueuedTasks    atomic.Int64
	CompletedTasks atomic.Int64
	SkippedTasks   atomic.Int64
	FailedTasks    atomic.Int64
	Workers        atomic.Int64
	ConcurrencyCap atomic.Int64
	RateLimit      atomic.Int64
	UptimeStart    time.Time
	SuccessCount   atomic.Int64
	ErrorCount     atomic.Int64
	SessionsActive atomic.Int64

	// Per-kind task counters, indexed by model.WorkItemKind - 1.
	byKind [7]atomic.Int64

	// Fixed-bucket latency histograms, one per pipeline stage.
	DownloadLatencyBuckets    [10]atomic.Int64
	PostProcessLatencyBuckets [10]atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{UptimeStart: time.Now()}
}

// ObserveTaskKind increments the per-kind counter for a finished work item.
func (r *Registry) ObserveTaskKind(kind model.WorkItemKind) {
	idx := int(kind) - 1
	if idx < 0 || idx >= len(r.byKind) {
		return
	}
	r.byKind[idx].Add(1)
}

// TaskKindCount returns the running count for kind.
func (r *Registry) TaskKindCount(kind model.WorkItemKind) int64 {
	idx := int(kind) - 1
	if idx < 0 || idx >= len(r.byKind) {
		return 0
	}
	return r.byKind[idx].Load()
}

// ObserveDuration records duration seconds into fixed buckets
// (0.5,1,2,3,5,8,13,21,34,55+), isPostProcess selecting which histogram.
func (r *Registry) ObserveDuration(seconds float64, isPostProcess bool) {
	buckets := []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55}
	idx := len(buckets) - 1
	for i, b := range buckets {
		if seconds <= b {
			idx = i
			break
		}
	}
	if isPostProcess {
		r.PostProcessLatencyBuckets[idx].Add(1)
	} else {
		r.DownloadLatencyBuckets[idx].Add(1)
	}
}

func (r *Registry) SuccessRate() float64 {
	s := r.SuccessCount.Load()
	e := r.ErrorCount.Load()
	t := s + e
	if t == 0 {
		return 1.0
	}
	return float64(s) / float64(t)
}

func (r *Registry) UptimeSeconds() int64 {
	return int64(time.Since(r.UptimeStart).Seconds())
}

// RecordOutcome folds a finished task's terminal status into the registry's
// completed/skipped/failed counters plus the success/error tally.
func RecordOutcome(r *Registry, status model.TaskStatusKind) {
	switch status {
	case model.StatusCompleted:
		r.CompletedTasks.Add(1)
		r.SuccessCount.Add(1)
	case model.StatusSkipped:
		r.SkippedTasks.Add(1)
	case model.StatusFailed, model.StatusError:
		r.FailedTasks.Add(1)
		r.ErrorCount.Add(1)
	}
}
