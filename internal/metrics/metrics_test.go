package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bilidl/internal/model"
)

func TestRecordOutcomeTalliesByStatus(t *testing.T) {
	reg := NewRegistry()
	RecordOutcome(reg, model.StatusCompleted)
	RecordOutcome(reg, model.StatusSkipped)
	RecordOutcome(reg, model.StatusFailed)
	RecordOutcome(reg, model.StatusError)

	require.Equal(t, int64(1), reg.CompletedTasks.Load())
	require.Equal(t, int64(1), reg.SkippedTasks.Load())
	require.Equal(t, int64(2), reg.FailedTasks.Load())
	require.Equal(t, int64(1), reg.SuccessCount.Load())
	require.Equal(t, int64(2), reg.ErrorCount.Load())
}

func TestSuccessRateWithNoSamplesIsOne(t *testing.T) {
	reg := NewRegistry()
	require.Equal(t, 1.0, reg.SuccessRate())
}

func TestSuccessRateComputesRatio(t *testing.T) {
	reg := NewRegistry()
	RecordOutcome(reg, model.StatusCompleted)
	RecordOutcome(reg, model.StatusCompleted)
	RecordOutcome(reg, model.StatusCompleted)
	RecordOutcome(reg, model.StatusFailed)
	require.InDelta(t, 0.75, reg.SuccessRate(), 0.0001)
}

func TestObserveTaskKindCountsPerKind(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveTaskKind(model.KindVideo)
	reg.ObserveTaskKind(model.KindVideo)
	reg.ObserveTaskKind(model.KindAudio)

	require.Equal(t, int64(2), reg.TaskKindCount(model.KindVideo))
	require.Equal(t, int64(1), reg.TaskKindCount(model.KindAudio))
	require.Equal(t, int64(0), reg.TaskKindCount(model.KindDanmaku))
}

func TestObserveDurationBucketsByStage(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveDuration(0.4, false)
	reg.ObserveDuration(100, true)

	require.Equal(t, int64(1), reg.DownloadLatencyBuckets[0].Load())
	require.Equal(t, int64(1), reg.PostProcessLatencyBuckets[9].Load())
}
