// Package downloader implements the bounded-concurrency download core of
// spec §4.7: a task table keyed by opaque id, a semaphore-gated worker
// pool adapted from the teacher's priority job queue (internal/queue) to
// per-task retry scheduling, and three download strategies (BinaryStream,
// TextContent, Image) dispatched by model.WorkItemKind.
package downloader

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"bilidl/internal/bilierr"
	"bilidl/internal/config"
	"bilidl/internal/httpclient"
	"bilidl/internal/model"
)

// strategy is a download method keyed by model.WorkItemKind.
type strategy interface {
	run(ctx context.Context, core *Core, item model.WorkItem, prog *model.SyncProgress) error
}

// Core owns the task table and the concurrency semaphore every Submit call
// draws a permit from. Safe for concurrent use.
type Core struct {
	client *httpclient.Client
	cfg    *config.Config
	log    *slog.Logger

	sem chan struct{}

	mu    sync.Mutex
	tasks map[string]*model.SyncProgress
}

// NewCore builds a Core bounded by cfg.Concurrency concurrent transfers.
func NewCore(client *httpclient.Client, cfg *config.Config, log *slog.Logger) *Core {
	if log == nil {
		log = slog.Default()
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = 1
	}
	return &Core{
		client: client,
		cfg:    cfg,
		log:    log,
		sem:    make(chan struct{}, n),
		tasks:  make(map[string]*model.SyncProgress),
	}
}

// strategyFor dispatches on WorkItemKind per spec §4.7.
func strategyFor(kind model.WorkItemKind) strategy {
	switch kind {
	case model.KindDanmaku, model.KindSubtitle:
		return textContentStrategy{}
	case model.KindCoverImage:
		return imageStrategy{}
	default:
		return binaryStreamStrategy{}
	}
}

// Submit registers item under a fresh task id and downloads it, blocking
// until the attempt sequence reaches a terminal state or ctx is canceled.
// Informational items (no URL, e.g. a stream-selector warning) are recorded
// Skipped without ever touching the network.
func (c *Core) Submit(ctx context.Context, item model.WorkItem) (*model.SyncProgress, error) {
	taskID := uuid.NewString()

	rec := model.DownloadProgress{
		TaskID: taskID, URL: item.URL, OutputPath: item.OutputPath,
		Status: model.TaskStatus{Kind: model.StatusQueued},
	}
	prog := model.NewSyncProgress(rec)

	c.mu.Lock()
	if _, exists := c.tasks[taskID]; exists {
		c.mu.Unlock()
		return nil, bilierr.ErrTaskAlreadyExists
	}
	c.tasks[taskID] = prog
	c.mu.Unlock()

	if item.URL == "" {
		prog.SetStatus(model.TaskStatus{Kind: model.StatusSkipped, Reason: item.Desc})
		return prog, nil
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		prog.SetStatus(model.TaskStatus{Kind: model.StatusError, Reason: ctx.Err().Error()})
		return prog, ctx.Err()
	}
	defer func() { <-c.sem }()

	prog.SetStatus(model.TaskStatus{Kind: model.StatusDownloading})
	strat := strategyFor(item.Kind)
	err := strat.run(ctx, c, item, prog)
	finalize(prog, err, c.log)
	return prog, nil
}

// RunAll submits every item concurrently (within the shared semaphore) and
// waits for all of them to reach a terminal state.
func (c *Core) RunAll(ctx context.Context, items []model.WorkItem) []*model.SyncProgress {
	out := make([]*model.SyncProgress, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item model.WorkItem) {
			defer wg.Done()
			prog, err := c.Submit(ctx, item)
			if err != nil && prog == nil {
				rec := model.DownloadProgress{URL: item.URL, OutputPath: item.OutputPath,
					Status: model.TaskStatus{Kind: model.StatusError, Reason: err.Error()}}
				prog = model.NewSyncProgress(rec)
			}
			out[i] = prog
		}(i, item)
	}
	wg.Wait()
	return out
}

// Task returns the progress record for a previously submitted task id.
func (c *Core) Task(taskID string) (*model.SyncProgress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prog, ok := c.tasks[taskID]
	return prog, ok
}

// finalize records the terminal status a strategy's error implies. A nil
// error means Completed. bilierr.RateLimited is terminal-but-not-a-failure
// (Skipped, per spec §7): the session cannot access the resource and
// retrying would not help.
func finalize(prog *model.SyncProgress, err error, log *slog.Logger) {
	switch {
	case err == nil:
		prog.SetStatus(model.TaskStatus{Kind: model.StatusCompleted})
	case bilierr.IsRateLimited(err):
		prog.SetStatus(model.TaskStatus{Kind: model.StatusSkipped, Reason: err.Error()})
		log.Warn("download skipped: rate limited or forbidden", "task", prog.Get().TaskID, "error", err)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		prog.SetStatus(model.TaskStatus{Kind: model.StatusError, Reason: err.Error()})
		log.Error("download aborted", "task", prog.Get().TaskID, "error", err)
	default:
		prog.SetStatus(model.TaskStatus{Kind: model.StatusFailed, Reason: err.Error()})
		log.Error("download failed", "task", prog.Get().TaskID, "error", err)
	}
}
