// Package orchestrator drives the classify -> resolve -> download ->
// post-process sequence of spec §4, collapsed from the teacher's async
// HTTP handler flow (internal/handlers/api.go) into a single synchronous
// driver a CLI entrypoint calls once per run.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"bilidl/internal/classify"
	"bilidl/internal/config"
	"bilidl/internal/downloader"
	"bilidl/internal/httpclient"
	"bilidl/internal/model"
	"bilidl/internal/postprocess"
	"bilidl/internal/resolver"
)

var filenameSanitizer = regexp.MustCompile(`[/\\:*?"<>|]`)

// Outcome is the run's final accounting, used to decide the process exit
// code (spec §7's Scenario 6 policy).
type Outcome struct {
	Title          string
	RequestedCount int
	CompletedCount int
	SkippedCount   int
	FailedCount    int
	Downloads      []*model.SyncProgress
	PostProcessed  []postprocess.Result
}

// Failed reports whether this run should exit non-zero: at least one
// requested item ended Failed/Error, or zero requested items completed at
// all (a fully-skipped season, e.g. everything geo-blocked, is a failure
// even though no individual item technically "failed").
func (o Outcome) Failed() bool {
	if o.FailedCount > 0 {
		return true
	}
	return o.RequestedCount > 0 && o.CompletedCount == 0
}

// Run executes one full download for cfg.URL against client, the control
// plane described by cfg (quality, parts, need flags, concurrency).
func Run(ctx context.Context, client *httpclient.Client, cfg *config.Config, log *slog.Logger) (Outcome, error) {
	if log == nil {
		log = slog.Default()
	}

	kind, err := classify.Classify(ctx, cfg.URL, client)
	if err != nil {
		return Outcome{}, fmt.Errorf("classify: %w", err)
	}

	meta, err := resolver.Dispatch(ctx, client, kind, cfg)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve: %w", err)
	}

	assignOutputPaths(cfg, &meta)

	core := downloader.NewCore(client, cfg, log)
	downloads := core.RunAll(ctx, meta.Items)

	outcome := Outcome{Title: meta.Title, Downloads: downloads}
	for _, d := range downloads {
		if d == nil {
			continue
		}
		rec := d.Get()
		if rec.URL == "" {
			continue // informational item (e.g. a stream-selector warning), not a requested download
		}
		outcome.RequestedCount++
		switch rec.Status.Kind {
		case model.StatusCompleted:
			outcome.CompletedCount++
		case model.StatusSkipped:
			outcome.SkippedCount++
		default:
			outcome.FailedCount++
		}
	}

	if cfg.Merge {
		proc, err := postprocess.NewProcessor(cfg, log)
		if err != nil {
			log.Warn("postprocess unavailable, leaving streams unmerged", "error", err)
		} else {
			outcome.PostProcessed = proc.Run(ctx, completedItems(meta.Items, downloads))
			for _, r := range outcome.PostProcessed {
				if r.Err != nil {
					log.Error("postprocess failed", "episode", r.EpisodeKey, "error", r.Err)
				}
			}
		}
	}

	return outcome, nil
}

// assignOutputPaths gives every work item a deterministic on-disk path
// under cfg.ConversionsDir before it reaches the downloader, so the
// post-processor can find the same file afterward without re-deriving it
// from the item's name.
func assignOutputPaths(cfg *config.Config, meta *model.ParsedMeta) {
	for i := range meta.Items {
		item := &meta.Items[i]
		if item.OutputPath != "" || item.URL == "" {
			continue
		}
		sub := item.EpisodeKey
		if sub == "" {
			sub = "misc"
		}
		item.OutputPath = filepath.Join(cfg.ConversionsDir, sanitizeDir(sub), item.Name)
	}
}

func sanitizeDir(s string) string {
	return filenameSanitizer.ReplaceAllString(s, "_")
}

// completedItems filters items down to those whose download actually
// finished, so postprocess never tries to remux a half-written file.
func completedItems(items []model.WorkItem, downloads []*model.SyncProgress) []model.WorkItem {
	var out []model.WorkItem
	for i, item := range items {
		if item.URL == "" {
			continue
		}
		if i >= len(downloads) || downloads[i] == nil {
			continue
		}
		if downloads[i].Get().Status.Kind != model.StatusCompleted {
			continue
		}
		out = append(out, item)
	}
	return out
}
