package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"bilidl/internal/bilierr"
	"bilidl/internal/model"
)

// binaryStreamStrategy downloads Video/Audio/ProgressiveVideo/Other work
// items with byte-range resume, a per-chunk inactivity timeout and bounded
// retry, grounded on original_source's downloader/core.rs BinaryStream
// path. RateLimited (403/429/401) is terminal: the caller marks it Skipped
// rather than retrying, since retrying a forbidden resource never helps.
type binaryStreamStrategy struct{}

const chunkSize = 32 * 1024

func (binaryStreamStrategy) run(ctx context.Context, core *Core, item model.WorkItem, prog *model.SyncProgress) error {
	dest := item.OutputPath
	if dest == "" {
		dest = filepath.Join(core.cfg.OutputDir, item.Name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("binary stream: creating output directory: %w", err)
	}

	maxAttempts := core.cfg.MaxStreamAttempts
	if maxAttempts <= 0 {
		maxAttempts = 20
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start, err := existingSize(dest)
		if err != nil {
			return fmt.Errorf("binary stream: stat %s: %w", dest, err)
		}
		prog.ResetForAttempt(start)

		err = attemptBinary(ctx, core, item.URL, dest, start, item.Kind, core.cfg.ChunkInactivity, prog)
		if err == nil {
			return nil
		}
		if bilierr.IsRateLimited(err) {
			return err // terminal; caller records Skipped, not Failed
		}
		lastErr = err
		core.log.Warn("binary stream attempt failed, retrying", "url", item.URL, "attempt", attempt, "error", err)

		backoff := backoffFor(attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("binary stream: exhausted %d attempts: %w", maxAttempts, lastErr)
}

// backoffFor grows linearly with a 2s step and caps at 30s, favoring quick
// retries for transient network blips without hammering the CDN.
func backoffFor(attempt int) time.Duration {
	d := time.Duration(attempt) * 2 * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func existingSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func attemptBinary(ctx context.Context, core *Core, url, dest string, start int64, kind model.WorkItemKind, inactivity time.Duration, prog *model.SyncProgress) error {
	// Audio CDNs reject a non-ranged GET outright, so force bytes=0- even on
	// a fresh download.
	forceRange := kind == model.KindAudio
	resp, err := core.client.GetStream(ctx, url, start, forceRange)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		return &bilierr.InvalidState{Reason: "range not satisfiable; destination may already be complete or corrupt"}
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusUnauthorized:
		return &bilierr.RateLimited{Reason: fmt.Sprintf("http %d streaming %s", resp.StatusCode, url)}
	default:
		if resp.StatusCode >= 500 {
			return bilierr.ErrRetryLater
		}
		return &bilierr.StreamError{Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if resp.StatusCode == http.StatusPartialContent && start > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
		start = 0
	}
	f, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return fmt.Errorf("binary stream: opening %s: %w", dest, err)
	}
	defer f.Close()

	if total := resp.ContentLength; total > 0 {
		prog.SetTotalSize(start + total)
	}

	return copyWithInactivityTimeout(ctx, f, resp.Body, start, inactivity, prog)
}

// copyWithInactivityTimeout copies src to dst in fixed chunks, failing with
// StreamError if no bytes arrive within timeout (spec's 60s default), or if
// the stream closes clean (io.EOF) before TotalSize bytes were written.
func copyWithInactivityTimeout(ctx context.Context, dst *os.File, src io.Reader, start int64, timeout time.Duration, prog *model.SyncProgress) error {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	type readResult struct {
		n   int
		err error
	}

	buf := make([]byte, chunkSize)
	written := start
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		resultCh := make(chan readResult, 1)
		go func() {
			n, err := src.Read(buf)
			resultCh <- readResult{n, err}
		}()

		select {
		case res := <-resultCh:
			if res.n > 0 {
				if _, werr := dst.Write(buf[:res.n]); werr != nil {
					return fmt.Errorf("binary stream: writing chunk: %w", werr)
				}
				written += int64(res.n)
				prog.SetDownloaded(written)
			}
			if res.err == io.EOF {
				if total := prog.Get().TotalSize; total > 0 && written < total {
					if serr := dst.Sync(); serr != nil {
						return fmt.Errorf("binary stream: fsync %s: %w", dst.Name(), serr)
					}
					return &bilierr.StreamError{Reason: fmt.Sprintf("incomplete: %d/%d", written, total)}
				}
				return nil
			}
			if res.err != nil {
				return &bilierr.StreamError{Reason: res.err.Error()}
			}
		case <-time.After(timeout):
			return &bilierr.StreamError{Reason: "no data received within inactivity timeout"}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
