package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"bilidl/internal/bilierr"
	"bilidl/internal/model"
)

// imageStrategy downloads CoverImage items: a raw byte copy, no charset
// handling (the one respect in which it differs from textContentStrategy).
type imageStrategy struct{}

func (imageStrategy) run(ctx context.Context, core *Core, item model.WorkItem, prog *model.SyncProgress) error {
	dest := item.OutputPath
	if dest == "" {
		dest = filepath.Join(core.cfg.OutputDir, item.Name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("image: creating output directory: %w", err)
	}

	resp, err := core.client.GetStream(ctx, item.URL, 0, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusUnauthorized:
		return &bilierr.RateLimited{Reason: fmt.Sprintf("http %d fetching %s", resp.StatusCode, item.URL)}
	default:
		if resp.StatusCode >= 500 {
			return bilierr.ErrRetryLater
		}
		return &bilierr.StreamError{Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("image: creating %s: %w", dest, err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return &bilierr.StreamError{Reason: "copying image body: " + err.Error()}
	}
	prog.SetTotalSize(n)
	prog.SetDownloaded(n)
	return nil
}
