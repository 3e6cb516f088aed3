package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/net/html/charset"

	"bilidl/internal/bilierr"
	"bilidl/internal/model"
)

// textContentStrategy downloads Danmaku/Subtitle items (small XML/ASS
// payloads), transcoding to UTF-8 when the server serves a legacy charset —
// danmaku XML in particular is still commonly served as GBK. No retry loop:
// these are small enough that a single attempt's failure is reported as-is.
type textContentStrategy struct{}

func (textContentStrategy) run(ctx context.Context, core *Core, item model.WorkItem, prog *model.SyncProgress) error {
	dest := item.OutputPath
	if dest == "" {
		dest = filepath.Join(core.cfg.OutputDir, item.Name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("text content: creating output directory: %w", err)
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

	reader, enc, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return &bilierr.StreamError{Reason: "charset detection: " + err.Error()}
	}
	_ = enc

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("text content: creating %s: %w", dest, err)
	}
	defer f.Close()

	n, err := io.Copy(f, reader)
	if err != nil {
		return &bilierr.StreamError{Reason: "copying decoded body: " + err.Error()}
	}
	prog.SetTotalSize(n)
	prog.SetDownloaded(n)
	return nil
}
