package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bilidl/internal/config"
	"bilidl/internal/httpclient"
	"bilidl/internal/model"
)

func testCore(t *testing.T) *Core {
	t.Helper()
	client, err := httpclient.New()
	require.NoError(t, err)
	cfg := &config.Config{OutputDir: t.TempDir(), Concurrency: 2, MaxStreamAttempts: 1}
	return NewCore(client, cfg, slog.Default())
}

func TestSubmitInformationalItemSkipsWithoutNetwork(t *testing.T) {
	core := testCore(t)
	prog, err := core.Submit(context.Background(), model.WorkItem{Kind: model.KindOther, Name: "warning", Desc: "quality fell back"})
	require.NoError(t, err)
	rec := prog.Get()
	require.Equal(t, model.StatusSkipped, rec.Status.Kind)
	require.Equal(t, "quality fell back", rec.Status.Reason)
}

func TestBinaryStreamDownloadsFullBody(t *testing.T) {
	const payload = "the quick brown fox jumps over the lazy dog"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	core := testCore(t)
	dest := filepath.Join(core.cfg.OutputDir, "out.bin")
	prog, err := core.Submit(context.Background(), model.WorkItem{Kind: model.KindVideo, URL: srv.URL, OutputPath: dest})
	require.NoError(t, err)
	rec := prog.Get()
	require.Equal(t, model.StatusCompleted, rec.Status.Kind)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, string(got))
}

func TestBinaryStreamResumesFromExistingBytes(t *testing.T) {
	const full = "0123456789ABCDEF"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.Write([]byte(full))
			return
		}
		var start int
		_, err := fmt.Sscanf(rng, "bytes=%d-", &start)
		require.NoError(t, err)
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[start:]))
	}))
	defer srv.Close()

	core := testCore(t)
	dest := filepath.Join(core.cfg.OutputDir, "resume.bin")
	require.NoError(t, os.WriteFile(dest, []byte(full[:8]), 0o644))

	prog, err := core.Submit(context.Background(), model.WorkItem{Kind: model.KindVideo, URL: srv.URL, OutputPath: dest})
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, prog.Get().Status.Kind)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, full, string(got))
}

func TestBinaryStreamForbiddenIsSkippedNotFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	core := testCore(t)
	dest := filepath.Join(core.cfg.OutputDir, "forbidden.bin")
	prog, err := core.Submit(context.Background(), model.WorkItem{Kind: model.KindVideo, URL: srv.URL, OutputPath: dest})
	require.NoError(t, err)
	require.Equal(t, model.StatusSkipped, prog.Get().Status.Kind)
}

func TestTaskStatusNeverLeavesTerminalState(t *testing.T) {
	prog := model.NewSyncProgress(model.DownloadProgress{Status: model.TaskStatus{Kind: model.StatusCompleted}})
	ok := prog.SetStatus(model.TaskStatus{Kind: model.StatusFailed, Reason: "late retry"})
	require.False(t, ok)
	require.Equal(t, model.StatusCompleted, prog.Get().Status.Kind)
}
