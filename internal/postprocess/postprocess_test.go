package postprocess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"bilidl/internal/bilierr"
	"bilidl/internal/config"
	"bilidl/internal/model"
)

// fakeFFmpeg writes a shell script standing in for ffmpeg: it just creates
// the file named by its last argument, so remux tests don't need a real
// ffmpeg binary on the machine running them.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg script is a shell script")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor arg in \"$@\"; do last=\"$arg\"; done\ntouch \"$last\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func testProcessor(t *testing.T, outputDir string) *Processor {
	t.Helper()
	cfg := &config.Config{OutputDir: outputDir, Concurrency: 2, Merge: true, FFmpegPath: fakeFFmpeg(t)}
	p, err := NewProcessor(cfg, nil)
	require.NoError(t, err)
	return p
}

func TestGroupByEpisodeKey(t *testing.T) {
	items := []model.WorkItem{
		{Kind: model.KindVideo, Name: "ep1.m4s", EpisodeKey: "ep1"},
		{Kind: model.KindAudio, Name: "ep1.m4a", EpisodeKey: "ep1"},
		{Kind: model.KindVideo, Name: "ep2.m4s", EpisodeKey: "ep2"},
	}
	order, groups := Group(items)
	require.Equal(t, []string{"ep1", "ep2"}, order)
	require.Len(t, groups["ep1"], 2)
	require.Len(t, groups["ep2"], 1)
}

func TestGroupFallbackKeyWhenEpisodeKeyEmpty(t *testing.T) {
	items := []model.WorkItem{
		{Kind: model.KindVideo, Name: "clip_video.m4s"},
		{Kind: model.KindAudio, Name: "clip_audio.m4a"},
	}
	order, groups := Group(items)
	require.Equal(t, []string{"clip"}, order)
	require.Len(t, groups["clip"], 2)
}

func TestPlaceCollisionSafeAppendsSuffixOnCollision(t *testing.T) {
	dir := t.TempDir()
	src1 := filepath.Join(dir, "src1.mp4")
	require.NoError(t, os.WriteFile(src1, []byte("a"), 0o644))
	out1, err := placeCollisionSafe(src1, dir, "ep1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ep1.mp4"), out1)

	src2 := filepath.Join(dir, "src2.mp4")
	require.NoError(t, os.WriteFile(src2, []byte("b"), 0o644))
	out2, err := placeCollisionSafe(src2, dir, "ep1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ep1_1.mp4"), out2)
}

func TestPlaceCollisionSafeMissingSourceIsFileNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := placeCollisionSafe(filepath.Join(dir, "missing.mp4"), dir, "ep1")
	var fnf *bilierr.FileNotFound
	require.True(t, errors.As(err, &fnf))
}

func TestRunRemuxesVideoAndAudioPair(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "ep1.m4s")
	audio := filepath.Join(dir, "ep1.m4a")
	require.NoError(t, os.WriteFile(video, []byte("v"), 0o644))
	require.NoError(t, os.WriteFile(audio, []byte("a"), 0o644))

	outputDir := t.TempDir()
	p := testProcessor(t, outputDir)

	items := []model.WorkItem{
		{Kind: model.KindVideo, OutputPath: video, EpisodeKey: "ep1"},
		{Kind: model.KindAudio, OutputPath: audio, EpisodeKey: "ep1"},
	}
	results := p.Run(context.Background(), items)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.FileExists(t, results[0].OutputPath)
}

func TestRunReportsParseErrorForEmptyGroup(t *testing.T) {
	outputDir := t.TempDir()
	p := testProcessor(t, outputDir)
	items := []model.WorkItem{
		{Kind: model.KindDanmaku, Name: "ep1.xml", EpisodeKey: "ep1"},
	}
	results := p.Run(context.Background(), items)
	require.Len(t, results, 1)
	var parseErr *bilierr.ParseError
	require.True(t, errors.As(results[0].Err, &parseErr))
}

func TestNewProcessorFailsFastWithoutFfmpeg(t *testing.T) {
	cfg := &config.Config{FFmpegPath: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := NewProcessor(cfg, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, bilierr.ErrFfmpegNotFound))
}
