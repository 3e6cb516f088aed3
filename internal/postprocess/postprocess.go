// Package postprocess implements spec §4.8: grouping a resolver's work
// items by episode, remuxing a separate video+audio pair into one file via
// an external ffmpeg, and placing already-muxed (Progressive) output with
// collision-safe renames. Grounded on original_source's
// downloader/merger.rs and post_process/merger.rs, and on the teacher's
// internal/converter subprocess-invocation pattern (context timeout +
// semaphore-gated exec.CommandContext + stderr capture), reused here for a
// different ffmpeg invocation shape (remux, not mp3 transcode).
package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"bilidl/internal/bilierr"
	"bilidl/internal/config"
	"bilidl/internal/model"
)

// Result is one finished (or failed) episode group's outcome.
type Result struct {
	EpisodeKey string
	OutputPath string
	Err        error
}

// Processor owns the resolved ffmpeg binary path and the concurrency
// semaphore remux calls draw a permit from.
type Processor struct {
	cfg        *config.Config
	ffmpegPath string
	sem        chan struct{}
	log        *slog.Logger
}

// NewProcessor resolves the ffmpeg binary per the discovery order of spec
// §4.8 (FFMPEG_PATH env override, sibling to this executable, PATH, common
// absolute install paths) and fails fast with bilierr.ErrFfmpegNotFound if
// none is usable.
func NewProcessor(cfg *config.Config, log *slog.Logger) (*Processor, error) {
	if log == nil {
		log = slog.Default()
	}
	path, err := discoverFFmpeg(cfg.FFmpegPath)
	if err != nil {
		return nil, err
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = 1
	}
	return &Processor{cfg: cfg, ffmpegPath: path, sem: make(chan struct{}, n), log: log}, nil
}

func discoverFFmpeg(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return override, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH=%s does not exist", bilierr.ErrFfmpegNotFound, override)
	}
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), ffmpegBinaryName())
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, nil
	}
	for _, candidate := range commonFFmpegPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", bilierr.ErrFfmpegNotFound
}

func ffmpegBinaryName() string { return "ffmpeg" }

var commonFFmpegPaths = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
}

// episodeSuffixRe strips a trailing "_video"/"_audio" marker or a leftover
// extension-like suffix (m4s, mp4, xml, ass, srt, ...), used only as the fallback episode-key recognizer
// for items that arrive with an empty EpisodeKey (spec §4.8's redesign
// note: resolvers normally set EpisodeKey explicitly, so this path is rare).
var episodeSuffixRe = regexp.MustCompile(`(?i)[._-](video|audio|m4s|m4a|mp4|xml|ass|srt)+$`)

func fallbackEpisodeKey(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return episodeSuffixRe.ReplaceAllString(base, "")
}

// Group partitions items by EpisodeKey (falling back to filename-pattern
// recognition only when EpisodeKey is empty), in first-seen order.
func Group(items []model.WorkItem) ([]string, map[string][]model.WorkItem) {
	groups := make(map[string][]model.WorkItem)
	var order []string
	for _, item := range items {
		key := item.EpisodeKey
		if key == "" {
			key = fallbackEpisodeKey(item.Name)
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}
	return order, groups
}

// Run groups items and processes each group concurrently (within the
// shared semaphore), returning one Result per group in Group's order.
func (p *Processor) Run(ctx context.Context, items []model.WorkItem) []Result {
	order, groups := Group(items)
	out := make([]Result, len(order))
	var wg sync.WaitGroup
	for i, key := range order {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			out[i] = p.runGroup(ctx, key, groups[key])
		}(i, key)
	}
	wg.Wait()
	return out
}

func (p *Processor) runGroup(ctx context.Context, key string, items []model.WorkItem) Result {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{EpisodeKey: key, Err: ctx.Err()}
	}
	defer func() { <-p.sem }()

	var video, audio, progressive *model.WorkItem
	for i := range items {
		switch items[i].Kind {
		case model.KindVideo:
			video = &items[i]
		case model.KindAudio:
			audio = &items[i]
		case model.KindProgressiveVideo:
			progressive = &items[i]
		}
	}

	switch {
	case progressive != nil:
		out, err := placeCollisionSafe(progressive.OutputPath, p.cfg.OutputDir, key)
		return Result{EpisodeKey: key, OutputPath: out, Err: err}
	case video != nil && audio != nil && p.cfg.Merge:
		out := remuxOutputPath(p.cfg.OutputDir, key)
		err := p.remux(ctx, video.OutputPath, audio.OutputPath, out)
		return Result{EpisodeKey: key, OutputPath: out, Err: err}
	case video != nil:
		out, err := placeCollisionSafe(video.OutputPath, p.cfg.OutputDir, key)
		return Result{EpisodeKey: key, OutputPath: out, Err: err}
	default:
		return Result{EpisodeKey: key, Err: &bilierr.ParseError{Reason: "episode group has no video or progressive stream: " + key}}
	}
}

func remuxOutputPath(outputDir, key string) string {
	return filepath.Join(outputDir, sanitizeFilename(key)+".mp4")
}

// remux runs `ffmpeg -i video -i audio -c:v copy -c:a aac -y output`,
// checking both inputs exist first, per original_source's merger.rs.
func (p *Processor) remux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if _, err := os.Stat(videoPath); err != nil {
		return &bilierr.FileNotFound{Path: videoPath}
	}
	if _, err := os.Stat(audioPath); err != nil {
		return &bilierr.FileNotFound{Path: audioPath}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("postprocess: creating output directory: %w", err)
	}

	args := []string{"-i", videoPath, "-i", audioPath, "-c:v", "copy", "-c:a", "aac", "-y", outputPath}
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &bilierr.FfmpegError{Stderr: stderr.String()}
	}
	return nil
}

// placeCollisionSafe moves src into outputDir under key's name, appending
// _1, _2, ... on collision (spec §4.8: progressive-only episodes land
// directly without a remux step, but must not silently overwrite siblings).
func placeCollisionSafe(src, outputDir, key string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", &bilierr.FileNotFound{Path: src}
	}
	ext := filepath.Ext(src)
	base := sanitizeFilename(key)
	dest := filepath.Join(outputDir, base+ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(outputDir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("postprocess: creating output directory: %w", err)
	}
	if err := os.Rename(src, dest); err != nil {
		return "", fmt.Errorf("postprocess: moving %s to %s: %w", src, dest, err)
	}
	return dest, nil
}

var unsafeFilenameRe = regexp.MustCompile(`[/\\:*?"<>|]`)

func sanitizeFilename(name string) string {
	return unsafeFilenameRe.ReplaceAllString(name, "_")
}
