// Package resolver implements the per-UrlKind metadata resolvers of spec
// §4.4: one Resolver interface, three implementations (clip, bangumi,
// course), and a small dispatch table keyed on model.UrlKind — the
// redesign spec §9 asks for in place of the original's heavier
// tagged-variant dispatch.
package resolver

import (
	"context"
	"fmt"

	"bilidl/internal/bilierr"
	"bilidl/internal/config"
	"bilidl/internal/httpclient"
	"bilidl/internal/model"
)

// Resolver consumes a UrlKind plus the run configuration and returns a
// ParsedMeta: the work items the downloader and post-processor will see.
type Resolver interface {
	Resolve(ctx context.Context, kind model.UrlKind, cfg *config.Config) (model.ParsedMeta, error)
}

// Dispatch picks the resolver implementation for kind.Tag and resolves it.
// This is the only place the Clip|Bangumi|Course distinction is made; every
// downstream component only sees the resulting model.ParsedMeta.
func Dispatch(ctx context.Context, client *httpclient.Client, kind model.UrlKind, cfg *config.Config) (model.ParsedMeta, error) {
	var r Resolver
	switch kind.Tag {
	case model.KindClip:
		r = &ClipResolver{Client: client}
	case model.KindBangumiEpisode, model.KindBangumiSeason:
		r = &BangumiResolver{Client: client}
	case model.KindCourseEpisode, model.KindCourseSeason:
		r = &CourseResolver{Client: client}
	default:
		return model.ParsedMeta{}, fmt.Errorf("resolver: %w: %s not resolvable by the core", bilierr.ErrUnsupportedFormat, kind.Tag)
	}
	return r.Resolve(ctx, kind, cfg)
}

// danmakuURL derives the danmaku XML URL from a cid (spec §4.4).
func danmakuURL(cid int64) string {
	return fmt.Sprintf("https://comment.bilibili.com/%d.xml", cid)
}

// dashInfo/streamItem/durlItem are the wire shapes shared by the clip,
// bangumi and course playurl endpoints.
type dashInfo struct {
	Video []streamItem `json:"video"`
	Audio []streamItem `json:"audio"`
}

type streamItem struct {
	ID        int    `json:"id"`
	BaseURL   string `json:"base_url"`
	Bandwidth int    `json:"bandwidth"`
	Codecs    string `json:"codecs"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FrameRate string `json:"frame_rate"`
}

type durlItem struct {
	URL string `json:"url"`
}

type playURLData struct {
	Dash *dashInfo  `json:"dash"`
	Durl []durlItem `json:"durl"`
}
