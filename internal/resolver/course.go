package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"bilidl/internal/bilierr"
	"bilidl/internal/config"
	"bilidl/internal/httpclient"
	"bilidl/internal/model"
)

const (
	courseSeasonEndpoint = "https://api.bilibili.com/pugv/view/web/season"
	coursePlayEndpoint   = "https://api.bilibili.com/pugv/player/web/playurl"
)

// CourseResolver resolves a paid course (课程) season or single episode.
// Structurally identical to BangumiResolver against the cheese/pugv
// surface; its playurl call additionally sends avid and qn.
type CourseResolver struct {
	Client *httpclient.Client
}

type courseEpisode struct {
	EpID  int64  `json:"id"`
	Aid   int64  `json:"aid"`
	Cid   int64  `json:"cid"`
	Title string `json:"title"`
}

type courseSeasonResult struct {
	SeasonID int64           `json:"season_id"`
	Title    string          `json:"title"`
	Episodes []courseEpisode `json:"episodes"`
}

func (r *CourseResolver) Resolve(ctx context.Context, kind model.UrlKind, cfg *config.Config) (model.ParsedMeta, error) {
	query := ""
	switch kind.Tag {
	case model.KindCourseEpisode:
		query = "ep_id=" + strconv.FormatInt(kind.EpID, 10)
	case model.KindCourseSeason:
		query = "season_id=" + strconv.FormatInt(kind.SeasonID, 10)
	default:
		return model.ParsedMeta{}, fmt.Errorf("course resolver: unexpected kind %s", kind.Tag)
	}

	var season courseSeasonResult
	if err := r.Client.Get(ctx, courseSeasonEndpoint+"?"+query, &season); err != nil {
		var apiErr *bilierr.ApiError
		if errors.As(err, &apiErr) {
			return model.ParsedMeta{}, fmt.Errorf("course season: %w", apiErr)
		}
		return model.ParsedMeta{}, err
	}

	var episodes []courseEpisode
	if kind.Tag == model.KindCourseEpisode {
		ep, err := selectSingleEpisode(season.Episodes, kind.EpID, func(e courseEpisode) int64 { return e.EpID })
		if err != nil {
			return model.ParsedMeta{}, err
		}
		episodes = []courseEpisode{ep}
	} else {
		var err error
		episodes, err = selectEpisodes(season.Episodes, cfg.Parts)
		if err != nil {
			return model.ParsedMeta{}, err
		}
	}

	// The course resolver ignores cfg.Quality: it always requests qn=116
	// (1080P60) and selects streams against that target.
	const courseQualityID = 116

	var items []model.WorkItem
	for _, ep := range episodes {
		episodeKey := fmt.Sprintf("ep%d", ep.EpID)
		epItems, err := resolveCourseEpisode(ctx, r.Client, cfg, ep, episodeKey, courseQualityID)
		if err != nil {
			slog.Default().Warn("course episode failed, continuing batch", "ep_id", ep.EpID, "error", err)
			continue
		}
		items = append(items, epItems...)
	}

	return model.ParsedMeta{Title: season.Title, DownloadType: model.DownloadCourse, Items: items}, nil
}

func resolveCourseEpisode(ctx context.Context, client *httpclient.Client, cfg *config.Config, ep courseEpisode, episodeKey string, qid int) ([]model.WorkItem, error) {
	params := map[string]string{
		"avid":  strconv.FormatInt(ep.Aid, 10),
		"cid":   strconv.FormatInt(ep.Cid, 10),
		"ep_id": strconv.FormatInt(ep.EpID, 10),
		"qn":    strconv.Itoa(qid),
		"fnval": "976",
		"fnver": "0",
	}
	var pu playURLData
	if err := client.GetSigned(ctx, coursePlayEndpoint, params, &pu); err != nil {
		var apiErr *bilierr.ApiError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("course playurl(ep=%d): %w", ep.EpID, apiErr)
		}
		return nil, err
	}

	items, err := itemsFromPlayURL(cfg, &pu, qid, ep.Title, episodeKey, ep.Cid)
	if err != nil {
		return nil, err
	}
	if cfg.NeedDanmaku {
		items = append(items, model.WorkItem{
			Kind: model.KindDanmaku, URL: danmakuURL(ep.Cid), Name: ep.Title + ".xml",
			CID: ep.Cid, EpisodeKey: episodeKey,
		})
	}
	return items, nil
}
