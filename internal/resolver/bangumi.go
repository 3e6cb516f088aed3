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
	bangumiSeasonEndpoint = "https://api.bilibili.com/pgc/view/web/season"
	bangumiPlayEndpoint   = "https://api.bilibili.com/pgc/player/web/playurl"
)

// BangumiResolver resolves a bangumi (番剧) season or single episode,
// grounded on original_source's parser/detail_parser/bangumi.rs pattern
// and sharing common_video.rs's playurl/stream-selection shape with
// ClipResolver.
type BangumiResolver struct {
	Client *httpclient.Client
}

type bangumiEpisode struct {
	EpID      int64  `json:"id"`
	Aid       int64  `json:"aid"`
	Cid       int64  `json:"cid"`
	Title     string `json:"title"`
	LongTitle string `json:"long_title"`
}

type bangumiSeasonResult struct {
	SeasonID int64            `json:"season_id"`
	Title    string           `json:"title"`
	Episodes []bangumiEpisode `json:"episodes"`
}

func (r *BangumiResolver) Resolve(ctx context.Context, kind model.UrlKind, cfg *config.Config) (model.ParsedMeta, error) {
	query := ""
	switch kind.Tag {
	case model.KindBangumiEpisode:
		query = "ep_id=" + strconv.FormatInt(kind.EpID, 10)
	case model.KindBangumiSeason:
		query = "season_id=" + strconv.FormatInt(kind.SeasonID, 10)
	default:
		return model.ParsedMeta{}, fmt.Errorf("bangumi resolver: unexpected kind %s", kind.Tag)
	}

	var season bangumiSeasonResult
	if err := r.Client.Get(ctx, bangumiSeasonEndpoint+"?"+query, &season); err != nil {
		var apiErr *bilierr.ApiError
		if errors.As(err, &apiErr) {
			return model.ParsedMeta{}, fmt.Errorf("bangumi season: %w", apiErr)
		}
		return model.ParsedMeta{}, err
	}

	var episodes []bangumiEpisode
	if kind.Tag == model.KindBangumiEpisode {
		ep, err := selectSingleEpisode(season.Episodes, kind.EpID, func(e bangumiEpisode) int64 { return e.EpID })
		if err != nil {
			return model.ParsedMeta{}, err
		}
		episodes = []bangumiEpisode{ep}
	} else {
		var err error
		episodes, err = selectEpisodes(season.Episodes, cfg.Parts)
		if err != nil {
			return model.ParsedMeta{}, err
		}
	}

	qid, err := config.QualityID(cfg.Quality)
	if err != nil {
		return model.ParsedMeta{}, err
	}

	var items []model.WorkItem
	for _, ep := range episodes {
		epTitle := ep.LongTitle
		if epTitle == "" {
			epTitle = ep.Title
		}
		episodeKey := fmt.Sprintf("ep%d", ep.EpID)

		epItems, err := resolveBangumiEpisode(ctx, r.Client, cfg, ep, epTitle, episodeKey, qid)
		if err != nil {
			// Spec §7: a failed episode is skipped; siblings still proceed.
			slog.Default().Warn("bangumi episode failed, continuing batch", "ep_id", ep.EpID, "error", err)
			continue
		}
		items = append(items, epItems...)
	}

	return model.ParsedMeta{Title: season.Title, DownloadType: model.DownloadBangumi, Items: items}, nil
}

func resolveBangumiEpisode(ctx context.Context, client *httpclient.Client, cfg *config.Config, ep bangumiEpisode, epTitle, episodeKey string, qid int) ([]model.WorkItem, error) {
	params := map[string]string{
		"ep_id": strconv.FormatInt(ep.EpID, 10),
		"cid":   strconv.FormatInt(ep.Cid, 10),
		"fnval": "976",
		"fnver": "0",
		"fourk": "1",
	}
	var pu playURLData
	if err := client.GetSigned(ctx, bangumiPlayEndpoint, params, &pu); err != nil {
		var apiErr *bilierr.ApiError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("bangumi playurl(ep=%d): %w", ep.EpID, apiErr)
		}
		return nil, err
	}

	items, err := itemsFromPlayURL(cfg, &pu, qid, epTitle, episodeKey, ep.Cid)
	if err != nil {
		return nil, err
	}
	if cfg.NeedDanmaku {
		items = append(items, model.WorkItem{
			Kind: model.KindDanmaku, URL: danmakuURL(ep.Cid), Name: epTitle + ".xml",
			CID: ep.Cid, EpisodeKey: episodeKey,
		})
	}
	return items, nil
}

// selectSingleEpisode finds the one episode whose id matches epID, for the
// single-episode link case where cfg.Parts never applies.
func selectSingleEpisode[E any](all []E, epID int64, id func(E) int64) (E, error) {
	for _, e := range all {
		if id(e) == epID {
			return e, nil
		}
	}
	var zero E
	return zero, &bilierr.ParseError{Reason: fmt.Sprintf("episode %d not found in season", epID)}
}

// selectEpisodes applies the parts episode-range grammar (spec §6) against
// a season's 1-indexed episode ordering. An empty parts string selects all.
func selectEpisodes[E any](all []E, parts string) ([]E, error) {
	idx, err := config.ParseParts(parts)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return all, nil
	}
	var out []E
	for _, n := range idx {
		if n >= 1 && n <= len(all) {
			out = append(out, all[n-1])
		}
	}
	return out, nil
}
