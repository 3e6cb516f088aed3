package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"bilidl/internal/bilierr"
	"bilidl/internal/classify"
	"bilidl/internal/config"
	"bilidl/internal/httpclient"
	"bilidl/internal/model"
	"bilidl/internal/stream"
)

const (
	viewEndpoint    = "https://api.bilibili.com/x/web-interface/view"
	playURLEndpoint = "https://api.bilibili.com/x/player/playurl"
)

// ClipResolver resolves a single ordinary video (bvid/avid), grounded on
// original_source's parser/detail_parser/common_video.rs.
type ClipResolver struct {
	Client *httpclient.Client
}

type viewResponse struct {
	RedirectURL string `json:"redirect_url"`
	Bvid        string `json:"bvid"`
	Aid         int64  `json:"aid"`
	Cid         int64  `json:"cid"`
	Title       string `json:"title"`
	Pic         string `json:"pic"`
}

func (r *ClipResolver) Resolve(ctx context.Context, kind model.UrlKind, cfg *config.Config) (model.ParsedMeta, error) {
	bvid := kind.BVID
	if bvid == "" && kind.AID != 0 {
		bvid = classify.AidToBvid(kind.AID)
	}
	if bvid == "" {
		return model.ParsedMeta{}, &bilierr.ParseError{Reason: "clip resolver needs a bvid or aid"}
	}

	var view viewResponse
	if err := r.Client.Get(ctx, viewEndpoint+"?bvid="+bvid, &view); err != nil {
		var apiErr *bilierr.ApiError
		if errors.As(err, &apiErr) {
			return model.ParsedMeta{}, fmt.Errorf("clip view(%s): %w", bvid, apiErr)
		}
		return model.ParsedMeta{}, err
	}
	if view.RedirectURL != "" {
		return model.ParsedMeta{}, &bilierr.Redirect{URL: view.RedirectURL}
	}

	qid, err := config.QualityID(cfg.Quality)
	if err != nil {
		return model.ParsedMeta{}, err
	}

	params := map[string]string{
		"bvid":  bvid,
		"cid":   strconv.FormatInt(view.Cid, 10),
		"qn":    strconv.Itoa(qid),
		"fnval": "16",
		"fnver": "0",
		"fourk": "1",
	}
	var pu playURLData
	if err := r.Client.GetSigned(ctx, playURLEndpoint, params, &pu); err != nil {
		var apiErr *bilierr.ApiError
		if errors.As(err, &apiErr) {
			return model.ParsedMeta{}, fmt.Errorf("clip playurl(%s): %w", bvid, apiErr)
		}
		return model.ParsedMeta{}, err
	}

	items, err := itemsFromPlayURL(cfg, &pu, qid, view.Title, bvid, view.Cid)
	if err != nil {
		return model.ParsedMeta{}, err
	}
	if cfg.NeedDanmaku {
		items = append(items, model.WorkItem{
			Kind: model.KindDanmaku, URL: danmakuURL(view.Cid), Name: view.Title + ".xml",
			CID: view.Cid, EpisodeKey: bvid,
		})
	}

	return model.ParsedMeta{Title: view.Title, DownloadType: model.DownloadClip, Items: items}, nil
}

// itemsFromPlayURL builds video/audio/progressive work items out of a
// playurl response, shared by the clip, bangumi and course resolvers.
func itemsFromPlayURL(cfg *config.Config, pu *playURLData, targetQualityID int, title, episodeKey string, cid int64) ([]model.WorkItem, error) {
	if pu.Dash == nil && len(pu.Durl) == 0 {
		return nil, &bilierr.ParseError{Reason: "未解析出播放地址"}
	}

	var items []model.WorkItem
	if pu.Dash != nil {
		if cfg.NeedVideo {
			v, warn, err := stream.SelectVideo(toModelEntries(pu.Dash.Video), targetQualityID)
			if err != nil {
				return nil, err
			}
			if warn != "" {
				items = append(items, model.WorkItem{Kind: model.KindOther, Name: "warning", Desc: warn, EpisodeKey: episodeKey})
			}
			items = append(items, model.WorkItem{Kind: model.KindVideo, URL: v.BaseURL, Name: title + ".m4s", EpisodeKey: episodeKey})
		}
		if cfg.NeedAudio && len(pu.Dash.Audio) > 0 {
			a, err := stream.SelectAudio(toModelEntries(pu.Dash.Audio))
			if err != nil {
				return nil, err
			}
			items = append(items, model.WorkItem{Kind: model.KindAudio, URL: a.BaseURL, Name: title + ".m4a", EpisodeKey: episodeKey})
		}
		return items, nil
	}

	// Progressive: a single already-muxed stream, possibly paginated.
	if cfg.NeedVideo {
		for i, seg := range pu.Durl {
			name := title + ".mp4"
			if len(pu.Durl) > 1 {
				name = fmt.Sprintf("%s_%d.mp4", title, i+1)
			}
			items = append(items, model.WorkItem{Kind: model.KindProgressiveVideo, URL: seg.URL, Name: name, EpisodeKey: episodeKey})
		}
	}
	return items, nil
}

func toModelEntries(items []streamItem) []model.StreamEntry {
	out := make([]model.StreamEntry, len(items))
	for i, it := range items {
		out[i] = model.StreamEntry{
			QualityID: it.ID, BaseURL: it.BaseURL, Bandwidth: it.Bandwidth,
			Codecs: it.Codecs, Width: it.Width, Height: it.Height, FrameRate: it.FrameRate,
		}
	}
	return out
}
