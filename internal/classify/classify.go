package classify

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"bilidl/internal/bilierr"
	"bilidl/internal/model"
)

var (
	shortHosts = map[string]bool{
		"b23.tv":      true,
		"bili2233.cn": true,
	}
	mobileHostRewrite = map[string]string{
		"m.bilibili.com": "www.bilibili.com",
	}

	reBvidPath = regexp.MustCompile(`/video/(BV[0-9A-Za-z]{10})`)
	reAvPath   = regexp.MustCompile(`/video/av(\d+)`)
	reEpPath   = regexp.MustCompile(`/bangumi/play/ep(\d+)`)
	reSsPath   = regexp.MustCompile(`/bangumi/play/ss(\d+)`)
	reCheeseEp = regexp.MustCompile(`/cheese/play/ep(\d+)`)
	reCheeseSs = regexp.MustCompile(`/cheese/play/ss(\d+)`)
	reLive     = regexp.MustCompile(`live\.bilibili\.com/(\d+)`)

	reBareBvid = regexp.MustCompile(`(?i)^BV[0-9A-Za-z]{10}$`)
	reBareAv   = regexp.MustCompile(`(?i)^av(\d+)$`)
	reBareEp   = regexp.MustCompile(`(?i)^ep(\d+)$`)
	reBareSs   = regexp.MustCompile(`(?i)^ss(\d+)$`)
	reBareCp   = regexp.MustCompile(`(?i)^cp(\d+)$`)
	reBareCs   = regexp.MustCompile(`(?i)^cs(\d+)$`)
)

// Redirector resolves a shortlink to its single Location redirect target.
// internal/httpclient's Client satisfies this with a non-following request.
type Redirector interface {
	ResolveRedirect(ctx context.Context, rawURL string) (string, error)
}

// Classify normalizes raw user input (a URL or a bare id) into a
// model.UrlKind, per spec §4.3. redirector may be nil when input is known
// not to be a shortlink; passing nil for a shortlink input returns
// ErrInvalidShortUrl.
func Classify(ctx context.Context, raw string, redirector Redirector) (model.UrlKind, error) {
	in := strings.TrimSpace(raw)
	if in == "" {
		return model.UrlKind{}, bilierr.ErrUnsupportedFormat
	}

	if host := shortlinkHost(in); host != "" {
		if redirector == nil {
			return model.UrlKind{}, bilierr.ErrInvalidShortUrl
		}
		target, err := redirector.ResolveRedirect(ctx, ensureScheme(in))
		if err != nil {
			return model.UrlKind{}, err
		}
		if target == "" {
			return model.UrlKind{}, bilierr.ErrInvalidShortUrl
		}
		in = target
	}

	in = rewriteMobileHost(in)

	normalized, err := normalizeToURL(in)
	if err != nil {
		return model.UrlKind{}, err
	}

	return classifyURL(normalized)
}

func shortlinkHost(raw string) string {
	u, err := url.Parse(ensureScheme(raw))
	if err != nil {
		return ""
	}
	if shortHosts[strings.ToLower(u.Hostname())] {
		return u.Hostname()
	}
	return ""
}

func ensureScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	if looksLikeHost(raw) {
		return "https://" + raw
	}
	return raw
}

func looksLikeHost(raw string) bool {
	return strings.Contains(raw, ".") && strings.Contains(raw, "/")
}

func rewriteMobileHost(raw string) string {
	u, err := url.Parse(ensureScheme(raw))
	if err != nil {
		return raw
	}
	if to, ok := mobileHostRewrite[strings.ToLower(u.Hostname())]; ok {
		u.Host = to
		return u.String()
	}
	return raw
}

// normalizeToURL accepts either an absolute URL or a bare id
// (BV..., av123, ep123, ss123, cp123, cs123) and returns an absolute URL.
func normalizeToURL(raw string) (string, error) {
	if strings.Contains(raw, "://") {
		return raw, nil
	}

	switch {
	case reBareBvid.MatchString(raw):
		return "https://www.bilibili.com/video/" + raw, nil
	case reBareAv.MatchString(raw):
		return "https://www.bilibili.com/video/" + strings.ToLower(raw), nil
	case reBareEp.MatchString(raw):
		return "https://www.bilibili.com/bangumi/play/" + strings.ToLower(raw), nil
	case reBareSs.MatchString(raw):
		return "https://www.bilibili.com/bangumi/play/" + strings.ToLower(raw), nil
	case reBareCp.MatchString(raw):
		n := reBareCp.FindStringSubmatch(raw)[1]
		return "https://www.bilibili.com/cheese/play/ep" + n, nil
	case reBareCs.MatchString(raw):
		n := reBareCs.FindStringSubmatch(raw)[1]
		return "https://www.bilibili.com/cheese/play/ss" + n, nil
	}
	return "", bilierr.ErrUnsupportedFormat
}

func classifyURL(raw string) (model.UrlKind, error) {
	if m := reBvidPath.FindStringSubmatch(raw); m != nil {
		return model.UrlKind{Tag: model.KindClip, BVID: m[1]}, nil
	}
	if m := reAvPath.FindStringSubmatch(raw); m != nil {
		aid, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return model.UrlKind{}, bilierr.ErrUnsupportedFormat
		}
		return model.UrlKind{Tag: model.KindClip, AID: aid}, nil
	}
	if m := reCheeseEp.FindStringSubmatch(raw); m != nil {
		id, _ := strconv.ParseInt(m[1], 10, 64)
		return model.UrlKind{Tag: model.KindCourseEpisode, EpID: id}, nil
	}
	if m := reCheeseSs.FindStringSubmatch(raw); m != nil {
		id, _ := strconv.ParseInt(m[1], 10, 64)
		return model.UrlKind{Tag: model.KindCourseSeason, SeasonID: id}, nil
	}
	if m := reEpPath.FindStringSubmatch(raw); m != nil {
		id, _ := strconv.ParseInt(m[1], 10, 64)
		return model.UrlKind{Tag: model.KindBangumiEpisode, EpID: id}, nil
	}
	if m := reSsPath.FindStringSubmatch(raw); m != nil {
		id, _ := strconv.ParseInt(m[1], 10, 64)
		return model.UrlKind{Tag: model.KindBangumiSeason, SeasonID: id}, nil
	}
	if m := reLive.FindStringSubmatch(raw); m != nil {
		return model.UrlKind{Tag: model.KindLiveRoom, RawID: m[1]}, nil
	}
	if strings.Contains(raw, "/list/") || strings.Contains(raw, "/medialist/") {
		return model.UrlKind{Tag: model.KindFavorites, RawID: raw}, nil
	}
	if strings.Contains(raw, "/read/cv") {
		return model.UrlKind{Tag: model.KindArticle, RawID: raw}, nil
	}
	return model.UrlKind{}, bilierr.ErrUnsupportedFormat
}

// staticClient is a Redirector backed directly by an *http.Client with
// redirect-following disabled, used where a full internal/httpclient
// session is unavailable (e.g. cmd-line preflight).
type staticClient struct {
	HTTP *http.Client
}

func (s *staticClient) ResolveRedirect(ctx context.Context, rawURL string) (string, error) {
	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	noRedirect := *client
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		return "", bilierr.ErrNetwork
	}
	defer resp.Body.Close()
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", bilierr.ErrInvalidShortUrl
	}
	return loc, nil
}

// NewStaticRedirector builds a Redirector from a plain *http.Client.
func NewStaticRedirector(c *http.Client) Redirector {
	return &staticClient{HTTP: c}
}
