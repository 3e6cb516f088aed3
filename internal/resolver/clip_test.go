package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"bilidl/internal/config"
	"bilidl/internal/httpclient"
	"bilidl/internal/model"
)

// rewriteToTestServer routes every outbound request to srv regardless of
// its original host, preserving path and query, so a resolver written
// against bilibili's real absolute endpoint URLs can be exercised against
// an httptest.Server.
type rewriteToTestServer struct {
	srv *httptest.Server
}

func (rt *rewriteToTestServer) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(rt.srv.URL)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	req.Host = target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func testClient(t *testing.T, srv *httptest.Server) *httpclient.Client {
	t.Helper()
	c, err := httpclient.New()
	require.NoError(t, err)
	c.HTTP.Transport = &rewriteToTestServer{srv: srv}
	return c
}

func TestClipResolverBuildsVideoAudioDanmakuItems(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"isLogin":false,"wbi_img":{"img_url":"https://i0.hdslb.com/bfs/wbi/7e0bae2a8b3b9c0e1b5e0e0e0e0e0e0e.png","sub_url":"https://i0.hdslb.com/bfs/wbi/4932caff0ff746eab6f01443a938c4d1.png"}}}`)
	})
	mux.HandleFunc("/x/web-interface/view", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"bvid":"BV1xx411c7mD","aid":1,"cid":42,"title":"my video","pic":"p.jpg"}}`)
	})
	mux.HandleFunc("/x/player/playurl", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"dash":{"video":[{"id":80,"base_url":"https://upos.example/v.m4s","bandwidth":100,"codecs":"avc1","width":1920,"height":1080,"frame_rate":"30"}],"audio":[{"id":30280,"base_url":"https://upos.example/a.m4a","bandwidth":50,"codecs":"mp4a"}]}}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testClient(t, srv)
	r := &ClipResolver{Client: client}
	cfg := &config.Config{Quality: config.Quality1080p, NeedVideo: true, NeedAudio: true, NeedDanmaku: true}

	meta, err := r.Resolve(context.Background(), model.UrlKind{Tag: model.KindClip, BVID: "BV1xx411c7mD"}, cfg)
	require.NoError(t, err)
	require.Equal(t, "my video", meta.Title)
	require.Equal(t, model.DownloadClip, meta.DownloadType)

	var kinds []model.WorkItemKind
	for _, item := range meta.Items {
		kinds = append(kinds, item.Kind)
	}
	require.Contains(t, kinds, model.KindVideo)
	require.Contains(t, kinds, model.KindAudio)
	require.Contains(t, kinds, model.KindDanmaku)
}

func TestClipResolverSurfacesRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/view", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"redirect_url":"https://www.bilibili.com/bangumi/play/ep123"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testClient(t, srv)
	r := &ClipResolver{Client: client}
	cfg := &config.Config{Quality: config.Quality1080p}

	_, err := r.Resolve(context.Background(), model.UrlKind{Tag: model.KindClip, BVID: "BV1xx411c7mD"}, cfg)
	require.Error(t, err)
}

func TestClipResolverRequiresBvidOrAid(t *testing.T) {
	client := testClient(t, httptest.NewServer(http.NewServeMux()))
	r := &ClipResolver{Client: client}
	_, err := r.Resolve(context.Background(), model.UrlKind{Tag: model.KindClip}, &config.Config{Quality: config.Quality1080p})
	require.Error(t, err)
}
