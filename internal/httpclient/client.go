// Package httpclient implements the signed, session-aware HTTP client of
// spec §4.2: a cookie-jar-carrying *http.Client, WBI query signing, and
// platform envelope decoding shared by every resolver.
package httpclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"bilidl/internal/bilierr"
	"bilidl/internal/wbi"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	defaultReferer   = "https://www.bilibili.com/"
	navEndpoint      = "https://api.bilibili.com/x/web-interface/nav"
)

// Client is the shared HTTP surface every resolver, the login flow and the
// downloader's metadata calls go through. It owns a cookie jar scoped to
// one logical session and a lazily-populated, self-refreshing WBI key pair.
type Client struct {
	HTTP *http.Client

	limiter *rate.Limiter
	log     *slog.Logger

	mu      sync.Mutex
	wbiKeys wbi.Keys
	haveKey bool
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithRateLimit caps outbound requests per second with the given burst,
// per spec's "soft rate limiting" ambient concern.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger attaches a structured logger; slog.Default() is used if omitted.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout overrides the default 10s per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTP.Timeout = d }
}

// New builds a Client with a fresh, empty cookie jar scoped by public
// suffix (host-suffix based scoping per spec §4.2).
func New(opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("httpclient: building cookie jar: %w", err)
	}
	c := &Client{
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewWithJar wraps an existing jar, used when internal/session restores a
// persisted cookie store into a fresh client.
func NewWithJar(jar http.CookieJar, opts ...Option) *Client {
	c := &Client{
		HTTP: &http.Client{Timeout: 10 * time.Second, Jar: jar},
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) defaultHeaders(req *http.Request) {
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Referer", defaultReferer)
	req.Header.Set("User-Agent", defaultUserAgent)
}

func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// GetRaw issues a GET and returns the unread *http.Response for the
// downloader to stream directly, per spec's GET_RAW operation.
func (c *Client) GetRaw(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: building request: %w", err)
	}
	c.defaultHeaders(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, bilierr.ErrNetwork
	}
	return resp, nil
}

// Get decodes the response body through the platform envelope into dst.
func (c *Client) Get(ctx context.Context, rawURL string, dst any) error {
	resp, err := c.GetRaw(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, dst)
}

// Post issues a POST with the given body and content type, decoding the
// response through the same envelope rules as Get.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte, contentType string, dst any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("httpclient: building request: %w", err)
	}
	c.defaultHeaders(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return bilierr.ErrNetwork
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, dst)
}

// Head probes a resource's size and range support, falling back to a
// ranged GET of a single byte when the server refuses HEAD (spec §4.7).
func (c *Client) Head(ctx context.Context, rawURL string) (http.Header, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.defaultHeaders(req)
	applyCDNOverlay(req)
	resp, err := c.HTTP.Do(req)
	if err == nil && resp.StatusCode < 400 {
		resp.Body.Close()
		return resp.Header, nil
	}
	if resp != nil {
		resp.Body.Close()
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.defaultHeaders(req)
	applyCDNOverlay(req)
	req.Header.Set("Range", "bytes=0-0")
	resp, err = c.HTTP.Do(req)
	if err != nil {
		return nil, bilierr.ErrNetwork
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.Header, nil
}

// GetStream issues a GET for streaming a binary body (spec's BinaryStream
// download strategy): the CDN header overlay is applied, and a Range header
// is sent whenever rangeStart>0 (resuming a partial download) or forceRange
// is set (the Audio CDN rejects a non-ranged first request). The caller
// owns the response body.
func (c *Client) GetStream(ctx context.Context, rawURL string, rangeStart int64, forceRange bool) (*http.Response, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: building request: %w", err)
	}
	c.defaultHeaders(req)
	applyCDNOverlay(req)
	if rangeStart > 0 || forceRange {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", rangeStart))
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, bilierr.ErrNetwork
	}
	return resp, nil
}

// applyCDNOverlay attaches the header set spec §4.2 requires for
// bilivideo.com/bilivideo.cn range requests.
func applyCDNOverlay(req *http.Request) {
	host := strings.ToLower(req.URL.Hostname())
	if strings.HasSuffix(host, "bilivideo.com") || strings.HasSuffix(host, "bilivideo.cn") {
		req.Header.Set("Origin", "https://www.bilibili.com")
		req.Header.Set("Sec-Fetch-Dest", "video")
		req.Header.Set("Sec-Fetch-Mode", "cors")
		req.Header.Set("Sec-Fetch-Site", "cross-site")
	}
}

// ResolveRedirect satisfies internal/classify.Redirector: issue a
// non-following request and return the single Location header.
func (c *Client) ResolveRedirect(ctx context.Context, rawURL string) (string, error) {
	noRedirect := *c.HTTP
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	c.defaultHeaders(req)
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

// decodeEnvelope implements spec §4.2's five ordered envelope rules.
func decodeEnvelope(resp *http.Response, dst any) error {
	if resp.StatusCode >= 500 {
		return bilierr.ErrRetryLater
	}
	if resp.StatusCode == 401 || resp.StatusCode == 403 || resp.StatusCode == 429 {
		return &bilierr.RateLimited{Reason: fmt.Sprintf("http %d on %s", resp.StatusCode, resp.Request.URL)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: reading body: %w", err)
	}
	raw = decompressIfNeeded(resp.Header.Get("Content-Encoding"), raw)

	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		text := string(raw)
		if strings.HasPrefix(strings.TrimSpace(text), "<!DOCTYPE html>") || strings.HasPrefix(strings.TrimSpace(text), "<html") {
			return &bilierr.HtmlResponse{Body: text}
		}
		return &bilierr.InvalidResponse{Reason: "non-JSON body: " + err.Error()}
	}

	if codeRaw, ok := root["code"]; ok {
		var code int64
		if err := json.Unmarshal(codeRaw, &code); err == nil && code != 0 {
			msg := ""
			if m, ok := root["message"]; ok {
				json.Unmarshal(m, &msg)
			}
			return &bilierr.ApiError{Code: code, Message: msg}
		}
	}

	if dst == nil {
		return nil
	}

	payload, ok := root["data"]
	if !ok {
		payload, ok = root["result"]
	}
	if !ok {
		// Some endpoints (e.g. nav) put the payload at the root itself.
		payload = raw
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return &bilierr.InvalidResponse{Reason: "structural mismatch: " + err.Error()}
	}
	return nil
}

func decompressIfNeeded(encoding string, raw []byte) []byte {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return raw
		}
		return out
	case "deflate":
		r := flate.NewReader(bytes.NewReader(raw))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return raw
		}
		return out
	default:
		// br (brotli) is assumed already handled transparently upstream.
		return raw
	}
}

// navResponse is the subset of the nav endpoint this client cares about:
// login state and the wbi image/sub key pair embedded in icon URLs.
type navResponse struct {
	IsLogin bool `json:"isLogin"`
	WbiImg  struct {
		ImgURL string `json:"img_url"`
		SubURL string `json:"sub_url"`
	} `json:"wbi_img"`
}

// refreshWbiKeys fetches the nav endpoint and extracts the current WBI key
// pair, caching it for subsequent signing calls.
func (c *Client) refreshWbiKeys(ctx context.Context) (wbi.Keys, error) {
	var nav navResponse
	if err := c.Get(ctx, navEndpoint, &nav); err != nil {
		return wbi.Keys{}, err
	}
	keys, err := wbi.ExtractKeysFromIcons(nav.WbiImg.ImgURL, nav.WbiImg.SubURL)
	if err != nil {
		return wbi.Keys{}, err
	}
	c.mu.Lock()
	c.wbiKeys = keys
	c.haveKey = true
	c.mu.Unlock()
	return keys, nil
}

// GetSigned signs params with the cached WBI keys and GETs the result. On a
// key lookup failure it falls back to an unsigned GET with params appended
// verbatim, per spec §4.2.
func (c *Client) GetSigned(ctx context.Context, rawURL string, params map[string]string, dst any) error {
	c.mu.Lock()
	keys, ok := c.wbiKeys, c.haveKey
	c.mu.Unlock()

	if !ok {
		var err error
		keys, err = c.refreshWbiKeys(ctx)
		if err != nil {
			return c.getUnsigned(ctx, rawURL, params, dst)
		}
	}

	query := wbi.Sign(params, keys.ImgKey, keys.SubKey)
	full := rawURL + "?" + query
	err := c.Get(ctx, full, dst)

	var apiErr *bilierr.ApiError
	if errors.As(err, &apiErr) && (apiErr.Code == -403 || apiErr.Code == -401) {
		// Keys may have rotated; refresh once and retry.
		if fresh, rerr := c.refreshWbiKeys(ctx); rerr == nil {
			query = wbi.Sign(params, fresh.ImgKey, fresh.SubKey)
			return c.Get(ctx, rawURL+"?"+query, dst)
		}
	}
	return err
}

func (c *Client) getUnsigned(ctx context.Context, rawURL string, params map[string]string, dst any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("httpclient: parsing url: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return c.Get(ctx, u.String(), dst)
}
