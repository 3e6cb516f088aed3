package httpclient

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bilidl/internal/bilierr"
)

func newTestResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	req := httptest.NewRequest(http.MethodGet, "https://api.bilibili.com/x/test", nil)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
		Request:    req,
	}
}

func TestDecodeEnvelopeServerError(t *testing.T) {
	resp := newTestResponse(500, "", nil)
	err := decodeEnvelope(resp, nil)
	if !errors.Is(err, bilierr.ErrRetryLater) {
		t.Fatalf("expected ErrRetryLater, got %v", err)
	}
}

func TestDecodeEnvelopeApiError(t *testing.T) {
	resp := newTestResponse(200, `{"code":-404,"message":"not found"}`, nil)
	err := decodeEnvelope(resp, nil)
	var apiErr *bilierr.ApiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ApiError, got %v", err)
	}
	if apiErr.Code != -404 {
		t.Fatalf("expected code -404, got %d", apiErr.Code)
	}
}

func TestDecodeEnvelopeDataKey(t *testing.T) {
	var dst struct {
		Title string `json:"title"`
	}
	resp := newTestResponse(200, `{"code":0,"data":{"title":"hello"}}`, nil)
	if err := decodeEnvelope(resp, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Title != "hello" {
		t.Fatalf("expected title=hello, got %q", dst.Title)
	}
}

func TestDecodeEnvelopeResultKey(t *testing.T) {
	var dst struct {
		Title string `json:"title"`
	}
	resp := newTestResponse(200, `{"code":0,"result":{"title":"world"}}`, nil)
	if err := decodeEnvelope(resp, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Title != "world" {
		t.Fatalf("expected title=world, got %q", dst.Title)
	}
}

func TestDecodeEnvelopeHtmlResponse(t *testing.T) {
	resp := newTestResponse(200, "<!DOCTYPE html><html><body>blocked</body></html>", nil)
	err := decodeEnvelope(resp, nil)
	var htmlErr *bilierr.HtmlResponse
	if !errors.As(err, &htmlErr) {
		t.Fatalf("expected HtmlResponse, got %v", err)
	}
}

func TestDecodeEnvelopeInvalidStructure(t *testing.T) {
	var dst struct {
		Count int `json:"count"`
	}
	resp := newTestResponse(200, `{"code":0,"data":{"count":"not-a-number"}}`, nil)
	err := decodeEnvelope(resp, &dst)
	var invErr *bilierr.InvalidResponse
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvalidResponse, got %v", err)
	}
}

func TestApplyCDNOverlay(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://upos-sz-mirrorcos.bilivideo.com/seg.m4s", nil)
	applyCDNOverlay(req)
	if req.Header.Get("Origin") != "https://www.bilibili.com" {
		t.Fatalf("expected CDN overlay to set Origin header")
	}

	plain := httptest.NewRequest(http.MethodGet, "https://api.bilibili.com/x/test", nil)
	applyCDNOverlay(plain)
	if plain.Header.Get("Origin") != "" {
		t.Fatalf("overlay should not apply to non-CDN hosts")
	}
}
