// Package bilierr defines the error taxonomy shared by the client, parser
// and downloader layers. Call sites distinguish kinds with errors.As/errors.Is
// rather than string matching.
package bilierr

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork          = errors.New("network error")
	ErrRetryLater       = errors.New("server reported a transient failure")
	ErrInvalidUrl       = errors.New("invalid url")
	ErrUnsupportedFormat = errors.New("unsupported url format")
	ErrInvalidShortUrl  = errors.New("short link did not redirect")
	ErrQrCodeExpired    = errors.New("qr code expired")
	ErrOperationTimeout = errors.New("operation timed out")
	ErrTaskAlreadyExists = errors.New("task already exists")
	ErrSemaphoreError   = errors.New("semaphore acquire failed")
	ErrFfmpegNotFound   = errors.New("ffmpeg binary not found")
	ErrMergeError       = errors.New("merge failed")
	ErrSessionExists    = errors.New("session id already exists")
	ErrSessionNotFound  = errors.New("session not found")
)

// ApiError is a non-zero `code` from the platform's JSON envelope.
type ApiError struct {
	Code    int64
	Message string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("platform api error %d: %s", e.Code, e.Hint())
}

// Hint renders the human-readable diagnostic prefix described in spec §7.
func (e *ApiError) Hint() string {
	switch e.Code {
	case -403:
		return fmt.Sprintf("访问被拒绝（-403）: 可能需要登录、Cookie 已过期或地区限制: %s", e.Message)
	case -404:
		return fmt.Sprintf("内容不存在或已被删除（-404）: %s", e.Message)
	case -10403:
		return fmt.Sprintf("大会员专享内容（-10403）: %s", e.Message)
	case -500:
		return fmt.Sprintf("资源受限，可能是未购买的课程（-500）: %s", e.Message)
	case 6001:
		return fmt.Sprintf("地区限制（6001）: %s", e.Message)
	case 62002, 62012:
		return fmt.Sprintf("视频不可见或正在审核（%d）: %s", e.Code, e.Message)
	default:
		return e.Message
	}
}

// InvalidResponse means the body could not be interpreted as the caller's
// target type: non-JSON where JSON was expected, or a structural mismatch.
type InvalidResponse struct{ Reason string }

func (e *InvalidResponse) Error() string { return "invalid response: " + e.Reason }

// HtmlResponse means the body looks like an HTML challenge/block page.
type HtmlResponse struct{ Body string }

func (e *HtmlResponse) Error() string {
	n := len(e.Body)
	if n > 120 {
		n = 120
	}
	return "html response (challenge or geo-block likely): " + e.Body[:n]
}

// RateLimited is returned for HTTP 403/429/401 on any endpoint; it is
// terminal for the originating operation — never retried.
type RateLimited struct{ Reason string }

func (e *RateLimited) Error() string { return "rate limited: " + e.Reason }

// Redirect surfaces a `redirect_url` found in a view response.
type Redirect struct{ URL string }

func (e *Redirect) Error() string { return "redirect to " + e.URL }

// ParseError is a resolver-layer failure with a specific sub-reason.
type ParseError struct{ Reason string }

func (e *ParseError) Error() string { return "parse error: " + e.Reason }

// InvalidState is a downloader inconsistency (e.g. Range not satisfiable).
type InvalidState struct{ Reason string }

func (e *InvalidState) Error() string { return "invalid state: " + e.Reason }

// StreamError is a mid-stream I/O or inactivity-timeout failure; the
// BinaryStream strategy retries on this up to its attempt cap.
type StreamError struct{ Reason string }

func (e *StreamError) Error() string { return "stream error: " + e.Reason }

// FileNotFound names a missing local path during post-processing.
type FileNotFound struct{ Path string }

func (e *FileNotFound) Error() string { return "file not found: " + e.Path }

// FfmpegError carries the external transcoder's captured stderr.
type FfmpegError struct{ Stderr string }

func (e *FfmpegError) Error() string { return "ffmpeg failed: " + e.Stderr }

// IsRateLimited reports whether err is, or wraps, a RateLimited error.
func IsRateLimited(err error) bool {
	var rl *RateLimited
	return errors.As(err, &rl)
}

// IsStreamError reports whether err is, or wraps, a StreamError.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}
