// Package login implements the QR login polling state machine and the
// cookie-file import/probe path of spec §4.6. The interactive terminal
// rendering of the QR code is out of scope (§1); this package only drives
// the HTTP polling loop and exposes its outcomes.
package login

import (
	"context"
	"log/slog"
	"time"

	"bilidl/internal/bilierr"
	"bilidl/internal/httpclient"
	"bilidl/internal/session"
)

const (
	qrGenerateEndpoint = "https://passport.bilibili.com/x/passport-login/web/qrcode/generate"
	qrPollEndpoint     = "https://passport.bilibili.com/x/passport-login/web/qrcode/poll"
	navEndpoint        = "https://api.bilibili.com/x/web-interface/nav"
	pollInterval       = 1 * time.Second
)

// QR login poll outcome codes, keyed by the response's data.code (spec §4.6).
const (
	pollCodeSuccess        = 0
	pollCodeExpired        = 86038
	pollCodeScannedPending = 86090
	pollCodeAwaitingScan   = 86101
)

// QRCode is what the caller (out-of-scope UI) renders to the user.
type QRCode struct {
	URL         string
	QrcodeKey   string
}

type qrGenerateResponse struct {
	URL       string `json:"url"`
	QrcodeKey string `json:"qrcode_key"`
}

type qrPollResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

// GenerateQR requests a fresh QR login token. The caller is responsible for
// rendering QRCode.URL (e.g. as a terminal QR code) — that UI is out of
// scope per spec §1.
func GenerateQR(ctx context.Context, client *httpclient.Client) (QRCode, error) {
	var resp qrGenerateResponse
	if err := client.Get(ctx, qrGenerateEndpoint, &resp); err != nil {
		return QRCode{}, err
	}
	return QRCode{URL: resp.URL, QrcodeKey: resp.QrcodeKey}, nil
}

// PollQR polls the login endpoint once per second, up to budget, per spec
// §4.6. On success the client's jar now holds the logged-in cookies and a
// new session is registered in store, returning the session id. Timeout
// yields bilierr.ErrOperationTimeout; expiry yields bilierr.ErrQrCodeExpired.
func PollQR(ctx context.Context, client *httpclient.Client, jar *session.Jar, store *session.Store, qrcodeKey string, budget time.Duration, log *slog.Logger) (string, error) {
	if log == nil {
		log = slog.Default()
	}
	if budget <= 0 {
		budget = 60 * time.Second
	}
	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return "", bilierr.ErrOperationTimeout
			}
			var resp qrPollResponse
			err := client.Get(ctx, qrPollEndpoint+"?qrcode_key="+qrcodeKey, &resp)
			if err != nil {
				return "", err
			}
			switch resp.Code {
			case pollCodeSuccess:
				id := session.NewSessionID()
				if err := store.CreateSession(ctx, id, jar); err != nil {
					return "", err
				}
				log.Info("qr login succeeded", "session_id", id)
				return id, nil
			case pollCodeExpired:
				return "", bilierr.ErrQrCodeExpired
			case pollCodeScannedPending, pollCodeAwaitingScan:
				continue
			default:
				return "", &bilierr.InvalidResponse{Reason: resp.Message}
			}
		}
	}
}

// navProbeResponse is the subset of the nav endpoint needed to check login
// state when importing a cookie file.
type navProbeResponse struct {
	IsLogin bool `json:"isLogin"`
}

// ProbeCookieFile imports path as a JSONL cookie jar and probes it against
// the navigation endpoint, per original_source's auth/session.rs pattern
// (the distilled spec leaves the exact probe unspecified). Returns a new
// session id on success, or ok=false if the jar does not carry a logged-in
// session.
func ProbeCookieFile(ctx context.Context, path string, store *session.Store) (sessionID string, ok bool, err error) {
	jar, err := session.LoadJSONL(path)
	if err != nil {
		return "", false, err
	}
	client := httpclient.NewWithJar(jar)
	var resp navProbeResponse
	if err := client.Get(ctx, navEndpoint, &resp); err != nil {
		return "", false, nil
	}
	if !resp.IsLogin {
		return "", false, nil
	}
	id := session.NewSessionID()
	if err := store.CreateSession(ctx, id, jar); err != nil {
		return "", false, err
	}
	return id, true, nil
}
