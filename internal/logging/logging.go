// Package logging builds the process-wide slog.Logger, redacting the
// cookie/signing secrets spec §4.2/§4.6 pass around (SESSDATA-style
// cookie values, the WBI w_rid/wts query params) via masq, grounded on
// the pack's masq-based logger construction pattern.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/m-mizutani/masq"
)

// New builds a JSON slog.Logger at level writing to os.Stdout, with
// sensitive field names redacted regardless of where they appear in the
// attribute tree.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(level, os.Stdout)
}

func NewWithWriter(level slog.Level, w io.Writer) *slog.Logger {
	redactor := masq.New(
		masq.WithFieldName("SESSDATA"),
		masq.WithFieldName("sessdata"),
		masq.WithFieldName("bili_jct"),
		masq.WithFieldName("cookie"),
		masq.WithFieldName("Cookie"),
		masq.WithFieldName("w_rid"),
		masq.WithFieldName("wts"),
		masq.WithFieldName("value"), // session.Record.Value
	)
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			return redactor(groups, a)
		},
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
