package wbi

import (
	"strings"
	"testing"
	"time"
)

func TestSignDeterministicWithinSameSecond(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = old }()

	params := map[string]string{"bvid": "BV1N6nEzhEz6", "foo": "bar!baz"}
	a := Sign(params, "imgkeyimgkeyimgkeyimgkeyimgkeyim", "subkeysubkeysubkeysubkeysubkeys")
	b := Sign(params, "imgkeyimgkeyimgkeyimgkeyimgkeyim", "subkeysubkeysubkeysubkeysubkeys")
	if a != b {
		t.Fatalf("expected identical signatures, got %q vs %q", a, b)
	}
	if strings.Contains(a, "!") || strings.Contains(a, "(") {
		t.Fatalf("signed query should have stripped special chars: %q", a)
	}
	if !strings.Contains(a, "w_rid=") || !strings.Contains(a, "wts=") {
		t.Fatalf("signed query missing w_rid/wts: %q", a)
	}
}

func TestSignDiffersAcrossSeconds(t *testing.T) {
	old := nowFunc
	defer func() { nowFunc = old }()

	params := map[string]string{"bvid": "BV1N6nEzhEz6"}
	nowFunc = func() time.Time { return time.Unix(1000, 0) }
	a := Sign(params, "k1", "k2")
	nowFunc = func() time.Time { return time.Unix(2000, 0) }
	b := Sign(params, "k1", "k2")
	if a == b {
		t.Fatalf("expected signatures to differ across seconds")
	}
}

func TestMixinKeyLength(t *testing.T) {
	orig := "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ01"
	got := mixinKey(orig[:34], orig[34:])
	if len(got) > 32 {
		t.Fatalf("mixin key should be at most 32 chars, got %d", len(got))
	}
}
