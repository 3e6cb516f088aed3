package classify

import (
	"context"
	"testing"

	"bilidl/internal/model"
)

func TestAidBvidRoundTrip(t *testing.T) {
	cases := []int64{1, 2, 170001, 987654321, 112254542, (1 << 51) - 1}
	for _, aid := range cases {
		bvid := AidToBvid(aid)
		got, err := BvidToAid(bvid)
		if err != nil {
			t.Fatalf("BvidToAid(%q) error: %v", bvid, err)
		}
		if got != aid {
			t.Fatalf("round trip mismatch: aid=%d -> bvid=%q -> aid=%d", aid, bvid, got)
		}
	}
}

func TestBvidToAidRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "BV1", "not-a-bvid-at-all-x", "BV1xxxxxxxx!"} {
		if _, err := BvidToAid(bad); err == nil {
			t.Fatalf("expected error for input %q", bad)
		}
	}
}

func TestClassifyBarePatterns(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		in       string
		wantTag  model.UrlKindTag
	}{
		{"BV1N6nEzhEz6", model.KindClip},
		{"av170001", model.KindClip},
		{"ep326342", model.KindBangumiEpisode},
		{"ss33399", model.KindBangumiSeason},
		{"cp12345", model.KindCourseEpisode},
		{"cs6789", model.KindCourseSeason},
	}
	for _, c := range cases {
		got, err := Classify(ctx, c.in, nil)
		if err != nil {
			t.Fatalf("Classify(%q): unexpected error: %v", c.in, err)
		}
		if got.Tag != c.wantTag {
			t.Fatalf("Classify(%q) = tag %v, want %v", c.in, got.Tag, c.wantTag)
		}
	}
}

func TestClassifyRoundTripLaw(t *testing.T) {
	ctx := context.Background()
	urls := []string{
		"https://www.bilibili.com/video/BV1N6nEzhEz6",
		"https://www.bilibili.com/bangumi/play/ep326342",
		"https://www.bilibili.com/bangumi/play/ss33399",
		"https://www.bilibili.com/cheese/play/ep12345",
		"https://www.bilibili.com/cheese/play/ss6789",
	}
	bareOf := map[string]string{
		urls[0]: "BV1N6nEzhEz6",
		urls[1]: "ep326342",
		urls[2]: "ss33399",
		urls[3]: "cp12345",
		urls[4]: "cs6789",
	}
	for _, u := range urls {
		direct, err := Classify(ctx, u, nil)
		if err != nil {
			t.Fatalf("Classify(%q) error: %v", u, err)
		}
		viaBare, err := Classify(ctx, bareOf[u], nil)
		if err != nil {
			t.Fatalf("Classify(%q) error: %v", bareOf[u], err)
		}
		if direct != viaBare {
			t.Fatalf("round trip law violated for %q: %+v vs %+v", u, direct, viaBare)
		}
	}
}

func TestClassifyUnsupported(t *testing.T) {
	ctx := context.Background()
	if _, err := Classify(ctx, "not a valid id at all", nil); err == nil {
		t.Fatalf("expected error for unsupported input")
	}
}

func TestClassifyShortlinkWithoutRedirectorFails(t *testing.T) {
	ctx := context.Background()
	if _, err := Classify(ctx, "https://b23.tv/abcdefg", nil); err == nil {
		t.Fatalf("expected ErrInvalidShortUrl when no redirector is supplied")
	}
}

type fakeRedirector struct {
	target string
	err    error
}

func (f fakeRedirector) ResolveRedirect(ctx context.Context, rawURL string) (string, error) {
	return f.target, f.err
}

func TestClassifyShortlinkFollowsRedirect(t *testing.T) {
	ctx := context.Background()
	r := fakeRedirector{target: "https://www.bilibili.com/video/BV1N6nEzhEz6"}
	got, err := Classify(ctx, "https://b23.tv/abcdefg", r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tag != model.KindClip || got.BVID != "BV1N6nEzhEz6" {
		t.Fatalf("unexpected classification: %+v", got)
	}
}
