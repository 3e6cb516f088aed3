// Package wbi computes the "wbi" signed query string the platform requires
// on a class of navigation/metadata endpoints. The algorithm is deterministic
// and total: the same parameters and keys within the same second produce
// the same signature.
package wbi

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// mixinKeyEncTab is the fixed 64-element permutation table the platform
// uses to derive a 32-character mixin key from img_key++sub_key. Only the
// first 32 indices are used.
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49, 33, 9, 42, 19, 29,
	28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25,
	54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// stripChars are removed from every parameter value before signing.
const stripChars = "!'()*"

func mixinKey(imgKey, subKey string) string {
	orig := []rune(imgKey + subKey)
	var b strings.Builder
	for _, idx := range mixinKeyEncTab[:32] {
		if idx < len(orig) {
			b.WriteRune(orig[idx])
		}
	}
	return b.String()
}

func stripSpecial(v string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripChars, r) {
			return -1
		}
		return r
	}, v)
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

func buildQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return strings.Join(parts, "&")
}

// Sign builds a URL-encoded, lexicographically sorted query string
// containing params plus wts=<unix seconds> and w_rid=<hex md5>, per spec §4.1.
func Sign(params map[string]string, imgKey, subKey string) string {
	mixin := mixinKey(imgKey, subKey)

	filtered := make(map[string]string, len(params)+1)
	for k, v := range params {
		filtered[k] = stripSpecial(v)
	}
	filtered["wts"] = strconv.FormatInt(nowFunc().Unix(), 10)

	q := buildQuery(filtered)

	sum := md5.Sum([]byte(q + mixin))
	filtered["w_rid"] = hex.EncodeToString(sum[:])

	return buildQuery(filtered)
}

// Keys holds the rotating img_key/sub_key pair fetched from the navigation
// endpoint and cached for the process lifetime by the HTTP client.
type Keys struct {
	ImgKey string
	SubKey string
}

// ExtractKeysFromIcons parses the img_url/sub_url fields of a nav response
// (each like ".../<key>.png") into their embedded keys: the last path
// segment with its ".png" suffix removed.
func ExtractKeysFromIcons(imgURL, subURL string) (Keys, error) {
	imgKey, err := keyFromIconURL(imgURL)
	if err != nil {
		return Keys{}, fmt.Errorf("img_url: %w", err)
	}
	subKey, err := keyFromIconURL(subURL)
	if err != nil {
		return Keys{}, fmt.Errorf("sub_url: %w", err)
	}
	return Keys{ImgKey: imgKey, SubKey: subKey}, nil
}

func keyFromIconURL(raw string) (string, error) {
	last := raw
	if idx := strings.LastIndexByte(raw, '/'); idx >= 0 {
		last = raw[idx+1:]
	}
	last = strings.TrimSuffix(last, ".png")
	if last == "" {
		return "", fmt.Errorf("could not extract key from %q", raw)
	}
	return last, nil
}
