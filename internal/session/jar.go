// Package session owns the session-id -> cookie-jar mapping of spec §4.6:
// a unique opaque id maps to exactly one cookie jar; insertion rejects
// duplicates; a jar serializes to one JSON record per line.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Record is one cookie's JSONL-serialized form (spec §9's open question,
// resolved in favor of JSONL everywhere).
type Record struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

// Jar is an http.CookieJar keyed by registrable domain (eTLD+1, per
// publicsuffix), chosen over net/http/cookiejar because that type cannot be
// enumerated for export — the spec requires a one-cookie-per-line dump.
// Safe for concurrent use; the mutex boundary documented in spec §9 design
// notes ("the jar is the only shared-mutable piece").
type Jar struct {
	mu      sync.Mutex
	byOwner map[string][]*http.Cookie // registrable domain -> cookies
}

// NewJar returns an empty Jar.
func NewJar() *Jar {
	return &Jar{byOwner: make(map[string][]*http.Cookie)}
}

func ownerOf(host string) string {
	host = strings.ToLower(host)
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return host
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	owner := ownerOf(u.Hostname())
	j.mu.Lock()
	defer j.mu.Unlock()
	existing := j.byOwner[owner]
	for _, c := range cookies {
		replaced := false
		for i, e := range existing {
			if e.Name == c.Name && e.Path == c.Path {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
	}
	j.byOwner[owner] = existing
}

// Cookies implements http.CookieJar: returns cookies whose domain is a
// suffix of u's host and whose path is a prefix of u's path (host-suffix
// scoping per spec §4.2).
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	owner := ownerOf(u.Hostname())
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	var out []*http.Cookie
	for domain, cookies := range j.byOwner {
		if !strings.HasSuffix(strings.ToLower(u.Hostname()), domain) {
			continue
		}
		for _, c := range cookies {
			if !c.Expires.IsZero() && c.Expires.Before(now) {
				continue
			}
			if c.Path != "" && !strings.HasPrefix(u.Path, c.Path) && u.Path != "" {
				if c.Path != "/" {
					continue
				}
			}
			out = append(out, c)
		}
	}
	return out
}

// Export returns every visible cookie as a flat Record slice, in a
// deterministic domain-then-name order.
func (j *Jar) Export() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Record
	for domain, cookies := range j.byOwner {
		for _, c := range cookies {
			out = append(out, Record{
				Name: c.Name, Value: c.Value, Domain: domain, Path: c.Path,
				Expires: c.Expires, Secure: c.Secure, HTTPOnly: c.HttpOnly,
			})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Domain != out[b].Domain {
			return out[a].Domain < out[b].Domain
		}
		return out[a].Name < out[b].Name
	})
	return out
}

// Import loads Records into the jar, keyed by their own Domain field.
func (j *Jar) Import(records []Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range records {
		owner := ownerOf(r.Domain)
		j.byOwner[owner] = append(j.byOwner[owner], &http.Cookie{
			Name: r.Name, Value: r.Value, Path: r.Path,
			Expires: r.Expires, Secure: r.Secure, HttpOnly: r.HTTPOnly,
		})
	}
}

// Clone returns a deep-enough copy safe for independent mutation.
func (j *Jar) Clone() *Jar {
	clone := NewJar()
	clone.Import(j.Export())
	return clone
}

// SaveJSONL writes every cookie to path as one JSON object per line,
// creating parent directories as needed.
func (j *Jar) SaveJSONL(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("session: creating jar directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("session: creating jar file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range j.Export() {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("session: encoding cookie record: %w", err)
		}
	}
	return w.Flush()
}

// MarshalJSONL renders every cookie as one JSON object per line, in memory
// (used for the optional Redis mirror, which has no filesystem path).
func (j *Jar) MarshalJSONL() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range j.Export() {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("session: encoding cookie record: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// LoadJSONL parses a JSONL cookie file into a fresh Jar. parse(serialize(j))
// round-trips over the jar's visible cookies (spec §8).
func LoadJSONL(path string) (*Jar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("session: opening jar file: %w", err)
	}
	defer f.Close()
	jar := NewJar()
	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("session: parsing jar line: %w", err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("session: reading jar file: %w", err)
	}
	jar.Import(records)
	return jar, nil
}
