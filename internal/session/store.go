package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bilidl/internal/bilierr"
	"bilidl/internal/httpclient"
)

// Store maps a session id to a cookie-jar handle. Keys are unique;
// insertion is rejected if the id already exists (spec §4.6/§3). Sessions
// live for the process's duration unless explicitly destroyed.
type Store struct {
	mu       sync.Mutex
	jars     map[string]*Jar
	sessDir  string
	log      *slog.Logger
	backend  Backend // optional Redis mirror; nil means memory-only
}

// Backend is the optional durable mirror for jar blobs (spec's Redis
// domain-stack wiring, generalized from the teacher's conversion-session
// records to raw JSONL cookie blobs).
type Backend interface {
	SaveJarBlob(ctx context.Context, id string, jsonl []byte) error
	LoadJarBlob(ctx context.Context, id string) ([]byte, error)
	DeleteJarBlob(ctx context.Context, id string) error
}

// NewStore builds a Store rooted at sessDir (default "./sessions"). backend
// may be nil for a memory-only store.
func NewStore(sessDir string, backend Backend, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{jars: make(map[string]*Jar), sessDir: sessDir, backend: backend, log: log}
}

// NewSessionID returns a fresh opaque session id.
func NewSessionID() string { return uuid.NewString() }

// CreateSession clones jar into the store under id, persists it to
// <sessDir>/<id>/cookies.jsonl (and to the optional Redis backend), and
// rejects a duplicate id with bilierr.ErrSessionExists.
func (s *Store) CreateSession(ctx context.Context, id string, jar *Jar) error {
	s.mu.Lock()
	if _, exists := s.jars[id]; exists {
		s.mu.Unlock()
		return bilierr.ErrSessionExists
	}
	clone := jar.Clone()
	s.jars[id] = clone
	s.mu.Unlock()

	path := filepath.Join(s.sessDir, id, "cookies.jsonl")
	if err := clone.SaveJSONL(path); err != nil {
		return fmt.Errorf("session: persisting jar: %w", err)
	}
	if s.backend != nil {
		blob, err := clone.MarshalJSONL()
		if err != nil {
			return err
		}
		if err := s.backend.SaveJarBlob(ctx, id, blob); err != nil {
			s.log.Warn("session: redis mirror save failed", "session_id", id, "error", err)
		}
	}
	s.log.Info("session created", "session_id", id)
	return nil
}

// GetAuthedClient returns an *httpclient.Client configured with the stored
// jar for id, or a fresh anonymous client with a logged warning when id is
// unknown.
func (s *Store) GetAuthedClient(id string, opts ...httpclient.Option) *httpclient.Client {
	s.mu.Lock()
	jar, ok := s.jars[id]
	s.mu.Unlock()
	if !ok {
		s.log.Warn("session: unknown session id, returning anonymous client", "session_id", id)
		c, _ := httpclient.New(opts...)
		return c
	}
	return httpclient.NewWithJar(jar, opts...)
}

// DestroySession removes id from the in-memory map and the Redis mirror.
// The on-disk JSONL file is left in place (spec does not require deletion
// of persisted state).
func (s *Store) DestroySession(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.jars[id]; !ok {
		s.mu.Unlock()
		return bilierr.ErrSessionNotFound
	}
	delete(s.jars, id)
	s.mu.Unlock()
	if s.backend != nil {
		if err := s.backend.DeleteJarBlob(ctx, id); err != nil {
			s.log.Warn("session: redis mirror delete failed", "session_id", id, "error", err)
		}
	}
	return nil
}

// LoadFromDir imports a previously persisted session's jar from
// <sessDir>/<id>/cookies.jsonl into the store (used at process startup to
// rehydrate the session named by the -session flag).
func (s *Store) LoadFromDir(id string) error {
	path := filepath.Join(s.sessDir, id, "cookies.jsonl")
	jar, err := LoadJSONL(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.jars[id] = jar
	s.mu.Unlock()
	return nil
}

// RedisBackend implements Backend on top of go-redis, generalized from the
// teacher's RedisStore (conversion sessions) to raw cookie-jar blobs.
type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend { return &RedisBackend{rdb: rdb} }

func (r *RedisBackend) key(id string) string { return "bilidl:session:" + id }

func (r *RedisBackend) SaveJarBlob(ctx context.Context, id string, jsonl []byte) error {
	return r.rdb.Set(ctx, r.key(id), jsonl, 0).Err()
}

func (r *RedisBackend) LoadJarBlob(ctx context.Context, id string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, bilierr.ErrSessionNotFound
	}
	return b, err
}

func (r *RedisBackend) DeleteJarBlob(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.key(id)).Err()
}
