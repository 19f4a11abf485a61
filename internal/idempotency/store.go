package idempotency

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CedrosPay/cardcheckout/internal/storage"
)

// Response is a cached submit outcome.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body"`
	CachedAt   time.Time         `json:"cached_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

func (r *Response) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Store keeps responses by scoped idempotency key.
type Store interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, response *Response, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryStore is an LRU-bounded in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	maxSize int
	now     func() time.Time

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

type memoryEntry struct {
	key      string
	response *Response
}

// DefaultMaxEntries bounds a MemoryStore created with a non-positive size.
const DefaultMaxEntries = 10000

// NewMemoryStore creates a store holding at most maxSize responses and sweeping
// expired ones every cleanupInterval (zero disables the sweep).
func NewMemoryStore(maxSize int, cleanupInterval time.Duration) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	s := &MemoryStore{
		entries:     make(map[string]*list.Element),
		lru:         list.New(),
		maxSize:     maxSize,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	} else {
		close(s.cleanupDone)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Response, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if entry.response.expired(now) {
		s.removeLocked(el)
		return nil, false
	}
	s.lru.MoveToFront(el)
	return entry.response, true
}

func (s *MemoryStore) Set(_ context.Context, key string, response *Response, ttl time.Duration) error {
	stored := *response
	if ttl > 0 {
		stored.ExpiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		el.Value.(*memoryEntry).response = &stored
		s.lru.MoveToFront(el)
		return nil
	}

	// Evict first so the map never exceeds maxSize.
	if len(s.entries) >= s.maxSize {
		if back := s.lru.Back(); back != nil {
			s.removeLocked(back)
		}
	}
	s.entries[key] = s.lru.PushFront(&memoryEntry{key: key, response: &stored})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		s.removeLocked(el)
	}
	return nil
}

// Len returns the number of cached responses, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	<-s.cleanupDone
	return nil
}

func (s *MemoryStore) removeLocked(el *list.Element) {
	s.lru.Remove(el)
	delete(s.entries, el.Value.(*memoryEntry).key)
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for el := s.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memoryEntry).response.expired(now) {
			s.removeLocked(el)
		}
		el = prev
	}
}

// KVStore persists responses in a storage.KV so replays survive a restart
// when the KV is durable. Expired entries are removed lazily on read.
type KVStore struct {
	kv     storage.KV
	prefix string
	now    func() time.Time
}

// KeyPrefix namespaces idempotency entries inside a shared KV.
const KeyPrefix = "idempotency:"

// NewKVStore wraps kv. The KV is not owned; Close is a no-op.
func NewKVStore(kv storage.KV) *KVStore {
	return &KVStore{kv: kv, prefix: KeyPrefix, now: time.Now}
}

func (s *KVStore) Get(ctx context.Context, key string) (*Response, bool) {
	raw, err := s.kv.Get(ctx, s.prefix+key)
	if err != nil {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		_ = s.kv.Delete(ctx, s.prefix+key)
		return nil, false
	}
	if resp.expired(s.now()) {
		_ = s.kv.Delete(ctx, s.prefix+key)
		return nil, false
	}
	return &resp, true
}

func (s *KVStore) Set(ctx context.Context, key string, response *Response, ttl time.Duration) error {
	stored := *response
	if ttl > 0 {
		stored.ExpiresAt = s.now().Add(ttl)
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode idempotent response: %w", err)
	}
	return s.kv.Put(ctx, s.prefix+key, raw)
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, s.prefix+key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (s *KVStore) Close() error { return nil }
