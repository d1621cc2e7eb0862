package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"lablog-console/internal/model"
	"lablog-console/internal/store"
)

// Backend is one key/value mirror of session fields.
type Backend interface {
	Get(ctx context.Context, id string) (model.Session, bool, error)
	Put(ctx context.Context, id string, s model.Session) error
	Delete(ctx context.Context, id string) error
}

// memoryBackend keeps sessions in process memory with an idle expiry.
type memoryBackend struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemoryBackend returns the ephemeral backend. Entries expire after ttl
// without a write.
func NewMemoryBackend(c *cache.Cache, ttl time.Duration) Backend {
	return &memoryBackend{cache: c, ttl: ttl}
}

func (m *memoryBackend) key(id string) string {
	return "session:" + id
}

func (m *memoryBackend) Get(_ context.Context, id string) (model.Session, bool, error) {
	v, found := m.cache.Get(m.key(id))
	if !found {
		return model.Session{}, false, nil
	}
	return v.(model.Session), true, nil
}

func (m *memoryBackend) Put(_ context.Context, id string, s model.Session) error {
	m.cache.Set(m.key(id), s, m.ttl)
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, id string) error {
	m.cache.Delete(m.key(id))
	return nil
}

// durableBackend persists remembered sessions through the database store.
type durableBackend struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewDurableBackend returns the backend used for "remember me" sessions.
func NewDurableBackend(s store.Store, ttl time.Duration) Backend {
	return &durableBackend{store: s, ttl: ttl, now: time.Now}
}

func (d *durableBackend) Get(ctx context.Context, id string) (model.Session, bool, error) {
	rec, err := d.store.LoadSession(ctx, id, d.now().UTC())
	if err != nil {
		return model.Session{}, false, err
	}
	if rec == nil {
		return model.Session{}, false, nil
	}
	return rec.ToSession(), true, nil
}

func (d *durableBackend) Put(ctx context.Context, id string, s model.Session) error {
	return d.store.SaveSession(ctx, model.SessionRecord{
		ID:        id,
		Token:     s.Token,
		UserName:  s.UserName,
		UserEmail: s.UserEmail,
		UserRole:  s.UserRole,
		LastPage:  s.LastPage,
		ExpiresAt: d.now().UTC().Add(d.ttl),
	})
}

func (d *durableBackend) Delete(ctx context.Context, id string) error {
	return d.store.DeleteSession(ctx, id)
}
