package session

import (
	"context"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lablog-console/internal/model"
)

// fakeStore is an in-memory implementation of the session half of store.Store.
type fakeStore struct {
	rows map[string]model.SessionRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]model.SessionRecord)}
}

func (f *fakeStore) SaveSession(_ context.Context, rec model.SessionRecord) error {
	f.rows[rec.ID] = rec
	return nil
}

func (f *fakeStore) LoadSession(_ context.Context, id string, now time.Time) (*model.SessionRecord, error) {
	rec, ok := f.rows[id]
	if !ok || !rec.ExpiresAt.After(now) {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeStore) PurgeExpiredSessions(context.Context, time.Time) (int64, error) { return 0, nil }
func (f *fakeStore) UpsertSubscription(context.Context, model.PushSubscription) error {
	return nil
}
func (f *fakeStore) DeleteSubscription(context.Context, string) error { return nil }
func (f *fakeStore) Subscription(context.Context, string) (*model.PushSubscription, error) {
	return nil, nil
}
func (f *fakeStore) SubscriptionsFor(context.Context, string) ([]model.PushSubscription, error) {
	return nil, nil
}
func (f *fakeStore) DB() *gorm.DB { return nil }

func newTestStore() (*Store, *fakeStore, *cache.Cache) {
	fs := newFakeStore()
	c := cache.New(time.Hour, time.Hour)
	s := NewStore(
		NewDurableBackend(fs, 24*time.Hour),
		NewMemoryBackend(c, time.Hour),
		c,
		time.Hour,
	)
	return s, fs, c
}

func TestStore_WriteWithoutRememberIsEphemeral(t *testing.T) {
	s, fs, _ := newTestStore()
	ctx := context.Background()

	sess := model.Session{Token: "t1", UserName: "a", UserEmail: "a@b.com"}
	require.NoError(t, s.Write(ctx, "sid", sess))
	assert.Empty(t, fs.rows)

	got, ok, err := s.Read(ctx, "sid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess, got)
}

func TestStore_WriteWithRememberIsDurable(t *testing.T) {
	s, fs, _ := newTestStore()
	ctx := context.Background()

	sess := model.Session{Token: "t1", UserName: "a", UserEmail: "a@b.com", Remember: true}
	require.NoError(t, s.Write(ctx, "sid", sess))
	require.Contains(t, fs.rows, "sid")
	assert.Equal(t, "t1", fs.rows["sid"].Token)

	got, ok, err := s.Read(ctx, "sid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Remember)
	assert.Equal(t, "a@b.com", got.UserEmail)
}

func TestStore_DurableTakesPrecedence(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.ephemeral.Put(ctx, "sid", model.Session{Token: "ephemeral"}))
	require.NoError(t, s.durable.Put(ctx, "sid", model.Session{Token: "durable"}))

	got, ok, err := s.Read(ctx, "sid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "durable", got.Token)
}

func TestStore_ClearRemovesEverything(t *testing.T) {
	s, fs, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.ephemeral.Put(ctx, "sid", model.Session{Token: "ephemeral"}))
	require.NoError(t, s.durable.Put(ctx, "sid", model.Session{Token: "durable"}))
	s.PutSelection("sid", model.Selection{CabinetID: "C1"})

	require.NoError(t, s.Clear(ctx, "sid"))

	_, ok, err := s.Read(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, fs.rows)
	_, ok = s.Selection("sid")
	assert.False(t, ok)
}

func TestStore_SetLastPage(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.SetLastPage(ctx, "missing", "labs"), ErrNoSession)

	require.NoError(t, s.Write(ctx, "sid", model.Session{Token: "t1", LastPage: "dashboard"}))
	require.NoError(t, s.SetLastPage(ctx, "sid", "labs"))

	got, ok, err := s.Read(ctx, "sid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "labs", got.LastPage)
	assert.Equal(t, "t1", got.Token)
}

func TestStore_Selection(t *testing.T) {
	s, _, _ := newTestStore()

	_, ok := s.Selection("sid")
	assert.False(t, ok)

	sel := model.Selection{LabID: "L1", CabinetID: "C1", Devices: []model.DeviceInfo{{GUID: "g1"}}}
	s.PutSelection("sid", sel)
	got, ok := s.Selection("sid")
	require.True(t, ok)
	assert.Equal(t, sel, got)
}
