package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"lablog-console/internal/model"
)

// ErrNoSession is returned when an operation needs a session and none exists.
var ErrNoSession = errors.New("no active session")

// Store mirrors session fields into a durable and an ephemeral backend.
// It does not validate what it stores.
type Store struct {
	durable   Backend
	ephemeral Backend
	scratch   *cache.Cache
	ttl       time.Duration
}

// NewStore builds the session store. scratch holds per-session values that
// never outlive the process, such as the armed cabinet selection.
func NewStore(durable, ephemeral Backend, scratch *cache.Cache, ttl time.Duration) *Store {
	return &Store{durable: durable, ephemeral: ephemeral, scratch: scratch, ttl: ttl}
}

// NewID returns a fresh browser session id.
func NewID() string {
	return uuid.NewString()
}

// Write stores the session durably when it was remembered at login, otherwise
// ephemerally.
func (s *Store) Write(ctx context.Context, id string, sess model.Session) error {
	if sess.Remember {
		if err := s.durable.Put(ctx, id, sess); err != nil {
			return fmt.Errorf("failed to write durable session: %w", err)
		}
		return s.ephemeral.Delete(ctx, id)
	}
	return s.ephemeral.Put(ctx, id, sess)
}

// Read returns the session for id. The durable copy takes precedence.
func (s *Store) Read(ctx context.Context, id string) (model.Session, bool, error) {
	if id == "" {
		return model.Session{}, false, nil
	}
	sess, ok, err := s.durable.Get(ctx, id)
	if err != nil {
		return model.Session{}, false, fmt.Errorf("failed to read durable session: %w", err)
	}
	if ok {
		return sess, true, nil
	}
	return s.ephemeral.Get(ctx, id)
}

// Clear removes every known key for id from both backends.
func (s *Store) Clear(ctx context.Context, id string) error {
	s.scratch.Delete(selectionKey(id))
	errEphemeral := s.ephemeral.Delete(ctx, id)
	errDurable := s.durable.Delete(ctx, id)
	return errors.Join(errDurable, errEphemeral)
}

// SetLastPage records the last visited view.
func (s *Store) SetLastPage(ctx context.Context, id, page string) error {
	sess, ok, err := s.Read(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSession
	}
	if sess.LastPage == page {
		return nil
	}
	sess.LastPage = page
	return s.Write(ctx, id, sess)
}

// PutSelection arms the cabinet selection for the set detail screen.
func (s *Store) PutSelection(id string, sel model.Selection) {
	s.scratch.Set(selectionKey(id), sel, s.ttl)
}

// Selection returns the armed cabinet selection.
func (s *Store) Selection(id string) (model.Selection, bool) {
	v, found := s.scratch.Get(selectionKey(id))
	if !found {
		return model.Selection{}, false
	}
	return v.(model.Selection), true
}

func selectionKey(id string) string {
	return "selection:" + id
}
