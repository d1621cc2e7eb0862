package auth

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"lablog-console/internal/model"
	"lablog-console/internal/session"
	"lablog-console/internal/upstream"
)

// State is the position of a login attempt.
type State int

const (
	Idle State = iota
	Submitting
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "idle"
	}
}

// ErrInProgress is returned when a second submit arrives while one is outstanding.
var ErrInProgress = errors.New("login already in progress")

// Credentials is what the login form submits.
type Credentials struct {
	UserID   string
	Password string
	Remember bool
}

// Flow drives one login screen: Idle -> Submitting -> Success or Failure.
// A failed attempt may be resubmitted.
type Flow struct {
	backend  upstream.Backend
	sessions *session.Store

	mu    sync.Mutex
	state State
}

// NewFlow creates a login flow in the Idle state.
func NewFlow(backend upstream.Backend, sessions *session.Store) *Flow {
	return &Flow{backend: backend, sessions: sessions}
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Submit performs the login and, on success, writes the session for sid.
// Errors are classified upstream errors and are meant to be shown verbatim.
func (f *Flow) Submit(ctx context.Context, sid string, creds Credentials) (model.Session, error) {
	f.mu.Lock()
	if f.state == Submitting {
		f.mu.Unlock()
		return model.Session{}, ErrInProgress
	}
	f.state = Submitting
	f.mu.Unlock()

	sess, err := f.submit(ctx, sid, creds)

	f.mu.Lock()
	if err != nil {
		f.state = Failure
	} else {
		f.state = Success
	}
	f.mu.Unlock()
	return sess, err
}

func (f *Flow) submit(ctx context.Context, sid string, creds Credentials) (model.Session, error) {
	userID := strings.TrimSpace(creds.UserID)
	if userID == "" || creds.Password == "" {
		return model.Session{}, upstream.Validation("Please enter your user id and password.")
	}

	resp, err := f.backend.Login(ctx, userID, creds.Password)
	if err != nil {
		if upstream.KindOf(err) == upstream.KindConfig {
			log.Printf("Login for %s failed, upstream unreachable or misconfigured: %v", userID, err)
		}
		return model.Session{}, err
	}
	if resp == nil || resp.Token == "" {
		return model.Session{}, &upstream.Error{
			Kind:    upstream.KindServer,
			Message: "The login response did not include a token.",
		}
	}

	sess := model.Session{
		Token:     resp.Token,
		UserName:  UserNameFromEmail(userID),
		UserEmail: userID,
		UserRole:  resp.Role,
		LastPage:  "dashboard",
		Remember:  creds.Remember,
	}
	if err := f.sessions.Write(ctx, sid, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// UserNameFromEmail derives the display name from the local part of an email.
func UserNameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	return local
}

// Logout invalidates the upstream token on a best-effort basis and always
// clears the local session.
func Logout(ctx context.Context, backend upstream.Backend, sessions *session.Store, sid string) error {
	sess, ok, err := sessions.Read(ctx, sid)
	if err != nil {
		log.Printf("Logout: could not read session: %v", err)
	}
	if ok && sess.Token != "" {
		if err := backend.Logout(ctx, sess.Token); err != nil {
			log.Printf("Logout: upstream logout for %s failed: %v", sess.UserEmail, err)
		}
	}
	return sessions.Clear(ctx, sid)
}
