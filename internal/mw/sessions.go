package mw

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"

	"lablog-console/config"
	"lablog-console/internal/session"
)

const (
	sessionIDKey = "console.sid"
	cookieKey    = "console.cookie"
	sidValue     = "sid"
)

// NewCookieStore creates the signed cookie store carrying the session id.
func NewCookieStore(cfg config.SessionConfig) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.RememberDays * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Sessions makes sure every request carries a session id. A missing or
// tampered cookie is replaced with a fresh id.
func Sessions(store sessions.Store, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := store.Get(c.Request, name)
		if err != nil {
			log.Printf("Discarding unreadable session cookie: %v", err)
		}
		sid, _ := s.Values[sidValue].(string)
		if sid == "" {
			sid = session.NewID()
			s.Values[sidValue] = sid
			if err := s.Save(c.Request, c.Writer); err != nil {
				log.Printf("Failed to write session cookie: %v", err)
			}
		}
		c.Set(sessionIDKey, sid)
		c.Set(cookieKey, s)
		c.Next()
	}
}

// SessionID returns the browser session id of the request.
func SessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}

func cookie(c *gin.Context) *sessions.Session {
	v, ok := c.Get(cookieKey)
	if !ok {
		return nil
	}
	s, _ := v.(*sessions.Session)
	return s
}

// NewSessionID returns an id for UseSessionID.
func NewSessionID() string {
	return session.NewID()
}

// UseSessionID moves the request to sid and writes the cookie. It must be
// called before the response body is written.
func UseSessionID(c *gin.Context, sid string) {
	c.Set(sessionIDKey, sid)
	if s := cookie(c); s != nil {
		s.Values[sidValue] = sid
		if err := s.Save(c.Request, c.Writer); err != nil {
			log.Printf("Failed to write session cookie: %v", err)
		}
	}
}

// RotateSessionID moves the request to a fresh session id.
func RotateSessionID(c *gin.Context) string {
	sid := NewSessionID()
	UseSessionID(c, sid)
	return sid
}

// AddFlash queues a one-shot message for the next rendered page.
func AddFlash(c *gin.Context, kind, msg string) {
	s := cookie(c)
	if s == nil {
		return
	}
	s.AddFlash(msg, kind)
	if err := s.Save(c.Request, c.Writer); err != nil {
		log.Printf("Failed to store flash message: %v", err)
	}
}

// Flashes pops the queued messages of a kind.
func Flashes(c *gin.Context, kind string) []string {
	s := cookie(c)
	if s == nil {
		return nil
	}
	raw := s.Flashes(kind)
	if len(raw) == 0 {
		return nil
	}
	if err := s.Save(c.Request, c.Writer); err != nil {
		log.Printf("Failed to clear flash messages: %v", err)
	}
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if msg, ok := f.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}
