package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"lablog-console/internal/admin"
	"lablog-console/internal/auth"
	"lablog-console/internal/collection"
	"lablog-console/internal/console"
	"lablog-console/internal/dashboard"
	"lablog-console/internal/inventory"
	"lablog-console/internal/model"
	"lablog-console/internal/mw"
	"lablog-console/internal/session"
	"lablog-console/internal/store"
	"lablog-console/internal/upstream"
)

const sessionKey = "console.session"

// Deps are the services the handlers are built on.
type Deps struct {
	Backend    upstream.Backend
	Sessions   *session.Store
	Store      store.Store
	Inventory  *inventory.Service
	Collection *collection.Service
	Dashboards *dashboard.Registry
	Admin      *admin.Service
	Webpush    *webpush.Options
	// DemoMode is shown on every page when fixture data is served.
	DemoMode bool
}

// Handler holds shared dependencies for the console handlers.
type Handler struct {
	Deps
	// flows keeps one login state machine per browser session.
	flows *cache.Cache
	// responses is set by NewRouter.
	responses *mw.ResponseCache
}

// NewHandler creates a new console handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		Deps:  d,
		flows: cache.New(10*time.Minute, 20*time.Minute),
	}
}

func (h *Handler) loginFlow(sid string) *auth.Flow {
	if v, found := h.flows.Get(sid); found {
		return v.(*auth.Flow)
	}
	f := auth.NewFlow(h.Backend, h.Sessions)
	h.flows.SetDefault(sid, f)
	return f
}

// requireSession loads the signed in session or sends the browser to the
// login screen. JSON routes get a 401 instead.
func (h *Handler) requireSession(json bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok, err := h.Sessions.Read(c.Request.Context(), mw.SessionID(c))
		if err != nil {
			log.Printf("Failed to read session: %v", err)
		}
		if !ok {
			if json {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please sign in."})
				return
			}
			c.Redirect(http.StatusSeeOther, console.ViewAuth.Path())
			c.Abort()
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) model.Session {
	v, _ := c.Get(sessionKey)
	sess, _ := v.(model.Session)
	return sess
}

// mount resolves the requested view for the session. When it differs the
// browser is redirected and false is returned. A mounted view is remembered
// as the session's last page.
func (h *Handler) mount(c *gin.Context, requested console.View) bool {
	sid := mw.SessionID(c)
	sess := currentSession(c)
	_, hasSelection := h.Sessions.Selection(sid)

	view := console.Resolve(&sess, requested, hasSelection)
	if view != requested {
		c.Redirect(http.StatusSeeOther, view.Path())
		return false
	}
	if err := h.Sessions.SetLastPage(c.Request.Context(), sid, string(view)); err != nil {
		log.Printf("Failed to record last page %s: %v", view, err)
	}
	return true
}

// screenGone reports whether the browser stopped waiting for this request.
// Results of such requests are dropped.
func screenGone(c *gin.Context) bool {
	return c.Request.Context().Err() != nil
}

// userMessage turns any error into the single line shown to the operator.
func userMessage(err error) string {
	var ue *upstream.Error
	switch {
	case errors.As(err, &ue):
		return ue.Message
	case errors.Is(err, dashboard.ErrBusy),
		errors.Is(err, dashboard.ErrNoNextPage),
		errors.Is(err, dashboard.ErrFirstPage),
		errors.Is(err, dashboard.ErrClosed),
		errors.Is(err, admin.ErrNotAdmin),
		errors.Is(err, admin.ErrNotConfirmed),
		errors.Is(err, auth.ErrInProgress):
		return err.Error()
	default:
		log.Printf("Unexpected error: %v", err)
		return "Something went wrong. Please try again."
	}
}

// render executes a page template with the common layout fields.
func (h *Handler) render(c *gin.Context, status int, name string, view console.View, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["View"] = string(view)
	data["DemoMode"] = h.DemoMode
	data["Notices"] = mw.Flashes(c, flashInfo)
	if errs := mw.Flashes(c, flashError); len(errs) > 0 {
		data["Errors"] = errs
	}
	if v, ok := c.Get(sessionKey); ok {
		sess := v.(model.Session)
		data["Session"] = sess
		data["IsAdmin"] = sess.IsAdmin()
	}
	c.HTML(status, name, data)
}

const (
	flashInfo  = "info"
	flashError = "error"
)

func flashErr(c *gin.Context, err error) {
	mw.AddFlash(c, flashError, userMessage(err))
}
