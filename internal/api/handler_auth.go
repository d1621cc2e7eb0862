package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"lablog-console/internal/auth"
	"lablog-console/internal/console"
	"lablog-console/internal/model"
	"lablog-console/internal/mw"
)

type loginForm struct {
	UserID   string `form:"user_id"`
	Password string `form:"password"`
	Remember bool   `form:"remember"`
}

// Root sends the browser to its last visited screen.
func (h *Handler) Root(c *gin.Context) {
	sid := mw.SessionID(c)
	sess, ok, err := h.Sessions.Read(c.Request.Context(), sid)
	if err != nil {
		log.Printf("Failed to read session: %v", err)
	}
	var current *model.Session
	if ok {
		current = &sess
	}
	_, hasSelection := h.Sessions.Selection(sid)
	c.Redirect(http.StatusSeeOther, console.Landing(current, hasSelection).Path())
}

// LoginPage shows the sign in form. Signed in sessions go to the dashboard.
func (h *Handler) LoginPage(c *gin.Context) {
	sid := mw.SessionID(c)
	if sess, ok, _ := h.Sessions.Read(c.Request.Context(), sid); ok {
		_, hasSelection := h.Sessions.Selection(sid)
		c.Redirect(http.StatusSeeOther, console.Resolve(&sess, console.ViewAuth, hasSelection).Path())
		return
	}
	h.render(c, http.StatusOK, "login.html", console.ViewAuth, nil)
}

// Login submits the credentials. The session id is rotated so a signed in
// session never reuses an id issued before sign in.
func (h *Handler) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, http.StatusBadRequest, "login.html", console.ViewAuth, gin.H{"Error": "Invalid login form."})
		return
	}

	oldSID := mw.SessionID(c)
	flow := h.loginFlow(oldSID)
	newSID := mw.NewSessionID()

	sess, err := flow.Submit(c.Request.Context(), newSID, auth.Credentials{
		UserID:   form.UserID,
		Password: form.Password,
		Remember: form.Remember,
	})
	if screenGone(c) {
		return
	}
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrInProgress) {
			status = http.StatusConflict
		}
		h.render(c, status, "login.html", console.ViewAuth, gin.H{
			"Error":    userMessage(err),
			"UserID":   form.UserID,
			"Remember": form.Remember,
		})
		return
	}

	h.flows.Delete(oldSID)
	if err := h.Sessions.Clear(c.Request.Context(), oldSID); err != nil {
		log.Printf("Failed to clear pre-login session: %v", err)
	}
	mw.UseSessionID(c, newSID)
	log.Printf("%s signed in", sess.UserEmail)
	mw.AddFlash(c, flashInfo, "Welcome, "+sess.UserName+".")
	c.Redirect(http.StatusSeeOther, console.ViewDashboard.Path())
}

// Logout signs out and drops everything held for the session.
func (h *Handler) Logout(c *gin.Context) {
	sid := mw.SessionID(c)
	h.Dashboards.Remove(sid)
	h.flows.Delete(sid)
	if h.responses != nil {
		h.responses.Forget(sid)
	}
	if err := auth.Logout(c.Request.Context(), h.Backend, h.Sessions, sid); err != nil {
		log.Printf("Failed to clear session on logout: %v", err)
	}
	mw.RotateSessionID(c)
	mw.AddFlash(c, flashInfo, "You have been signed out.")
	c.Redirect(http.StatusSeeOther, console.ViewAuth.Path())
}
