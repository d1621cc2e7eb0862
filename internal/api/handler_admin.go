package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lablog-console/internal/admin"
	"lablog-console/internal/console"
	"lablog-console/internal/mw"
)

// AdminPage lists the users with the invite, delete and reset forms.
func (h *Handler) AdminPage(c *gin.Context) {
	if !h.mount(c, console.ViewAdmin) {
		return
	}
	users, err := h.Admin.List(c.Request.Context(), currentSession(c))
	if screenGone(c) {
		return
	}
	data := gin.H{"Users": users}
	if err != nil {
		data["Error"] = userMessage(err)
	}
	h.render(c, http.StatusOK, "admin.html", console.ViewAdmin, data)
}

// Invite sends an invitation.
func (h *Handler) Invite(c *gin.Context) {
	var form admin.InviteForm
	if err := c.ShouldBind(&form); err != nil {
		mw.AddFlash(c, flashError, "The invite form could not be read.")
		c.Redirect(http.StatusSeeOther, console.ViewAdmin.Path())
		return
	}
	msg, err := h.Admin.Invite(c.Request.Context(), currentSession(c), form)
	if screenGone(c) {
		return
	}
	if err != nil {
		flashErr(c, err)
	} else {
		mw.AddFlash(c, flashInfo, msg)
	}
	c.Redirect(http.StatusSeeOther, console.ViewAdmin.Path())
}

type deleteForm struct {
	UserID    string `form:"user_id"`
	Confirmed bool   `form:"confirm"`
}

// DeleteUser removes a user after the operator ticked the confirmation.
func (h *Handler) DeleteUser(c *gin.Context) {
	var form deleteForm
	if err := c.ShouldBind(&form); err != nil {
		mw.AddFlash(c, flashError, "The delete form could not be read.")
		c.Redirect(http.StatusSeeOther, console.ViewAdmin.Path())
		return
	}
	err := h.Admin.Delete(c.Request.Context(), currentSession(c), form.UserID, form.Confirmed)
	if screenGone(c) {
		return
	}
	if err != nil {
		flashErr(c, err)
	} else {
		mw.AddFlash(c, flashInfo, "User "+form.UserID+" was deleted.")
	}
	c.Redirect(http.StatusSeeOther, console.ViewAdmin.Path())
}

type resetForm struct {
	NewPassword     string `form:"new_password"`
	ConfirmPassword string `form:"confirm_password"`
}

// ResetPassword sets a new password for the signed in user.
func (h *Handler) ResetPassword(c *gin.Context) {
	var form resetForm
	if err := c.ShouldBind(&form); err != nil {
		mw.AddFlash(c, flashError, "The password form could not be read.")
		c.Redirect(http.StatusSeeOther, console.ViewAdmin.Path())
		return
	}
	err := h.Admin.ResetPassword(c.Request.Context(), currentSession(c), form.NewPassword, form.ConfirmPassword)
	if screenGone(c) {
		return
	}
	if err != nil {
		flashErr(c, err)
	} else {
		mw.AddFlash(c, flashInfo, "Your password was changed.")
	}
	c.Redirect(http.StatusSeeOther, console.ViewAdmin.Path())
}
