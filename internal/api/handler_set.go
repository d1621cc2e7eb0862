package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lablog-console/internal/collection"
	"lablog-console/internal/console"
	"lablog-console/internal/mw"
)

// redirectDelaySeconds is how long the confirmation stays up before the
// browser moves on to the dashboard.
const redirectDelaySeconds = 2

func setPageData(form collection.Form) gin.H {
	return gin.H{
		"Form":       form,
		"HasHAN":     form.Has(collection.LogTypeHAN),
		"HasMeter":   form.Has(collection.LogTypeMeter),
		"LogFormats": collection.LogFormats,
	}
}

// SetPage shows the armed cabinet and the log collection form.
func (h *Handler) SetPage(c *gin.Context) {
	if !h.mount(c, console.ViewSet) {
		return
	}
	sel, _ := h.Sessions.Selection(mw.SessionID(c))
	data := setPageData(collection.Form{LogTypes: []string{collection.LogTypeMeter}})
	data["Selection"] = sel
	h.render(c, http.StatusOK, "set.html", console.ViewSet, data)
}

// Collect submits the log collection form. On failure the form is shown
// again with every value kept.
func (h *Handler) Collect(c *gin.Context) {
	sid := mw.SessionID(c)
	sel, ok := h.Sessions.Selection(sid)
	if !ok {
		mw.AddFlash(c, flashError, "Select a lab and cabinet first.")
		c.Redirect(http.StatusSeeOther, console.ViewLabs.Path())
		return
	}

	var form collection.Form
	if err := c.ShouldBind(&form); err != nil {
		data := setPageData(form)
		data["Selection"] = sel
		data["Error"] = "The form could not be read."
		h.render(c, http.StatusBadRequest, "set.html", console.ViewSet, data)
		return
	}

	txID, err := h.Collection.Submit(c.Request.Context(), currentSession(c).Token, sel, form)
	if screenGone(c) {
		return
	}
	data := setPageData(form)
	data["Selection"] = sel
	if err != nil {
		data["Error"] = userMessage(err)
		h.render(c, http.StatusUnprocessableEntity, "set.html", console.ViewSet, data)
		return
	}

	data["Submitted"] = txID
	data["RedirectTo"] = console.ViewDashboard.Path()
	data["RedirectDelay"] = redirectDelaySeconds
	h.render(c, http.StatusOK, "set.html", console.ViewSet, data)
}
