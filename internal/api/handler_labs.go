package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"lablog-console/internal/console"
	"lablog-console/internal/inventory"
	"lablog-console/internal/mw"
)

// LabsPage lists the labs and, when a lab is chosen, its cabinet sets
// filtered by the manufacturer and variant query parameters.
func (h *Handler) LabsPage(c *gin.Context) {
	if !h.mount(c, console.ViewLabs) {
		return
	}
	ctx := c.Request.Context()
	sess := currentSession(c)
	data := gin.H{}

	labs, err := h.Inventory.Labs(ctx, sess.Token)
	if screenGone(c) {
		return
	}
	data["Labs"] = labs
	if err != nil {
		data["Error"] = userMessage(err)
		h.render(c, http.StatusOK, "labs.html", console.ViewLabs, data)
		return
	}

	labID := c.Param("lab_id")
	if labID == "" {
		h.render(c, http.StatusOK, "labs.html", console.ViewLabs, data)
		return
	}

	lab, err := h.Inventory.Lab(ctx, sess.Token, labID)
	if err != nil {
		data["Error"] = userMessage(err)
		h.render(c, http.StatusNotFound, "labs.html", console.ViewLabs, data)
		return
	}
	data["Lab"] = lab

	catalog, err := h.Inventory.Load(ctx, sess.Token, labID)
	if screenGone(c) {
		return
	}
	if err != nil {
		data["Error"] = userMessage(err)
	}
	manufacturer := c.Query("manufacturer")
	variant := c.Query("variant")
	data["Catalog"] = catalog
	data["Sets"] = catalog.Filter(manufacturer, variant)
	data["Manufacturer"] = manufacturer
	data["Variant"] = variant
	h.render(c, http.StatusOK, "labs.html", console.ViewLabs, data)
}

// GetFacets returns the manufacturer and variant facets and the sets of a lab.
func (h *Handler) GetFacets(c *gin.Context) {
	catalog, err := h.Inventory.Load(c.Request.Context(), currentSession(c).Token, c.Param("lab_id"))
	if screenGone(c) {
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": userMessage(err), "catalog": inventory.Catalog{}})
		return
	}
	c.JSON(http.StatusOK, catalog)
}

type openForm struct {
	CabinetID string `form:"cabinet_id" binding:"required"`
}

// OpenSet arms the selection of a cabinet and goes to the set detail screen.
func (h *Handler) OpenSet(c *gin.Context) {
	labID := c.Param("lab_id")
	back := console.ViewLabs.Path() + "/" + labID

	var form openForm
	if err := c.ShouldBind(&form); err != nil {
		mw.AddFlash(c, flashError, "Please choose a cabinet.")
		c.Redirect(http.StatusSeeOther, back)
		return
	}

	ctx := c.Request.Context()
	sess := currentSession(c)
	lab, err := h.Inventory.Lab(ctx, sess.Token, labID)
	if err != nil {
		flashErr(c, err)
		c.Redirect(http.StatusSeeOther, console.ViewLabs.Path())
		return
	}
	catalog, err := h.Inventory.Load(ctx, sess.Token, labID)
	if screenGone(c) {
		return
	}
	if err != nil {
		flashErr(c, err)
		c.Redirect(http.StatusSeeOther, back)
		return
	}
	sel, err := catalog.Open(lab, form.CabinetID)
	if err != nil {
		flashErr(c, err)
		c.Redirect(http.StatusSeeOther, back)
		return
	}

	h.Sessions.PutSelection(mw.SessionID(c), sel)
	log.Printf("%s opened cabinet %s in lab %s", sess.UserEmail, sel.CabinetID, sel.LabID)
	c.Redirect(http.StatusSeeOther, console.ViewSet.Path())
}
