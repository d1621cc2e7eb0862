package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"lablog-console/internal/console"
	"lablog-console/internal/dashboard"
	"lablog-console/internal/mw"
)

// DashboardPage renders the job table and reloads it from page 1. The page
// script keeps it current through the JSON endpoints below.
func (h *Handler) DashboardPage(c *gin.Context) {
	if !h.mount(c, console.ViewDashboard) {
		return
	}
	engine := h.Dashboards.Engine(mw.SessionID(c), currentSession(c))
	// A fresh engine is already loading; ErrBusy then means nothing to do.
	if err := engine.Refresh(); err != nil && !errors.Is(err, dashboard.ErrBusy) {
		log.Printf("Dashboard reload on open not issued: %v", err)
	}
	h.render(c, http.StatusOK, "dashboard.html", console.ViewDashboard, gin.H{
		"Snapshot": engine.Snapshot(),
	})
}

// GetDashboard returns the current snapshot of the session's engine.
func (h *Handler) GetDashboard(c *gin.Context) {
	engine := h.Dashboards.Engine(mw.SessionID(c), currentSession(c))
	c.JSON(http.StatusOK, engine.Snapshot())
}

// DashboardAction runs refresh, next or previous. A rejected action leaves the
// engine untouched and answers 409 with the reason.
func (h *Handler) DashboardAction(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		engine := h.Dashboards.Engine(mw.SessionID(c), currentSession(c))

		var err error
		switch action {
		case "refresh":
			err = engine.Refresh()
		case "next":
			err = engine.NextPage()
		case "previous":
			err = engine.PreviousPage()
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
			return
		}
		respondAction(c, engine, err)
	}
}

type dashboardQuery struct {
	Filters map[string]any    `json:"filters"`
	Sort    map[string]string `json:"sort"`
}

// QueryDashboard replaces the filters and sort order of the job list.
func (h *Handler) QueryDashboard(c *gin.Context) {
	var q dashboardQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	engine := h.Dashboards.Engine(mw.SessionID(c), currentSession(c))
	respondAction(c, engine, engine.Query(q.Filters, q.Sort))
}

func respondAction(c *gin.Context, engine *dashboard.Engine, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, engine.Snapshot())
	case errors.Is(err, dashboard.ErrCursorInvariant):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "snapshot": engine.Snapshot()})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": userMessage(err), "snapshot": engine.Snapshot()})
	}
}
