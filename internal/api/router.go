package api

import (
	"embed"
	"html/template"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"golang.org/x/time/rate"

	"lablog-console/config"
	"lablog-console/internal/model"
	"lablog-console/internal/mw"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templateFuncs = template.FuncMap{
	"join":    strings.Join,
	"isReady": func(code int) bool { return code == model.StatusReady },
}

// Templates parses the embedded page templates.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html"))
}

// NewRouter creates and configures the console's Gin router.
func NewRouter(h *Handler, cfg *config.Config, cookies sessions.Store) *gin.Engine {
	r := gin.Default()
	r.SetHTMLTemplate(Templates())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	h.responses = mw.NewResponseCache(cfg.Server.CacheTTL)

	r.GET("/healthz", h.Healthz)
	r.GET("/sw.js", h.ServiceWorker)

	r.Use(rateLimiter, mw.Sessions(cookies, cfg.Session.CookieName))

	r.GET("/", h.Root)
	r.GET("/login", h.LoginPage)
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)

	pages := r.Group("/", h.requireSession(false))
	{
		pages.GET("/dashboard", h.DashboardPage)
		pages.GET("/labs", h.LabsPage)
		pages.GET("/labs/:lab_id", h.LabsPage)
		pages.POST("/labs/:lab_id/open", h.OpenSet)
		pages.GET("/set", h.SetPage)
		pages.POST("/set/collect", h.Collect)
		pages.GET("/admin", h.AdminPage)
		pages.POST("/admin/invite", h.Invite)
		pages.POST("/admin/delete", h.DeleteUser)
		pages.POST("/admin/reset", h.ResetPassword)
	}

	api := r.Group("/api", h.requireSession(true))
	{
		api.GET("/dashboard", h.GetDashboard)
		api.POST("/dashboard/refresh", h.DashboardAction("refresh"))
		api.POST("/dashboard/next", h.DashboardAction("next"))
		api.POST("/dashboard/previous", h.DashboardAction("previous"))
		api.POST("/dashboard/query", h.QueryDashboard)

		api.GET("/labs/:lab_id/facets", h.responses.Handler(), h.GetFacets)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
