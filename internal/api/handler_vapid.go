package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetVAPIDPublicKey returns the VAPID public key to the client. Push is off
// when no key is configured.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.Webpush == nil || h.Webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.Webpush.VAPIDPublicKey})
}

// Healthz reports liveness and whether the durable store answers.
func (h *Handler) Healthz(c *gin.Context) {
	status := gin.H{"status": "ok", "demo": h.DemoMode}
	if h.Store != nil {
		sqlDB, err := h.Store.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
	}
	c.JSON(http.StatusOK, status)
}

// serviceWorker shows pushed notifications and focuses the console when one
// is clicked. The payload is notification.Payload.
const serviceWorker = `self.addEventListener("push", (event) => {
  const data = event.data ? event.data.json() : {};
  event.waitUntil(self.registration.showNotification(data.title || "Lab Log Console", {
    body: data.body || "",
    tag: data.transaction_id,
    data: { url: data.url || "/dashboard" },
  }));
});
self.addEventListener("notificationclick", (event) => {
  event.notification.close();
  event.waitUntil(clients.openWindow(event.notification.data.url));
});
`

// ServiceWorker serves the push service worker script.
func (h *Handler) ServiceWorker(c *gin.Context) {
	c.Header("Service-Worker-Allowed", "/")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(serviceWorker))
}
