package mw

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type snapshot struct {
	status int
	header http.Header
	body   []byte
}

type recordingWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache replays successful GET responses to the browser session that
// produced them. Entries are keyed by session id because every response was
// fetched with that session's upstream token.
type ResponseCache struct {
	entries *cache.Cache
	ttl     time.Duration
}

// NewResponseCache creates a cache whose entries live for ttl. A ttl of zero
// or less disables caching.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	cleanup := 2*ttl + time.Minute
	return &ResponseCache{entries: cache.New(ttl, cleanup), ttl: ttl}
}

func entryKey(sid, uri string) string {
	return sid + "|" + uri
}

// Handler serves cached responses and records fresh 2xx ones.
func (rc *ResponseCache) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || rc.ttl <= 0 {
			c.Next()
			return
		}

		key := entryKey(SessionID(c), c.Request.RequestURI)
		if v, found := rc.entries.Get(key); found {
			snap := v.(snapshot)
			for name, values := range snap.header {
				c.Writer.Header()[name] = values
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(snap.status)
			_, _ = c.Writer.Write(snap.body)
			c.Abort()
			return
		}

		rec := &recordingWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		if status := rec.Status(); status >= 200 && status < 300 {
			rc.entries.Set(key, snapshot{
				status: status,
				header: rec.Header().Clone(),
				body:   rec.buf.Bytes(),
			}, rc.ttl)
		}
	}
}

// Forget drops every entry of a session, e.g. when it signs out.
func (rc *ResponseCache) Forget(sid string) {
	prefix := entryKey(sid, "")
	for key := range rc.entries.Items() {
		if strings.HasPrefix(key, prefix) {
			rc.entries.Delete(key)
		}
	}
}

// Len is the number of live entries.
func (rc *ResponseCache) Len() int {
	return rc.entries.ItemCount()
}
