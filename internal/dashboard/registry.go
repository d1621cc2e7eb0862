package dashboard

import (
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"lablog-console/config"
	"lablog-console/internal/model"
	"lablog-console/internal/upstream"
)

// ReadyFunc is told about jobs of a user that became ready for download.
type ReadyFunc func(userEmail string, jobs []model.LogCollectionJob)

type entry struct {
	engine *Engine
	token  string
}

// Registry keeps one engine per browser session. Engines idle for longer
// than the configured time are stopped and dropped.
type Registry struct {
	backend upstream.Backend
	opts    Options
	idle    time.Duration
	onReady ReadyFunc

	mu      sync.Mutex
	engines *cache.Cache
}

// NewRegistry creates an empty registry. onReady may be nil.
func NewRegistry(backend upstream.Backend, cfg config.DashboardConfig, onReady ReadyFunc) *Registry {
	idle := time.Duration(cfg.IdleMinutes) * time.Minute
	if idle <= 0 {
		idle = 15 * time.Minute
	}
	engines := cache.New(idle, time.Minute)
	engines.OnEvicted(func(sid string, v interface{}) {
		v.(*entry).engine.Stop()
	})
	return &Registry{
		backend: backend,
		opts:    Options{Limit: cfg.PageLimit, PollInterval: cfg.PollInterval},
		idle:    idle,
		onReady: onReady,
		engines: engines,
	}
}

// Engine returns the started engine of the session, creating it on first use
// or when the session's token changed. Every call renews the idle timeout.
func (r *Registry) Engine(sid string, sess model.Session) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, found := r.engines.Get(sid); found {
		ent := v.(*entry)
		if ent.token == sess.Token {
			r.engines.Set(sid, ent, r.idle)
			return ent.engine
		}
		r.engines.Delete(sid)
	}

	opts := r.opts
	if r.onReady != nil {
		email := sess.UserEmail
		notify := r.onReady
		opts.OnApply = func(prev, next []model.LogCollectionJob) {
			if ready := NewlyReady(prev, next); len(ready) > 0 {
				notify(email, ready)
			}
		}
	}
	engine := NewEngine(r.backend, sess.Token, opts)
	r.engines.Set(sid, &entry{engine: engine, token: sess.Token}, r.idle)
	engine.Start()
	log.Printf("Dashboard engine started for %s", sess.UserEmail)
	return engine
}

// Remove stops and drops the engine of a session, if any.
func (r *Registry) Remove(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines.Delete(sid)
}

// Close stops every engine.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid := range r.engines.Items() {
		r.engines.Delete(sid)
	}
}

// Len is the number of live engines.
func (r *Registry) Len() int {
	return r.engines.ItemCount()
}
