// Package dashboard implements the polled, cursor-paginated job table.
//
// An Engine holds the pagination state of one operator. Every fetch runs in
// its own goroutine, captures the request id that was current when it was
// issued, and is applied only if that id is still the latest. Issuing a new
// fetch cancels the previous one.
package dashboard

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"lablog-console/internal/model"
	"lablog-console/internal/upstream"
)

var (
	// ErrBusy rejects an action while a fetch is outstanding.
	ErrBusy = errors.New("a request is already in progress, please wait")
	// ErrNoNextPage rejects NextPage when the last response carried no cursor.
	ErrNoNextPage = errors.New("there is no next page")
	// ErrFirstPage rejects PreviousPage on page 1.
	ErrFirstPage = errors.New("already on the first page")
	// ErrCursorInvariant reports len(history) != page-1.
	ErrCursorInvariant = errors.New("cursor history does not match the current page")
	// ErrClosed rejects actions on a stopped engine.
	ErrClosed = errors.New("dashboard engine is closed")
)

// ApplyFunc observes every applied page: the rows shown before and after.
type ApplyFunc func(prev, next []model.LogCollectionJob)

// Options configures an Engine.
type Options struct {
	Limit        int
	PollInterval time.Duration
	OnApply      ApplyFunc
}

// Engine is the pagination and polling state machine for one session.
type Engine struct {
	backend  upstream.Backend
	token    string
	limit    int
	interval time.Duration
	onApply  ApplyFunc
	now      func() time.Time

	// ctx bounds every fetch and the poll loop.
	ctx       context.Context
	stop      context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	fetches   sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	page      int
	history   []model.Cursor
	current   *model.Cursor
	next      *model.Cursor
	inFlight  bool
	requestID uint64
	cancel    context.CancelFunc
	filters   map[string]any
	sort      map[string]string
	rows      []model.LogCollectionJob
	errText   string
	updatedAt time.Time
}

// NewEngine creates an idle engine on page 1. Nothing is fetched until an
// action or Start is called.
func NewEngine(backend upstream.Backend, token string, opts Options) *Engine {
	ctx, stop := context.WithCancel(context.Background())
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	return &Engine{
		backend:  backend,
		token:    token,
		limit:    opts.Limit,
		interval: opts.PollInterval,
		onApply:  opts.OnApply,
		now:      time.Now,
		ctx:      ctx,
		stop:     stop,
		page:     1,
		filters:  map[string]any{},
		sort:     map[string]string{},
	}
}

// Start loads page 1 and starts the poll timer. Only the first call has an effect.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		if err := e.Refresh(); err != nil {
			log.Printf("Dashboard initial load not issued: %v", err)
		}
		go e.Run(e.ctx)
	})
}

// Run fires Tick every poll interval until ctx ends, then stops the engine.
func (e *Engine) Run(ctx context.Context) {
	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case <-timer.C:
			if err := e.Tick(); err != nil && !errors.Is(err, ErrBusy) {
				log.Printf("Dashboard poll skipped: %v", err)
			}
			timer.Reset(e.interval)
		}
	}
}

// Stop cancels the in-flight fetch and the poll timer. It is safe to call
// more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.requestID++
		e.inFlight = false
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.mu.Unlock()
		e.stop()
	})
}

// Wait blocks until every issued fetch has returned.
func (e *Engine) Wait() {
	e.fetches.Wait()
}

// Refresh goes back to page 1 with an empty cursor history.
func (e *Engine) Refresh() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precondition("refresh"); err != nil {
		return err
	}
	e.page = 1
	e.history = nil
	e.fetchLocked(nil)
	return nil
}

// NextPage follows the cursor returned with the displayed page.
func (e *Engine) NextPage() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precondition("next"); err != nil {
		return err
	}
	if e.next == nil {
		return ErrNoNextPage
	}
	cursor := *e.next
	e.history = append(e.history, cursor)
	e.page++
	e.fetchLocked(&cursor)
	e.postcondition("next")
	return nil
}

// PreviousPage drops the last cursor and reloads the page before it.
func (e *Engine) PreviousPage() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precondition("previous"); err != nil {
		return err
	}
	if e.page == 1 {
		return ErrFirstPage
	}
	e.history = e.history[:len(e.history)-1]
	e.page--
	e.fetchLocked(e.cursorForPage())
	e.postcondition("previous")
	return nil
}

// Tick re-issues the request for the displayed page without touching the
// pagination state.
func (e *Engine) Tick() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precondition("tick"); err != nil {
		return err
	}
	e.fetchLocked(e.cursorForPage())
	return nil
}

// Query replaces the list filters and sort order and reloads page 1. Unlike
// the other actions it supersedes a fetch in flight.
func (e *Engine) Query(filters map[string]any, sort map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if filters == nil {
		filters = map[string]any{}
	}
	if sort == nil {
		sort = map[string]string{}
	}
	e.filters = filters
	e.sort = sort
	e.page = 1
	e.history = nil
	e.next = nil
	e.fetchLocked(nil)
	return nil
}

func (e *Engine) precondition(op string) error {
	if e.closed {
		return ErrClosed
	}
	if e.inFlight {
		return ErrBusy
	}
	if len(e.history) != e.page-1 {
		log.Printf("Dashboard %s rejected: page %d with %d cursors in history", op, e.page, len(e.history))
		return ErrCursorInvariant
	}
	return nil
}

func (e *Engine) postcondition(op string) {
	if len(e.history) != e.page-1 {
		log.Printf("Dashboard %s left page %d with %d cursors in history", op, e.page, len(e.history))
	}
}

// cursorForPage is the cursor that produces the current page, nil on page 1.
func (e *Engine) cursorForPage() *model.Cursor {
	if e.page < 2 {
		return nil
	}
	c := e.history[e.page-2]
	return &c
}

// fetchLocked issues a fetch for cursor. The caller holds e.mu.
func (e *Engine) fetchLocked(cursor *model.Cursor) {
	if e.cancel != nil {
		e.cancel()
	}
	e.requestID++
	id := e.requestID
	ctx, cancel := context.WithCancel(e.ctx)
	e.cancel = cancel
	e.inFlight = true

	req := upstream.ListCollectionsRequest{
		Filters:     copyFilters(e.filters),
		Sort:        copySort(e.sort),
		Limit:       e.limit,
		NextPageKey: cursor,
	}

	e.fetches.Add(1)
	go func() {
		defer e.fetches.Done()
		defer cancel()
		resp, err := e.backend.ListLogCollections(ctx, e.token, req)
		e.apply(id, cursor, resp, err)
	}()
}

// apply installs a fetch result if it is still the latest request.
func (e *Engine) apply(id uint64, cursor *model.Cursor, resp *upstream.ListCollectionsResponse, err error) {
	e.mu.Lock()
	if id != e.requestID {
		e.mu.Unlock()
		return
	}
	e.inFlight = false
	e.cancel = nil

	prev := e.rows
	if err != nil {
		log.Printf("Dashboard fetch for page %d failed: %v", e.page, err)
		e.rows = nil
		e.next = nil
		e.errText = err.Error()
		e.mu.Unlock()
		return
	}

	e.rows = resp.LogCollections
	e.next = resp.NextPageKey
	e.current = cursor
	e.errText = ""
	e.updatedAt = e.now().UTC()
	next := e.rows
	hook := e.onApply
	e.mu.Unlock()

	if hook != nil {
		hook(prev, next)
	}
}

func copyFilters(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySort(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Row is one job as displayed.
type Row struct {
	model.LogCollectionJob
	DisplayStatus string `json:"display_status"`
}

// Snapshot is the displayed state of an engine.
type Snapshot struct {
	Rows        []Row          `json:"rows"`
	Page        int            `json:"page"`
	History     []model.Cursor `json:"history"`
	Cursor      *model.Cursor  `json:"cursor"`
	HasNext     bool           `json:"has_next"`
	HasPrevious bool           `json:"has_previous"`
	Loading     bool           `json:"loading"`
	Error       string         `json:"error,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Snapshot returns a copy of the displayed state. Pagination controls are
// disabled while a fetch is outstanding.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := make([]Row, 0, len(e.rows))
	for _, j := range e.rows {
		rows = append(rows, Row{LogCollectionJob: j, DisplayStatus: j.DisplayStatus()})
	}
	history := make([]model.Cursor, len(e.history))
	copy(history, e.history)

	var current *model.Cursor
	if e.current != nil {
		c := *e.current
		current = &c
	}
	return Snapshot{
		Rows:        rows,
		Page:        e.page,
		History:     history,
		Cursor:      current,
		HasNext:     !e.inFlight && e.next != nil,
		HasPrevious: !e.inFlight && e.page > 1,
		Loading:     e.inFlight,
		Error:       e.errText,
		UpdatedAt:   e.updatedAt,
	}
}

// NewlyReady returns the jobs of next that moved to the ready status since
// prev. Jobs not present in prev are ignored.
func NewlyReady(prev, next []model.LogCollectionJob) []model.LogCollectionJob {
	before := make(map[string]int, len(prev))
	for _, j := range prev {
		before[j.TransactionID] = j.StatusCode
	}
	var out []model.LogCollectionJob
	for _, j := range next {
		code, seen := before[j.TransactionID]
		if seen && code != model.StatusReady && j.StatusCode == model.StatusReady {
			out = append(out, j)
		}
	}
	return out
}
