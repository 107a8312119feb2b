package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Fetcher loads one page of tasks. gateway.Gateway satisfies it.
type Fetcher interface {
	List(ctx context.Context, filter model.TaskFilter) (model.Page, error)
}

// Snapshots persists the last good page per filter across restarts.
type Snapshots interface {
	Load(ctx context.Context, filter model.TaskFilter) (model.Page, bool, error)
	Save(ctx context.Context, filter model.TaskFilter, page model.Page) error
}

// Result is what a filter currently resolves to. Page is nil until a fetch
// has succeeded (or a snapshot was found); on errors it keeps the last good
// page.
type Result struct {
	Page      *model.Page
	Status    Status
	Err       error
	Stale     bool
	FetchedAt time.Time
	// Epoch is the invalidation epoch the stored page was requested in.
	Epoch uint64
}

type entry struct {
	page      *model.Page
	fetchedAt time.Time
	err       error
	stale     bool
	seeded    bool
	gen       uint64
	storedGen uint64
	epoch     uint64
	inflight  int
}

// Query is the keyed page cache. Each filter has at most one fetch in flight
// per generation; invalidation starts a new generation.
type Query struct {
	fetcher   Fetcher
	snapshots Snapshots
	logger    *zap.Logger
	staleTime time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[model.TaskFilter]*entry
	epoch   uint64
	group   singleflight.Group
}

type Option func(*Query)

// WithStaleTime makes entries older than d refetch on the next Resolve.
// Zero means entries stay fresh until invalidated.
func WithStaleTime(d time.Duration) Option {
	return func(q *Query) { q.staleTime = d }
}

func WithSnapshots(s Snapshots) Option {
	return func(q *Query) { q.snapshots = s }
}

func WithClock(now func() time.Time) Option {
	return func(q *Query) { q.now = now }
}

func NewQuery(fetcher Fetcher, logger *zap.Logger, opts ...Option) *Query {
	q := &Query{
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
		entries: make(map[model.TaskFilter]*entry),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Resolve returns the page for filter, fetching it first when the entry is
// missing, stale or expired. Concurrent callers for the same filter share
// one fetch. A fetch keeps running if ctx is cancelled; only the wait is
// abandoned.
func (q *Query) Resolve(ctx context.Context, filter model.TaskFilter) Result {
	q.mu.Lock()
	e := q.entryLocked(filter)
	if e.page != nil && !q.needsFetchLocked(e) {
		res := q.resultLocked(e)
		q.mu.Unlock()
		return res
	}
	gen, epoch := e.gen, q.epoch
	q.mu.Unlock()

	key := filter.String() + "#" + strconv.FormatUint(gen, 10)
	fetchCtx := context.WithoutCancel(ctx)
	ch := q.group.DoChan(key, func() (any, error) {
		q.fetch(fetchCtx, filter, gen, epoch)
		return nil, nil
	})

	select {
	case <-ch:
	case <-ctx.Done():
		res := q.Peek(filter)
		if res.Err == nil {
			res.Err = ctx.Err()
		}
		return res
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	res := q.resultLocked(q.entries[filter])
	// Another flight may have started after ours; report our outcome.
	if res.Status == StatusLoading {
		if e := q.entries[filter]; e.err != nil {
			res.Status = StatusError
		} else {
			res.Status = StatusIdle
		}
	}
	return res
}

// Peek returns the current state of filter without fetching.
func (q *Query) Peek(filter model.TaskFilter) Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[filter]
	if !ok {
		return Result{Status: StatusIdle, Stale: true}
	}
	return q.resultLocked(e)
}

// Invalidate marks every cached filter matching pred stale and returns how
// many were marked.
func (q *Query) Invalidate(pred func(model.TaskFilter) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for f, e := range q.entries {
		if !pred(f) {
			continue
		}
		e.stale = true
		e.gen++
		n++
	}
	q.epoch++
	if n > 0 {
		q.logger.Debug("cache invalidated", zap.Int("entries", n))
	}
	return n
}

// InvalidateTasks marks every task list page stale.
func (q *Query) InvalidateTasks() int {
	return q.Invalidate(func(f model.TaskFilter) bool {
		return f.Scope() == model.TasksScope
	})
}

// Epoch returns the number of invalidations so far. A Result whose Epoch is
// at least the value read after an invalidation was fetched after it.
func (q *Query) Epoch() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.epoch
}

func (q *Query) fetch(ctx context.Context, filter model.TaskFilter, gen, epoch uint64) {
	q.seed(ctx, filter)

	q.mu.Lock()
	q.entries[filter].inflight++
	q.mu.Unlock()

	page, err := q.fetcher.List(ctx, filter)

	q.mu.Lock()
	e := q.entries[filter]
	e.inflight--
	if err != nil {
		if gen < e.storedGen {
			// A newer generation already landed; its page stands.
			q.mu.Unlock()
			q.logger.Debug("dropped failure of superseded fetch",
				zap.Stringer("filter", filter),
				zap.Error(err),
			)
			return
		}
		e.err = err
		q.mu.Unlock()
		q.logger.Warn("task list fetch failed",
			zap.Stringer("filter", filter),
			zap.Error(err),
		)
		return
	}
	if gen < e.storedGen {
		// A newer generation already landed.
		q.mu.Unlock()
		return
	}
	page = page.Clone()
	e.page = &page
	e.err = nil
	e.fetchedAt = q.now()
	e.storedGen = gen
	e.epoch = epoch
	e.stale = e.gen != gen
	q.mu.Unlock()

	if q.snapshots != nil {
		if err := q.snapshots.Save(ctx, filter, page); err != nil {
			q.logger.Warn("failed to save page snapshot", zap.Stringer("filter", filter), zap.Error(err))
		}
	}
}

// seed loads a persisted page into an entry that has never held one, so a
// failing first fetch still has something to show.
func (q *Query) seed(ctx context.Context, filter model.TaskFilter) {
	if q.snapshots == nil {
		return
	}

	q.mu.Lock()
	e := q.entries[filter]
	if e.seeded || e.page != nil {
		e.seeded = true
		q.mu.Unlock()
		return
	}
	e.seeded = true
	q.mu.Unlock()

	page, ok, err := q.snapshots.Load(ctx, filter)
	if err != nil {
		q.logger.Warn("failed to load page snapshot", zap.Stringer("filter", filter), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	q.mu.Lock()
	if e.page == nil {
		e.page = &page
		e.stale = true
	}
	q.mu.Unlock()
}

func (q *Query) entryLocked(filter model.TaskFilter) *entry {
	e, ok := q.entries[filter]
	if !ok {
		e = &entry{}
		q.entries[filter] = e
	}
	return e
}

func (q *Query) needsFetchLocked(e *entry) bool {
	if e.stale {
		return true
	}
	return q.staleTime > 0 && q.now().Sub(e.fetchedAt) > q.staleTime
}

func (q *Query) resultLocked(e *entry) Result {
	res := Result{
		Err:       e.err,
		Stale:     e.page == nil || q.needsFetchLocked(e),
		FetchedAt: e.fetchedAt,
		Epoch:     e.epoch,
	}
	if e.page != nil {
		p := e.page.Clone()
		res.Page = &p
	}
	switch {
	case e.inflight > 0:
		res.Status = StatusLoading
	case e.err != nil:
		res.Status = StatusError
	default:
		res.Status = StatusIdle
	}
	return res
}
