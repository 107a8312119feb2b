package notify

import (
	"sync"
	"time"

	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

// Queue is the ordered list of transient notifications. Items stay until
// removed, or until the TTL elapses when one is configured.
type Queue struct {
	mu     sync.Mutex
	items  []model.Notification
	nextID int64
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Queue)

// WithTTL removes each notification after d. Zero keeps them until Remove.
func WithTTL(d time.Duration) Option {
	return func(q *Queue) { q.ttl = d }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends a notification and returns its id.
func (q *Queue) Push(kind model.NotificationKind, message string) int64 {
	q.mu.Lock()
	q.nextID++
	n := model.Notification{
		ID:        q.nextID,
		Kind:      kind,
		Message:   message,
		CreatedAt: q.now(),
	}
	q.items = append(q.items, n)
	q.mu.Unlock()

	if q.ttl > 0 {
		time.AfterFunc(q.ttl, func() { q.Remove(n.ID) })
	}
	return n.ID
}

func (q *Queue) Success(message string) int64 { return q.Push(model.KindSuccess, message) }
func (q *Queue) Error(message string) int64   { return q.Push(model.KindError, message) }
func (q *Queue) Warning(message string) int64 { return q.Push(model.KindWarning, message) }
func (q *Queue) Info(message string) int64    { return q.Push(model.KindInfo, message) }

// Remove drops the notification with the given id. Unknown ids are ignored.
func (q *Queue) Remove(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns a copy of the queue in push order.
func (q *Queue) Items() []model.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Notification(nil), q.items...)
}

// Clear empties the queue. Ids keep increasing.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
