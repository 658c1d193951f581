package quota

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultLimit is the free-tier allowance of primary queries per day.
	DefaultLimit = 100
	// DefaultKey names the persisted record.
	DefaultKey = "gsearch_query_count"
	// DateLayout renders the window key from the local calendar date.
	DateLayout = "Mon Jan 02 2006"
)

// State is the persisted record, read and written as a unit.
type State struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Tracker counts productive primary-tier queries per local calendar day.
// Persistence is best-effort: store errors are logged and never returned, and
// the in-memory state keeps gating the primary tier when the store is down.
type Tracker struct {
	store  Store
	key    string
	limit  int
	now    func() time.Time
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

type Option func(*Tracker)

func WithLimit(n int) Option { return func(t *Tracker) { t.limit = n } }

func WithKey(key string) Option { return func(t *Tracker) { t.key = key } }

// WithClock replaces time.Now, letting tests move across midnight.
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

func WithLogger(l zerolog.Logger) Option { return func(t *Tracker) { t.logger = l } }

// NewTracker reads the stored record once. A missing or unreadable record
// starts a fresh window for today.
func NewTracker(ctx context.Context, store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		key:    DefaultKey,
		limit:  DefaultLimit,
		now:    time.Now,
		logger: log.Logger,
	}
	for _, o := range opts {
		o(t)
	}
	if t.limit <= 0 {
		t.limit = DefaultLimit
	}
	t.state = State{Date: t.today()}
	if store == nil {
		return t
	}
	b, err := store.Load(ctx, t.key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		t.logger.Warn().Err(err).Str("key", t.key).Msg("quota load failed; starting fresh window")
	default:
		var s State
		if err := json.Unmarshal(b, &s); err != nil || s.Count < 0 {
			t.logger.Warn().Err(err).Str("key", t.key).Msg("quota record malformed; starting fresh window")
		} else {
			t.state = s
		}
	}
	return t
}

func (t *Tracker) today() string { return t.now().Format(DateLayout) }

func (t *Tracker) Limit() int { return t.limit }

// CurrentCount returns today's count, resetting and persisting the record
// first when it belongs to another day.
func (t *Tracker) CurrentCount(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(ctx)
	return t.state.Count
}

// IsExhausted reports whether today's count has reached the limit.
func (t *Tracker) IsExhausted(ctx context.Context) bool {
	return t.CurrentCount(ctx) >= t.limit
}

// Remaining returns how many primary queries are left today, never negative.
func (t *Tracker) Remaining(ctx context.Context) int {
	return max(0, t.limit-t.CurrentCount(ctx))
}

// Increment records one productive primary query.
func (t *Tracker) Increment(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(ctx)
	t.state.Count++
	t.persist(ctx)
}

// Reset zeroes today's count.
func (t *Tracker) Reset(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = State{Date: t.today()}
	t.persist(ctx)
}

// Snapshot returns the current record after rollover.
func (t *Tracker) Snapshot(ctx context.Context) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(ctx)
	return t.state
}

// rollover must be called with mu held.
func (t *Tracker) rollover(ctx context.Context) {
	today := t.today()
	if t.state.Date == today {
		return
	}
	t.logger.Debug().Str("from", t.state.Date).Str("to", today).Int("count", t.state.Count).Msg("quota window rolled over")
	t.state = State{Date: today}
	t.persist(ctx)
}

// persist must be called with mu held.
func (t *Tracker) persist(ctx context.Context) {
	if t.store == nil {
		return
	}
	b, err := json.Marshal(t.state)
	if err != nil {
		t.logger.Warn().Err(err).Msg("quota encode failed")
		return
	}
	if err := t.store.Save(ctx, t.key, b); err != nil {
		t.logger.Warn().Err(err).Str("key", t.key).Msg("quota persist failed")
	}
}
