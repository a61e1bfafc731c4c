package availability

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warehousekit/dispatchd/core/logger"
)

// DefaultPollInterval is used when the configuration does not set one.
const DefaultPollInterval = 30 * time.Second

// freeStatus is the only status that keeps a candidate usable.
const freeStatus = "free"

// ErrNoData signals that the status source returned nothing usable.
var ErrNoData = errors.New("availability: status source returned no data")

// StatusSource supplies the latest status string per candidate id.
// Candidates missing from the result are treated as unknown, not blocking.
type StatusSource interface {
	FetchStatuses(ctx context.Context, ids []string) (map[string]string, error)
}

// Transition describes the change between two consecutive snapshots.
type Transition struct {
	Blocked   []string
	Unblocked []string
	At        time.Time
}

// entry is one observed candidate status.
type entry struct {
	status     string
	observedAt time.Time
}

// Cache tracks which candidates are currently blocked. The snapshot is
// replaced wholesale on a successful refresh; a failed or empty query keeps
// the previous snapshot so a still-occupied resource is never re-enabled by
// a transient status-source failure.
type Cache struct {
	source StatusSource
	ids    []string
	poll   time.Duration
	log    logger.Logger
	now    func() time.Time

	// onTransition, when set, receives the blocked/unblocked sets after a
	// successful refresh that changed anything.
	onTransition func(Transition)

	mu          sync.RWMutex
	snapshot    map[string]entry
	blocked     map[string]struct{}
	lastAttempt time.Time
}

// NewCache creates a cache polling the given candidate ids.
func NewCache(source StatusSource, ids []string, poll time.Duration, log logger.Logger) *Cache {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Cache{
		source:   source,
		ids:      append([]string(nil), ids...),
		poll:     poll,
		log:      log,
		now:      time.Now,
		snapshot: make(map[string]entry),
		blocked:  make(map[string]struct{}),
	}
}

// OnTransition registers a callback invoked after refreshes that changed
// the blocked set.
func (c *Cache) OnTransition(fn func(Transition)) { c.onTransition = fn }

// Refresh queries the status source unless the poll interval has not
// elapsed and force is false. On any query failure the previous snapshot
// is kept untouched.
func (c *Cache) Refresh(ctx context.Context, force bool) {
	now := c.now()

	c.mu.Lock()
	if !force && now.Sub(c.lastAttempt) < c.poll {
		c.mu.Unlock()
		return
	}
	c.lastAttempt = now
	ids := c.ids
	c.mu.Unlock()

	statuses, err := c.source.FetchStatuses(ctx, ids)
	if err != nil {
		c.log.Warnf("status refresh failed, keeping previous snapshot: %v", err)
		return
	}
	if len(statuses) == 0 {
		c.log.Warnf("status refresh returned no data, keeping previous snapshot")
		return
	}

	next := make(map[string]entry, len(statuses))
	nextBlocked := make(map[string]struct{})
	for id, status := range statuses {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		next[id] = entry{status: status, observedAt: now}
		if !strings.EqualFold(strings.TrimSpace(status), freeStatus) {
			nextBlocked[id] = struct{}{}
		}
	}

	c.mu.Lock()
	added := diff(nextBlocked, c.blocked)
	removed := diff(c.blocked, nextBlocked)
	c.snapshot = next
	c.blocked = nextBlocked
	c.mu.Unlock()

	if len(added) > 0 {
		c.log.Warnf("candidates blocked (status != free): %s", strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		c.log.Infof("candidates usable again (status == free): %s", strings.Join(removed, ", "))
	}
	if c.onTransition != nil && (len(added) > 0 || len(removed) > 0) {
		c.onTransition(Transition{Blocked: added, Unblocked: removed, At: now})
	}
}

// IsBlocked reports whether the candidate's most recent status keeps it
// out of selection. Unknown candidates are not blocking.
func (c *Cache) IsBlocked(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, blocked := c.blocked[id]
	return blocked
}

// BlockedCount returns the size of the current blocked set.
func (c *Cache) BlockedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocked)
}

// diff returns the ids present in a but not in b, sorted.
func diff(a, b map[string]struct{}) []string {
	var out []string
	for id := range a {
		if _, ok := b[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
