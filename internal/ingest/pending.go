package ingest

import (
	"container/list"
	"histomicsui/hui-server/internal/domain"
	"sync"
	"time"
)

// Defaults for zero CacheOptions fields.
const (
	DefaultCacheCapacity   = 100
	DefaultCacheExpiration = 24 * time.Hour
)

// CacheOptions controls the bounds of a PendingCache.
type CacheOptions struct {
	// Capacity is how many correlation ids are remembered. When full, the
	// oldest inserted entry is dropped to make room.
	Capacity int

	// Expiration is how long an entry lives after it was created. It is not
	// extended by later updates. Defaults to 24 hours.
	Expiration time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// pendingEntry is everything known about one correlation id.
type pendingEntry struct {
	key     string
	created time.Time
	order   *list.Element
	records map[string]domain.UploadEvent
	waiters []Task
}

// PendingCache remembers recent uploads by correlation id so that a sidecar
// can find the uploads it references regardless of arrival order. Each entry
// also holds the deferred tasks waiting for more uploads of the same
// correlation id.
type PendingCache struct {
	mu      sync.Mutex
	opts    CacheOptions
	entries map[string]*pendingEntry
	order   *list.List // oldest entry at the front
}

// NewPendingCache constructs a PendingCache with the given options.
func NewPendingCache(opts CacheOptions) *PendingCache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCacheCapacity
	}
	if opts.Expiration <= 0 {
		opts.Expiration = DefaultCacheExpiration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PendingCache{
		opts:    opts,
		entries: make(map[string]*pendingEntry, opts.Capacity),
		order:   list.New(),
	}
}

// Record stores event under identifier for the correlation id. If the
// identifier was not yet known for that id, every waiting task is removed
// and returned; the caller is responsible for submitting them.
func (c *PendingCache) Record(correlationID, identifier string, event domain.UploadEvent) []Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entry(correlationID, true)
	_, known := entry.records[identifier]
	entry.records[identifier] = event
	if known || len(entry.waiters) == 0 {
		return nil
	}

	released := entry.waiters
	entry.waiters = nil
	return released
}

// AttachReprocess registers task to be released by the next Record that
// adds a new identifier to the correlation id. A task for the same sidecar
// file replaces the one already waiting.
func (c *PendingCache) AttachReprocess(correlationID string, task Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attach(c.entry(correlationID, true), task)
}

// Await returns a snapshot of the records of the correlation id if every key
// has been recorded. Otherwise it attaches task as a waiter and returns
// false. The check and the attach happen atomically, so a Record racing
// with Await either satisfies the check or releases the waiter.
func (c *PendingCache) Await(correlationID string, keys []string, task Task) (map[string]domain.UploadEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entry(correlationID, true)
	for _, key := range keys {
		if _, ok := entry.records[key]; !ok {
			c.attach(entry, task)
			return nil, false
		}
	}
	return copyRecords(entry.records), true
}

// Lookup returns a copy of the records of a correlation id.
func (c *PendingCache) Lookup(correlationID string) (map[string]domain.UploadEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entry(correlationID, false)
	if entry == nil {
		return nil, false
	}
	return copyRecords(entry.records), true
}

// Waiting returns how many tasks wait on a correlation id.
func (c *PendingCache) Waiting(correlationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entry(correlationID, false)
	if entry == nil {
		return 0
	}
	return len(entry.waiters)
}

// Len returns the number of live entries.
func (c *PendingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expire()
	return len(c.entries)
}

// Purge drops every entry, including waiting tasks.
func (c *PendingCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*pendingEntry, c.opts.Capacity)
	c.order.Init()
}

// entry returns the live entry of key, creating it when create is set.
//
// NOTE the caller must hold c.mu.
func (c *PendingCache) entry(key string, create bool) *pendingEntry {
	c.expire()

	if entry, ok := c.entries[key]; ok {
		return entry
	}
	if !create {
		return nil
	}

	for len(c.entries) >= c.opts.Capacity {
		c.remove(c.order.Front().Value.(*pendingEntry))
	}

	entry := &pendingEntry{
		key:     key,
		created: c.opts.Now(),
		records: map[string]domain.UploadEvent{},
	}
	entry.order = c.order.PushBack(entry)
	c.entries[key] = entry
	return entry
}

// expire drops entries older than the expiration. Entries are ordered by
// creation time, so only the front of the list needs checking.
//
// NOTE the caller must hold c.mu.
func (c *PendingCache) expire() {
	now := c.opts.Now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		entry := front.Value.(*pendingEntry)
		if now.Sub(entry.created) <= c.opts.Expiration {
			return
		}
		c.remove(entry)
	}
}

func (c *PendingCache) remove(entry *pendingEntry) {
	c.order.Remove(entry.order)
	delete(c.entries, entry.key)
}

func (c *PendingCache) attach(entry *pendingEntry, task Task) {
	for i, waiting := range entry.waiters {
		if waiting.Event.File.ID == task.Event.File.ID {
			entry.waiters[i] = task
			return
		}
	}
	entry.waiters = append(entry.waiters, task)
}

func copyRecords(records map[string]domain.UploadEvent) map[string]domain.UploadEvent {
	copied := make(map[string]domain.UploadEvent, len(records))
	for key, event := range records {
		copied[key] = event
	}
	return copied
}
