package options

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fleetconf/shepherd/pkg/log"
	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

// Defaults applied to zero-valued option fields.
const (
	DefaultBatcherCheckInterval = 60
	DefaultBatchSize            = 100
	DefaultBatchWindow          = 60
	DefaultBatcherRetryPolicy   = 1
	DefaultPlaybook             = "site.yml"
	DefaultPageSize             = 1000
	DefaultSessionTTL           = "7d"
	DefaultLoggingLevel         = "info"
)

// Patch is a partial options update. Nil fields are left untouched.
type Patch struct {
	BatcherCheckInterval      *int    `json:"batcher_check_interval,omitempty"`
	BatchSize                 *int    `json:"batch_size,omitempty"`
	BatchWindow               *int    `json:"batch_window,omitempty"`
	DefaultBatcherRetryPolicy *int    `json:"default_batcher_retry_policy,omitempty"`
	DefaultPlaybook           *string `json:"default_playbook,omitempty"`
	DefaultPageSize           *int    `json:"default_page_size,omitempty"`
	SessionTTL                *string `json:"session_ttl,omitempty"`
	IncludeAraLinks           *bool   `json:"include_ara_links,omitempty"`
	LoggingLevel              *string `json:"logging_level,omitempty"`
}

// Cache holds the process-wide options snapshot. The first Get performs
// exactly one initialization no matter how many goroutines race on it;
// subsequent reads take the lock-free path. Reload and Update refresh the
// snapshot explicitly.
type Cache struct {
	store storage.Store
	mu    sync.Mutex
	done  atomic.Bool
	opts  atomic.Pointer[types.Options]
}

// NewCache creates an options cache backed by the store.
func NewCache(store storage.Store) *Cache {
	return &Cache{store: store}
}

// Get returns the current options snapshot, initializing it from the
// store on first use.
func (c *Cache) Get() (*types.Options, error) {
	if c.done.Load() {
		return c.opts.Load(), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have initialized while we waited on the lock.
	if c.done.Load() {
		return c.opts.Load(), nil
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	c.done.Store(true)
	return c.opts.Load(), nil
}

// Reload re-reads options from the store, discarding the cached snapshot.
func (c *Cache) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(); err != nil {
		return err
	}
	c.done.Store(true)
	return nil
}

// Update merges a partial update into the stored options and refreshes
// the snapshot.
func (c *Cache) Update(p *Patch) (*types.Options, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts, err := c.store.GetOptions()
	if errors.Is(err, storage.ErrNotFound) {
		opts = &types.Options{}
	} else if err != nil {
		return nil, err
	}
	applyDefaults(opts)
	merge(opts, p)
	if err := c.store.PutOptions(opts); err != nil {
		return nil, err
	}
	c.opts.Store(opts)
	c.done.Store(true)
	log.SetLevel(log.Level(opts.LoggingLevel))
	return opts, nil
}

// load reads options from the store, seeds defaults for missing fields,
// and persists the defaulted record so later readers see it.
func (c *Cache) load() error {
	opts, err := c.store.GetOptions()
	seeded := false
	if errors.Is(err, storage.ErrNotFound) {
		opts = &types.Options{}
		seeded = true
	} else if err != nil {
		return err
	}
	if applyDefaults(opts) || seeded {
		if err := c.store.PutOptions(opts); err != nil {
			return err
		}
	}
	c.opts.Store(opts)
	log.SetLevel(log.Level(opts.LoggingLevel))
	return nil
}

// applyDefaults fills zero-valued fields and reports whether anything
// changed.
func applyDefaults(opts *types.Options) bool {
	changed := false
	setInt := func(field *int, def int) {
		if *field == 0 {
			*field = def
			changed = true
		}
	}
	setStr := func(field *string, def string) {
		if *field == "" {
			*field = def
			changed = true
		}
	}
	setInt(&opts.BatcherCheckInterval, DefaultBatcherCheckInterval)
	setInt(&opts.BatchSize, DefaultBatchSize)
	setInt(&opts.BatchWindow, DefaultBatchWindow)
	setInt(&opts.DefaultBatcherRetryPolicy, DefaultBatcherRetryPolicy)
	setStr(&opts.DefaultPlaybook, DefaultPlaybook)
	setInt(&opts.DefaultPageSize, DefaultPageSize)
	setStr(&opts.SessionTTL, DefaultSessionTTL)
	setStr(&opts.LoggingLevel, DefaultLoggingLevel)
	return changed
}

func merge(opts *types.Options, p *Patch) {
	if p == nil {
		return
	}
	if p.BatcherCheckInterval != nil {
		opts.BatcherCheckInterval = *p.BatcherCheckInterval
	}
	if p.BatchSize != nil {
		opts.BatchSize = *p.BatchSize
	}
	if p.BatchWindow != nil {
		opts.BatchWindow = *p.BatchWindow
	}
	if p.DefaultBatcherRetryPolicy != nil {
		opts.DefaultBatcherRetryPolicy = *p.DefaultBatcherRetryPolicy
	}
	if p.DefaultPlaybook != nil {
		opts.DefaultPlaybook = *p.DefaultPlaybook
	}
	if p.DefaultPageSize != nil {
		opts.DefaultPageSize = *p.DefaultPageSize
	}
	if p.SessionTTL != nil {
		opts.SessionTTL = *p.SessionTTL
	}
	if p.IncludeAraLinks != nil {
		opts.IncludeAraLinks = *p.IncludeAraLinks
	}
	if p.LoggingLevel != nil {
		opts.LoggingLevel = *p.LoggingLevel
	}
}
