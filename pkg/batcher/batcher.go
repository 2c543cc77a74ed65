package batcher

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetconf/shepherd/pkg/components"
	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/log"
	"github.com/fleetconf/shepherd/pkg/metrics"
	"github.com/fleetconf/shepherd/pkg/options"
	"github.com/fleetconf/shepherd/pkg/sessions"
	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

// Batcher periodically sweeps the fleet for components that need a
// configuration run and groups them into sessions. Components with the
// same desired configuration share a batch; a batch fires when it
// reaches the batch size or has waited out the batch window.
type Batcher struct {
	store    storage.Store
	engine   *components.Engine
	sessions *sessions.Manager
	opts     *options.Cache
	logger   zerolog.Logger
	stopCh   chan struct{}

	// pending batches by configuration name, carried across cycles until
	// they fill up or age out
	pending map[string]*pendingBatch
}

type pendingBatch struct {
	members []string
	seen    map[string]bool
	created time.Time
}

// NewBatcher creates a batcher.
func NewBatcher(store storage.Store, engine *components.Engine, mgr *sessions.Manager, opts *options.Cache) *Batcher {
	return &Batcher{
		store:    store,
		engine:   engine,
		sessions: mgr,
		opts:     opts,
		logger:   log.WithComponent("batcher"),
		stopCh:   make(chan struct{}),
		pending:  make(map[string]*pendingBatch),
	}
}

// Start begins the batching loop
func (b *Batcher) Start() {
	go b.run()
}

// Stop stops the batcher
func (b *Batcher) Stop() {
	close(b.stopCh)
}

// run is the main batching loop. The check interval is re-read each
// cycle so option changes take effect without a restart.
func (b *Batcher) run() {
	for {
		interval := time.Duration(options.DefaultBatcherCheckInterval) * time.Second
		if opts, err := b.opts.Get(); err == nil {
			interval = time.Duration(opts.BatcherCheckInterval) * time.Second
		}
		select {
		case <-time.After(interval):
			if err := b.cycle(); err != nil {
				b.logger.Error().Err(err).Msg("batcher cycle failed")
			}
		case <-b.stopCh:
			return
		}
	}
}

// cycle performs one sweep: collect eligible components into pending
// batches, then fire every batch that is full or has aged out.
func (b *Batcher) cycle() error {
	start := time.Now()
	defer func() {
		metrics.BatcherCycleDuration.Observe(time.Since(start).Seconds())
		metrics.BatcherCyclesTotal.Inc()
	}()

	opts, err := b.opts.Get()
	if err != nil {
		return err
	}

	enabled := true
	f := &filter.ComponentFilter{
		Enabled: &enabled,
		Status:  []types.ComponentStatus{types.StatusPending, types.StatusFailed},
	}
	cursor := ""
	for {
		page, next, err := b.engine.List(f, 0, cursor)
		if err != nil {
			return err
		}
		for _, c := range page {
			if !b.eligible(c, opts) {
				continue
			}
			b.enqueue(c, opts)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	window := time.Duration(opts.BatchWindow) * time.Second
	for config, batch := range b.pending {
		if len(batch.members) >= opts.BatchSize || time.Since(batch.created) >= window {
			b.fire(config, batch.members, opts)
			delete(b.pending, config)
		}
	}

	b.expireSessions(opts)
	return nil
}

// expireSessions deletes completed sessions older than the session_ttl
// option. A TTL of zero disables the sweep.
func (b *Batcher) expireSessions(opts *types.Options) {
	ttl, err := filter.ParseAge(opts.SessionTTL)
	if err != nil {
		b.logger.Warn().Err(err).Str("session_ttl", opts.SessionTTL).Msg("skipping session expiry")
		return
	}
	if ttl <= 0 {
		return
	}
	deleted, err := b.sessions.DeleteMany(&filter.SessionFilter{
		Status: types.SessionComplete,
		MinAge: ttl,
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("session expiry sweep failed")
		return
	}
	if len(deleted) > 0 {
		b.logger.Info().Int("sessions", len(deleted)).Msg("expired completed sessions")
	}
}

// eligible decides whether a component may join a batch this cycle.
func (b *Batcher) eligible(c *types.Component, opts *types.Options) bool {
	if c.DesiredConfig == "" {
		return false
	}
	retry := opts.DefaultBatcherRetryPolicy
	if c.RetryPolicy != nil {
		retry = *c.RetryPolicy
	}
	// retry < 0 means unlimited attempts
	if retry >= 0 && c.ErrorCount >= retry {
		return false
	}
	if c.Session != "" {
		sess, err := b.store.GetSession(c.Session)
		switch {
		case err == nil && sess.Status.Status != types.SessionComplete:
			// Still has a live session; one at a time per component.
			return false
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			b.logger.Warn().Err(err).Str("id", c.ID).Msg("skipping component, session lookup failed")
			return false
		}
	}
	return true
}

// enqueue adds a component to the pending batch for its configuration,
// firing the batch immediately when it fills.
func (b *Batcher) enqueue(c *types.Component, opts *types.Options) {
	batch := b.pending[c.DesiredConfig]
	if batch == nil {
		batch = &pendingBatch{seen: make(map[string]bool), created: time.Now()}
		b.pending[c.DesiredConfig] = batch
	}
	if batch.seen[c.ID] {
		return
	}
	batch.seen[c.ID] = true
	batch.members = append(batch.members, c.ID)
	if len(batch.members) >= opts.BatchSize {
		b.fire(c.DesiredConfig, batch.members, opts)
		delete(b.pending, c.DesiredConfig)
	}
}

// fire creates one session for a batch and points each member component
// at it. Members are re-checked first: a component may have converged,
// been disabled, or been handed a session while the batch waited out the
// window. Per-component failures are logged and skipped; the cycle never
// aborts.
func (b *Batcher) fire(config string, ids []string, opts *types.Options) {
	members := make([]string, 0, len(ids))
	for _, id := range ids {
		c, err := b.engine.Get(id)
		if err != nil {
			continue
		}
		if !c.Enabled || (c.Status != types.StatusPending && c.Status != types.StatusFailed) {
			continue
		}
		if !b.eligible(c, opts) {
			continue
		}
		members = append(members, id)
	}
	if len(members) == 0 {
		return
	}

	name := sessions.GenerateName("batcher")
	session := &types.Session{
		Name:          name,
		Configuration: config,
		Target: types.SessionTarget{
			Definition: types.TargetSpec,
			Groups: []types.TargetGroup{
				{Name: "batch", Members: members},
			},
		},
	}
	if _, err := b.sessions.Create(session, sessions.MaxNameLengthV3); err != nil {
		b.logger.Error().Err(err).Str("configuration", config).Msg("failed to create batch session")
		return
	}
	for _, id := range members {
		if err := b.engine.AssignSession(id, name); err != nil {
			b.logger.Error().Err(err).Str("id", id).Str("session", name).
				Msg("failed to assign session to component")
		}
	}
	metrics.BatcherSessionsCreated.Inc()
	b.logger.Info().Str("session", name).Str("configuration", config).
		Int("components", len(members)).Msg("batch session created")
}
