package components

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetconf/shepherd/pkg/events"
	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/log"
	"github.com/fleetconf/shepherd/pkg/options"
	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

// scanBatch bounds how many records one store scan pulls while filtering.
const scanBatch = 500

// Engine implements component state operations: reads with freshly
// aggregated status, merge patches, and bulk mutations that walk the
// keyspace in pages instead of loading it whole.
type Engine struct {
	store  storage.Store
	opts   *options.Cache
	broker *events.Broker
	logger zerolog.Logger
}

// NewEngine creates a component state engine.
func NewEngine(store storage.Store, opts *options.Cache, broker *events.Broker) *Engine {
	return &Engine{
		store:  store,
		opts:   opts,
		broker: broker,
		logger: log.WithComponent("components"),
	}
}

// Get returns a component with its status aggregated from current state.
func (e *Engine) Get(id string) (*types.Component, error) {
	c, err := e.store.GetComponent(id)
	if err != nil {
		return nil, err
	}
	c.Status = Aggregate(c, e.desiredLayers(c.DesiredConfig))
	return c, nil
}

// List returns one page of components matching the filter, plus the
// cursor for the next page ("" when the scan is exhausted). The cursor is
// only valid with the same filter.
func (e *Engine) List(f *filter.ComponentFilter, limit int, cursor string) ([]*types.Component, string, error) {
	fp := filter.Fingerprint(f)
	after, err := filter.DecodeCursor(cursor, fp)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = e.pageSize()
	}

	layerCache := make(map[string][]layerKey)
	out := []*types.Component{}
	for {
		page, more, err := e.store.ScanComponents(after, scanBatch)
		if err != nil {
			return nil, "", err
		}
		for _, c := range page {
			want, ok := layerCache[c.DesiredConfig]
			if !ok {
				want = e.desiredLayers(c.DesiredConfig)
				layerCache[c.DesiredConfig] = want
			}
			c.Status = Aggregate(c, want)
			if !f.Match(c) {
				continue
			}
			out = append(out, c)
			if len(out) == limit {
				if more || c.ID != page[len(page)-1].ID {
					return out, filter.EncodeCursor(c.ID, fp), nil
				}
				return out, "", nil
			}
		}
		if !more {
			return out, "", nil
		}
		after = page[len(page)-1].ID
	}
}

// Upsert creates or fully replaces a component. The desired configuration
// must exist when set.
func (e *Engine) Upsert(c *types.Component) (*types.Component, error) {
	if c.ID == "" {
		return nil, filter.Invalid("component id is required")
	}
	if c.DesiredConfig != "" {
		if _, err := e.store.GetConfiguration(c.DesiredConfig); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, filter.Invalid("desired configuration %q does not exist", c.DesiredConfig)
			}
			return nil, err
		}
	}
	c.LastUpdated = time.Now().UTC()
	c.Status = Aggregate(c, e.desiredLayers(c.DesiredConfig))
	if err := e.store.PutComponent(c); err != nil {
		return nil, err
	}
	e.publish(events.EventComponentUpdated, c.ID)
	return c, nil
}

// Patch merges a partial update into one component and returns the
// updated record with freshly aggregated status.
func (e *Engine) Patch(id string, p *types.ComponentPatch) (*types.Component, error) {
	if p != nil && p.State != nil && p.StateAppend != nil {
		return nil, filter.Invalid("state and state_append are mutually exclusive")
	}
	current, err := e.store.GetComponent(id)
	if err != nil {
		return nil, err
	}
	targetConfig := current.DesiredConfig
	if p != nil && p.DesiredConfig != nil {
		targetConfig = *p.DesiredConfig
	}
	// Resolve layers outside the write transaction; the closure must not
	// open nested reads.
	want := e.desiredLayers(targetConfig)
	updated, err := e.store.UpdateComponent(id, func(c *types.Component) error {
		applyPatch(c, p)
		if c.DesiredConfig == targetConfig {
			c.Status = Aggregate(c, want)
		} else {
			c.Status = Aggregate(c, nil)
		}
		c.LastUpdated = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(events.EventComponentUpdated, id)
	return updated, nil
}

// PatchIDs applies the same patch to each named component. Missing
// components are reported in the outcome instead of failing the batch.
func (e *Engine) PatchIDs(ids []string, p *types.ComponentPatch) (*types.BulkOutcome, error) {
	outcome := &types.BulkOutcome{Skipped: make(map[string]string)}
	for _, id := range ids {
		if _, err := e.Patch(id, p); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				outcome.Skipped[id] = "component not found"
				continue
			}
			return nil, fmt.Errorf("patching component %s: %w", id, err)
		}
		outcome.Succeeded = append(outcome.Succeeded, id)
	}
	return outcome, nil
}

// PatchMany applies the patch to every component matching the filter,
// walking the keyspace in pages.
func (e *Engine) PatchMany(f *filter.ComponentFilter, p *types.ComponentPatch) (*types.BulkOutcome, error) {
	outcome := &types.BulkOutcome{Skipped: make(map[string]string)}
	err := e.walk(f, func(c *types.Component) error {
		if _, err := e.Patch(c.ID, p); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Deleted between scan and patch.
				outcome.Skipped[c.ID] = "component not found"
				return nil
			}
			return fmt.Errorf("patching component %s: %w", c.ID, err)
		}
		outcome.Succeeded = append(outcome.Succeeded, c.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// AssignSession records the session a component has been handed to. The
// batcher uses the back-reference to keep a component out of new batches
// while its session is live.
func (e *Engine) AssignSession(id, session string) error {
	_, err := e.store.UpdateComponent(id, func(c *types.Component) error {
		c.Session = session
		c.LastUpdated = time.Now().UTC()
		return nil
	})
	return err
}

// Delete removes one component.
func (e *Engine) Delete(id string) error {
	if err := e.store.DeleteComponent(id); err != nil {
		return err
	}
	e.publish(events.EventComponentDeleted, id)
	return nil
}

// DeleteMany removes every component matching the filter and returns the
// IDs removed, in key order.
func (e *Engine) DeleteMany(f *filter.ComponentFilter) ([]string, error) {
	deleted := []string{}
	err := e.walk(f, func(c *types.Component) error {
		if err := e.store.DeleteComponent(c.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}
		e.publish(events.EventComponentDeleted, c.ID)
		deleted = append(deleted, c.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// walk visits every component matching the filter, one scan page at a
// time, with status aggregated before matching.
func (e *Engine) walk(f *filter.ComponentFilter, visit func(*types.Component) error) error {
	layerCache := make(map[string][]layerKey)
	after := ""
	for {
		page, more, err := e.store.ScanComponents(after, scanBatch)
		if err != nil {
			return err
		}
		for _, c := range page {
			want, ok := layerCache[c.DesiredConfig]
			if !ok {
				want = e.desiredLayers(c.DesiredConfig)
				layerCache[c.DesiredConfig] = want
			}
			c.Status = Aggregate(c, want)
			if !f.Match(c) {
				continue
			}
			if err := visit(c); err != nil {
				return err
			}
		}
		if !more {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

// desiredLayers resolves a configuration into the layer keys a component
// must satisfy. Unknown configurations and unresolvable sources yield nil,
// leaving aggregation to judge recorded results alone.
func (e *Engine) desiredLayers(configName string) []layerKey {
	if configName == "" {
		return nil
	}
	cfg, err := e.store.GetConfiguration(configName)
	if err != nil {
		return nil
	}
	defaultPlaybook := options.DefaultPlaybook
	if opts, err := e.opts.Get(); err == nil {
		defaultPlaybook = opts.DefaultPlaybook
	}
	keys := make([]layerKey, 0, len(cfg.Layers))
	for _, layer := range cfg.Layers {
		cloneURL := layer.CloneURL
		if cloneURL == "" && layer.Source != "" {
			src, err := e.store.GetSource(layer.Source)
			if err != nil {
				e.logger.Warn().Str("configuration", configName).
					Str("source", layer.Source).Msg("layer references unknown source")
				continue
			}
			cloneURL = src.CloneURL
		}
		playbook := layer.Playbook
		if playbook == "" {
			playbook = defaultPlaybook
		}
		keys = append(keys, layerKey{cloneURL: cloneURL, playbook: playbook})
	}
	return keys
}

func (e *Engine) pageSize() int {
	if opts, err := e.opts.Get(); err == nil {
		return opts.DefaultPageSize
	}
	return options.DefaultPageSize
}

func (e *Engine) publish(eventType events.EventType, id string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  id,
		Metadata: map[string]string{"component_id": id},
	})
}

// applyPatch merges a partial update into a component in place.
func applyPatch(c *types.Component, p *types.ComponentPatch) {
	if p == nil {
		return
	}
	if p.DesiredConfig != nil && *p.DesiredConfig != c.DesiredConfig {
		c.DesiredConfig = *p.DesiredConfig
		// A new target configuration restarts the retry budget.
		c.ErrorCount = 0
	}
	if p.ErrorCount != nil {
		c.ErrorCount = *p.ErrorCount
	}
	if p.RetryPolicy != nil {
		c.RetryPolicy = p.RetryPolicy
	}
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	for k, v := range p.Tags {
		if v == "" {
			delete(c.Tags, k)
			continue
		}
		if c.Tags == nil {
			c.Tags = make(map[string]string)
		}
		c.Tags[k] = v
	}
	if p.State != nil {
		c.State = *p.State
		if len(c.State) == 0 {
			c.ErrorCount = 0
		}
	}
	if p.StateAppend != nil {
		appendLayerResult(c, *p.StateAppend)
	}
}

// appendLayerResult upserts one layer result, replacing any entry with
// the same (clone URL, playbook) key.
func appendLayerResult(c *types.Component, lr types.LayerResult) {
	if lr.LastUpdated.IsZero() {
		lr.LastUpdated = time.Now().UTC()
	}
	for i, existing := range c.State {
		if existing.CloneURL == lr.CloneURL && existing.Playbook == lr.Playbook {
			c.State[i] = lr
			return
		}
	}
	c.State = append(c.State, lr)
}
