package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetconf/shepherd/pkg/events"
	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/log"
	"github.com/fleetconf/shepherd/pkg/options"
	"github.com/fleetconf/shepherd/pkg/runner"
	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

const (
	// MaxNameLengthV3 is the session name bound on the v3 surface. It is
	// the stricter of the two; generated names always fit it.
	MaxNameLengthV3 = 45
	// MaxNameLengthV2 is the historical v2 bound.
	MaxNameLengthV2 = 50
)

// scanBatch bounds how many records one store scan pulls while filtering.
const scanBatch = 500

// statusRank orders session status values; patches may only move forward.
var statusRank = map[types.SessionStatus]int{
	types.SessionPending:  0,
	types.SessionRunning:  1,
	types.SessionComplete: 2,
}

// succeededRank orders succeeded values; patches may only move forward.
var succeededRank = map[types.SessionSucceeded]int{
	types.SucceededNone:    0,
	types.SucceededUnknown: 1,
	types.SucceededFalse:   2,
	types.SucceededTrue:    3,
}

// StatusPatch updates the status subtree of a session. No other session
// field is patchable.
type StatusPatch struct {
	Status    *types.SessionStatus    `json:"status,omitempty"`
	Succeeded *types.SessionSucceeded `json:"succeeded,omitempty"`
}

// Manager owns the session lifecycle: validated creation with a unique
// name, monotonic status updates, and deletion.
type Manager struct {
	store  storage.Store
	opts   *options.Cache
	broker *events.Broker
	runner runner.Runner
	logger zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(store storage.Store, opts *options.Cache, broker *events.Broker, run runner.Runner) *Manager {
	if run == nil {
		run = runner.NopRunner{}
	}
	return &Manager{
		store:  store,
		opts:   opts,
		broker: broker,
		runner: run,
		logger: log.WithComponent("sessions"),
	}
}

// GenerateName returns a fresh session name that fits the strictest name
// bound.
func GenerateName(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

// Create validates and persists a new session, then hands it to the
// runner asynchronously. The name must be free; a taken name is a
// conflict, not an upsert.
func (m *Manager) Create(s *types.Session, maxNameLength int) (*types.Session, error) {
	if s.Name == "" {
		return nil, filter.Invalid("session name is required")
	}
	if maxNameLength > 0 && len(s.Name) > maxNameLength {
		return nil, filter.Invalid("session name exceeds %d characters", maxNameLength)
	}
	if s.Configuration == "" {
		return nil, filter.Invalid("configuration_name is required")
	}
	if _, err := m.store.GetConfiguration(s.Configuration); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, filter.Invalid("configuration %q does not exist", s.Configuration)
		}
		return nil, err
	}
	if err := validateTarget(&s.Target); err != nil {
		return nil, err
	}

	s.Status = types.SessionStatusInfo{
		Status:    types.SessionPending,
		Succeeded: types.SucceededNone,
	}
	if err := m.store.PutSessionIfAbsent(s); err != nil {
		return nil, err
	}
	m.publish(events.EventSessionCreated, s.Name)

	// Fire-and-forget: the runner must never block or fail creation.
	go func(sess types.Session) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := m.runner.Trigger(ctx, &sess); err != nil {
			m.logger.Error().Err(err).Str("session", sess.Name).Msg("runner trigger failed")
		}
	}(*s)

	return s, nil
}

// Get returns a session by name.
func (m *Manager) Get(name string) (*types.Session, error) {
	return m.store.GetSession(name)
}

// List returns one page of sessions matching the filter, plus the cursor
// for the next page.
func (m *Manager) List(f *filter.SessionFilter, limit int, cursor string) ([]*types.Session, string, error) {
	fp := filter.Fingerprint(f)
	after, err := filter.DecodeCursor(cursor, fp)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = m.pageSize()
	}

	now := time.Now()
	out := []*types.Session{}
	for {
		page, more, err := m.store.ScanSessions(after, scanBatch)
		if err != nil {
			return nil, "", err
		}
		for _, s := range page {
			if !f.Match(s, now) {
				continue
			}
			out = append(out, s)
			if len(out) == limit {
				if more || s.Name != page[len(page)-1].Name {
					return out, filter.EncodeCursor(s.Name, fp), nil
				}
				return out, "", nil
			}
		}
		if !more {
			return out, "", nil
		}
		after = page[len(page)-1].Name
	}
}

// Patch applies a status update. Status and succeeded values only move
// forward; a patch attempting to regress either is rejected.
func (m *Manager) Patch(name string, p *StatusPatch) (*types.Session, error) {
	if p == nil || (p.Status == nil && p.Succeeded == nil) {
		return nil, filter.Invalid("only the status subtree of a session is patchable")
	}
	completed := false
	updated, err := m.store.UpdateSession(name, func(s *types.Session) error {
		if p.Status != nil {
			next, ok := statusRank[*p.Status]
			if !ok {
				return filter.Invalid("invalid session status %q", *p.Status)
			}
			if next < statusRank[s.Status.Status] {
				return filter.Invalid("session status cannot move from %q back to %q", s.Status.Status, *p.Status)
			}
			if next > statusRank[s.Status.Status] {
				now := time.Now().UTC()
				if *p.Status == types.SessionRunning && s.Status.StartTime == nil {
					s.Status.StartTime = &now
				}
				if *p.Status == types.SessionComplete {
					if s.Status.StartTime == nil {
						s.Status.StartTime = &now
					}
					s.Status.CompletionTime = &now
					completed = true
				}
				s.Status.Status = *p.Status
			}
		}
		if p.Succeeded != nil {
			next, ok := succeededRank[*p.Succeeded]
			if !ok {
				return filter.Invalid("invalid succeeded value %q", *p.Succeeded)
			}
			if next < succeededRank[s.Status.Succeeded] {
				return filter.Invalid("session succeeded cannot move from %q back to %q", s.Status.Succeeded, *p.Succeeded)
			}
			s.Status.Succeeded = *p.Succeeded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if completed {
		m.publish(events.EventSessionCompleted, name)
	}
	return updated, nil
}

// Delete removes one session.
func (m *Manager) Delete(name string) error {
	if _, err := m.store.GetDeleteSession(name); err != nil {
		return err
	}
	m.publish(events.EventSessionDeleted, name)
	return nil
}

// DeleteMany removes every session matching the filter and returns the
// names removed, in key order.
func (m *Manager) DeleteMany(f *filter.SessionFilter) ([]string, error) {
	now := time.Now()
	deleted := []string{}
	after := ""
	for {
		page, more, err := m.store.ScanSessions(after, scanBatch)
		if err != nil {
			return nil, err
		}
		for _, s := range page {
			if !f.Match(s, now) {
				continue
			}
			if _, err := m.store.GetDeleteSession(s.Name); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			m.publish(events.EventSessionDeleted, s.Name)
			deleted = append(deleted, s.Name)
		}
		if !more {
			return deleted, nil
		}
		after = page[len(page)-1].Name
	}
}

func (m *Manager) pageSize() int {
	if opts, err := m.opts.Get(); err == nil {
		return opts.DefaultPageSize
	}
	return options.DefaultPageSize
}

func (m *Manager) publish(eventType events.EventType, name string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:    eventType,
		Message: name,
	})
}

// validateTarget enforces target shape per definition: dynamic and repo
// targets carry no groups, spec and image targets need non-empty member
// lists, and image members must be UUIDs.
func validateTarget(t *types.SessionTarget) error {
	if t.Definition == "" {
		t.Definition = types.TargetDynamic
	}
	switch t.Definition {
	case types.TargetDynamic, types.TargetRepo:
		if len(t.Groups) > 0 {
			return filter.Invalid("%s targets must not specify groups", t.Definition)
		}
	case types.TargetSpec, types.TargetImage:
		if len(t.Groups) == 0 {
			return filter.Invalid("%s targets require at least one group", t.Definition)
		}
		for _, g := range t.Groups {
			if g.Name == "" {
				return filter.Invalid("target group name is required")
			}
			if len(g.Members) == 0 {
				return filter.Invalid("target group %q has no members", g.Name)
			}
			if t.Definition == types.TargetImage {
				for _, member := range g.Members {
					if _, err := uuid.Parse(member); err != nil {
						return filter.Invalid("image target member %q is not a valid UUID", member)
					}
				}
			}
		}
	default:
		return filter.Invalid("invalid target definition %q", t.Definition)
	}
	return nil
}
