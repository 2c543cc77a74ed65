package registry

import (
	"errors"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/fleetconf/shepherd/pkg/events"
	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/log"
	"github.com/fleetconf/shepherd/pkg/secrets"
	"github.com/fleetconf/shepherd/pkg/storage"
)

// scanBatch bounds how many records one in-use scan pulls at a time.
const scanBatch = 500

// ErrInUse is returned when deleting a configuration or source that is
// still referenced.
var ErrInUse = errors.New("resource in use")

// Registry manages configurations and sources: validated writes, soft
// delete with single-slot history, restore, and credential exchange for
// sources.
type Registry struct {
	store   storage.Store
	secrets *secrets.Manager
	broker  *events.Broker
	logger  zerolog.Logger
}

// NewRegistry creates a configuration and source registry.
func NewRegistry(store storage.Store, sm *secrets.Manager, broker *events.Broker) *Registry {
	return &Registry{
		store:   store,
		secrets: sm,
		broker:  broker,
		logger:  log.WithComponent("registry"),
	}
}

// decodeName percent-decodes a name taken from a URL path. Names with
// slashes (git URLs used as source names) arrive encoded.
func decodeName(raw string) (string, error) {
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", filter.Invalid("invalid name %q: %v", raw, err)
	}
	if name == "" {
		return "", filter.Invalid("name is required")
	}
	return name, nil
}

func (r *Registry) publish(eventType events.EventType, name string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		Type:    eventType,
		Message: name,
	})
}
