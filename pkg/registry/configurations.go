package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/fleetconf/shepherd/pkg/events"
	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

// GetConfiguration returns a configuration by (possibly percent-encoded)
// name.
func (r *Registry) GetConfiguration(rawName string) (*types.Configuration, error) {
	name, err := decodeName(rawName)
	if err != nil {
		return nil, err
	}
	return r.store.GetConfiguration(name)
}

// ListConfigurations returns one page of configurations in name order.
func (r *Registry) ListConfigurations(limit int, cursor string) ([]*types.Configuration, string, error) {
	// Configurations page without filters; the cursor still carries a
	// fingerprint so component-list cursors cannot be replayed here.
	fp := filter.Fingerprint("configurations")
	after, err := filter.DecodeCursor(cursor, fp)
	if err != nil {
		return nil, "", err
	}
	page, more, err := r.store.ScanConfigurations(after, limit)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if more && len(page) > 0 {
		next = filter.EncodeCursor(page[len(page)-1].Name, fp)
	}
	return page, next, nil
}

// PutConfiguration validates and creates or replaces a configuration.
func (r *Registry) PutConfiguration(rawName string, cfg *types.Configuration) (*types.Configuration, error) {
	name, err := decodeName(rawName)
	if err != nil {
		return nil, err
	}
	cfg.Name = name
	if err := r.validateLayers(cfg.Layers); err != nil {
		return nil, err
	}
	cfg.LastUpdated = time.Now().UTC()
	if err := r.store.PutConfiguration(cfg); err != nil {
		return nil, err
	}
	r.publish(events.EventConfigurationUpdated, name)
	return cfg, nil
}

// DeleteConfiguration soft-deletes a configuration: the record moves to
// the history slot and can be restored. A configuration still referenced
// by any component's desired configuration cannot be deleted.
func (r *Registry) DeleteConfiguration(rawName string) error {
	name, err := decodeName(rawName)
	if err != nil {
		return err
	}
	cfg, err := r.store.GetConfiguration(name)
	if err != nil {
		return err
	}
	inUse, err := r.configurationInUse(name)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("configuration %s is referenced by components: %w", name, ErrInUse)
	}
	if err := r.store.PutConfigurationHistory(cfg); err != nil {
		return err
	}
	if err := r.store.DeleteConfiguration(name); err != nil {
		return err
	}
	r.publish(events.EventConfigurationDeleted, name)
	return nil
}

// RestoreConfiguration reinstates the most recently deleted version of a
// configuration.
func (r *Registry) RestoreConfiguration(rawName string) (*types.Configuration, error) {
	name, err := decodeName(rawName)
	if err != nil {
		return nil, err
	}
	cfg, err := r.store.GetConfigurationHistory(name)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutConfiguration(cfg); err != nil {
		return nil, err
	}
	if err := r.store.DeleteConfigurationHistory(name); err != nil {
		return nil, err
	}
	r.publish(events.EventConfigurationUpdated, name)
	return cfg, nil
}

// validateLayers enforces the layer contract: exactly one content
// reference (clone URL or registered source), at most one git ref
// (branch or commit), and no duplicate (content, playbook) pairs.
func (r *Registry) validateLayers(layers []types.Layer) error {
	seen := make(map[string]bool, len(layers))
	for i, layer := range layers {
		if (layer.CloneURL == "") == (layer.Source == "") {
			return filter.Invalid("layer %d: exactly one of clone_url and source is required", i)
		}
		if layer.Branch != "" && layer.Commit != "" {
			return filter.Invalid("layer %d: branch and commit are mutually exclusive", i)
		}
		if layer.Source != "" {
			if _, err := r.store.GetSource(layer.Source); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return filter.Invalid("layer %d: source %q does not exist", i, layer.Source)
				}
				return err
			}
		}
		key := layer.CloneURL + "\x00" + layer.Source + "\x00" + layer.Playbook
		if seen[key] {
			return filter.Invalid("layer %d: duplicate content and playbook pair", i)
		}
		seen[key] = true
	}
	return nil
}

// configurationInUse reports whether any component names the
// configuration as its desired configuration.
func (r *Registry) configurationInUse(name string) (bool, error) {
	after := ""
	for {
		page, more, err := r.store.ScanComponents(after, scanBatch)
		if err != nil {
			return false, err
		}
		for _, c := range page {
			if c.DesiredConfig == name {
				return true, nil
			}
		}
		if !more {
			return false, nil
		}
		after = page[len(page)-1].ID
	}
}
