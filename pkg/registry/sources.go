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

// SourcePatch is a partial source update. A non-nil Credentials payload
// rotates the stored secret in place.
type SourcePatch struct {
	Description *string               `json:"description,omitempty"`
	CACert      *string               `json:"ca_cert,omitempty"`
	Credentials *types.RawCredentials `json:"credentials,omitempty"`
}

// GetSource returns a source by (possibly percent-encoded) name.
func (r *Registry) GetSource(rawName string) (*types.Source, error) {
	name, err := decodeName(rawName)
	if err != nil {
		return nil, err
	}
	return r.store.GetSource(name)
}

// ListSources returns one page of sources in name order.
func (r *Registry) ListSources(limit int, cursor string) ([]*types.Source, string, error) {
	fp := filter.Fingerprint("sources")
	after, err := filter.DecodeCursor(cursor, fp)
	if err != nil {
		return nil, "", err
	}
	page, more, err := r.store.ScanSources(after, limit)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if more && len(page) > 0 {
		next = filter.EncodeCursor(page[len(page)-1].Name, fp)
	}
	return page, next, nil
}

// CreateSource registers a source. Raw credentials are exchanged for a
// generated secret reference before anything is persisted; the raw
// payload is never stored. A source may instead arrive with an existing
// credential reference (the operator restore path). The name defaults to
// the clone URL.
func (r *Registry) CreateSource(src *types.Source, raw *types.RawCredentials) (*types.Source, error) {
	if src.CloneURL == "" {
		return nil, filter.Invalid("clone_url is required")
	}
	if src.Name == "" {
		src.Name = src.CloneURL
	}
	name, err := decodeName(src.Name)
	if err != nil {
		return nil, err
	}
	src.Name = name

	if _, err := r.store.GetSource(name); err == nil {
		return nil, fmt.Errorf("source %s: %w", name, storage.ErrExists)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	switch {
	case raw != nil:
		secretName, err := r.secrets.Exchange(raw)
		if err != nil {
			return nil, err
		}
		src.Credentials = &types.SourceCredentials{
			AuthenticationMethod: raw.AuthenticationMethod,
			SecretName:           secretName,
		}
	case src.Credentials != nil && src.Credentials.SecretName != "":
		// Reference to existing secret material, nothing to exchange.
	default:
		return nil, filter.Invalid("source credentials are required")
	}

	src.LastUpdated = time.Now().UTC()
	if err := r.store.PutSource(src); err != nil {
		return nil, err
	}
	r.publish(events.EventSourceUpdated, name)
	return src, nil
}

// UpdateSource merges a partial update into a source. Credential updates
// reuse the existing secret reference.
func (r *Registry) UpdateSource(rawName string, p *SourcePatch) (*types.Source, error) {
	name, err := decodeName(rawName)
	if err != nil {
		return nil, err
	}
	src, err := r.store.GetSource(name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return src, nil
	}
	if p.Description != nil {
		src.Description = *p.Description
	}
	if p.CACert != nil {
		src.CACert = *p.CACert
	}
	if p.Credentials != nil {
		if src.Credentials == nil || src.Credentials.SecretName == "" {
			secretName, err := r.secrets.Exchange(p.Credentials)
			if err != nil {
				return nil, err
			}
			src.Credentials = &types.SourceCredentials{SecretName: secretName}
		} else if err := r.secrets.Replace(src.Credentials.SecretName, p.Credentials); err != nil {
			return nil, err
		}
		src.Credentials.AuthenticationMethod = p.Credentials.AuthenticationMethod
	}
	src.LastUpdated = time.Now().UTC()
	if err := r.store.PutSource(src); err != nil {
		return nil, err
	}
	r.publish(events.EventSourceUpdated, name)
	return src, nil
}

// DeleteSource soft-deletes a source. The record, including its
// credential reference, moves to the history slot; the sealed secret
// material stays in place so a restore needs no new credentials. A
// source referenced by any configuration layer cannot be deleted.
func (r *Registry) DeleteSource(rawName string) error {
	name, err := decodeName(rawName)
	if err != nil {
		return err
	}
	src, err := r.store.GetSource(name)
	if err != nil {
		return err
	}
	inUse, err := r.sourceInUse(name)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("source %s is referenced by configurations: %w", name, ErrInUse)
	}
	if err := r.store.PutSourceHistory(src); err != nil {
		return err
	}
	if err := r.store.DeleteSource(name); err != nil {
		return err
	}
	r.publish(events.EventSourceDeleted, name)
	return nil
}

// RestoreSource reinstates the most recently deleted version of a
// source, credential reference included.
func (r *Registry) RestoreSource(rawName string) (*types.Source, error) {
	name, err := decodeName(rawName)
	if err != nil {
		return nil, err
	}
	src, err := r.store.GetSourceHistory(name)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutSource(src); err != nil {
		return nil, err
	}
	if err := r.store.DeleteSourceHistory(name); err != nil {
		return nil, err
	}
	r.publish(events.EventSourceUpdated, name)
	return src, nil
}

// sourceInUse reports whether any configuration layer references the
// source by name.
func (r *Registry) sourceInUse(name string) (bool, error) {
	after := ""
	for {
		page, more, err := r.store.ScanConfigurations(after, scanBatch)
		if err != nil {
			return false, err
		}
		for _, cfg := range page {
			for _, layer := range cfg.Layers {
				if layer.Source == name {
					return true, nil
				}
			}
		}
		if !more {
			return false, nil
		}
		after = page[len(page)-1].Name
	}
}
