package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetconf/shepherd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// legacyComponent mirrors the v2-era record shape (camelCase fields,
// desiredState list). Only the fields that survive migration are decoded.
type legacyComponent struct {
	ID            string             `json:"id"`
	DesiredConfig string             `json:"desiredConfig"`
	ErrorCount    int                `json:"errorCount"`
	RetryPolicy   *int               `json:"retryPolicy"`
	Enabled       bool               `json:"enabled"`
	Tags          map[string]string  `json:"tags"`
	State         []legacyLayerState `json:"state"`
	SessionName   string             `json:"sessionName"`
	LastUpdated   time.Time          `json:"lastUpdated"`
}

type legacyLayerState struct {
	CloneURL    string    `json:"cloneUrl"`
	Playbook    string    `json:"playbook"`
	Commit      string    `json:"commit"`
	Status      string    `json:"status"`
	SessionName string    `json:"sessionName"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// MigrateComponents rewrites v2-era component records into the current
// schema. Records already in the current schema are left alone, so the
// migration is safe to run more than once. Returns the number of records
// rewritten.
func (s *BoltStore) MigrateComponents() (int, error) {
	migrated := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketComponents)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var probe map[string]json.RawMessage
			if err := json.Unmarshal(v, &probe); err != nil {
				return fmt.Errorf("corrupt component record %s: %w", k, err)
			}
			// Current-schema records carry error_count; legacy carry errorCount.
			if _, legacy := probe["errorCount"]; !legacy {
				if _, legacy = probe["desiredConfig"]; !legacy {
					continue
				}
			}
			var old legacyComponent
			if err := json.Unmarshal(v, &old); err != nil {
				return fmt.Errorf("corrupt legacy component %s: %w", k, err)
			}
			data, err := json.Marshal(convertLegacyComponent(&old))
			if err != nil {
				return err
			}
			if err := b.Put(k, data); err != nil {
				return err
			}
			migrated++
		}
		return nil
	})
	return migrated, err
}

func convertLegacyComponent(old *legacyComponent) *types.Component {
	c := &types.Component{
		ID:            old.ID,
		DesiredConfig: old.DesiredConfig,
		ErrorCount:    old.ErrorCount,
		RetryPolicy:   old.RetryPolicy,
		Enabled:       old.Enabled,
		Tags:          old.Tags,
		Session:       old.SessionName,
		LastUpdated:   old.LastUpdated,
	}
	for _, layer := range old.State {
		c.State = append(c.State, types.LayerResult{
			CloneURL:    layer.CloneURL,
			Playbook:    layer.Playbook,
			Commit:      layer.Commit,
			Status:      convertLegacyOutcome(layer.Status),
			Session:     layer.SessionName,
			LastUpdated: layer.LastUpdated,
		})
	}
	return c
}

func convertLegacyOutcome(status string) types.LayerOutcome {
	switch status {
	case "applied", "success":
		return types.LayerSuccess
	case "failed":
		return types.LayerFailed
	default:
		return types.LayerIncomplete
	}
}
