package storage

import (
	"errors"

	"github.com/fleetconf/shepherd/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by conditional creates when the key is taken.
	ErrExists = errors.New("already exists")
)

// Store defines the interface for fleet state storage.
// Implemented by BoltDB-backed storage.
//
// Scan methods return at most limit records with keys strictly greater
// than after (lexicographic), plus a flag indicating whether more records
// remain. Update methods run the callback inside a single write
// transaction, so concurrent read-modify-write cycles on the same record
// never interleave.
type Store interface {
	// Components
	GetComponent(id string) (*types.Component, error)
	PutComponent(c *types.Component) error
	UpdateComponent(id string, fn func(*types.Component) error) (*types.Component, error)
	DeleteComponent(id string) error
	ScanComponents(after string, limit int) ([]*types.Component, bool, error)

	// Configurations
	GetConfiguration(name string) (*types.Configuration, error)
	PutConfiguration(cfg *types.Configuration) error
	DeleteConfiguration(name string) error
	ScanConfigurations(after string, limit int) ([]*types.Configuration, bool, error)
	GetConfigurationHistory(name string) (*types.Configuration, error)
	PutConfigurationHistory(cfg *types.Configuration) error
	DeleteConfigurationHistory(name string) error

	// Sources
	GetSource(name string) (*types.Source, error)
	PutSource(src *types.Source) error
	DeleteSource(name string) error
	ScanSources(after string, limit int) ([]*types.Source, bool, error)
	GetSourceHistory(name string) (*types.Source, error)
	PutSourceHistory(src *types.Source) error
	DeleteSourceHistory(name string) error

	// Sessions
	GetSession(name string) (*types.Session, error)
	PutSession(s *types.Session) error
	PutSessionIfAbsent(s *types.Session) error
	UpdateSession(name string, fn func(*types.Session) error) (*types.Session, error)
	DeleteSession(name string) error
	GetDeleteSession(name string) (*types.Session, error)
	ScanSessions(after string, limit int) ([]*types.Session, bool, error)

	// Options (single record)
	GetOptions() (*types.Options, error)
	PutOptions(opts *types.Options) error

	// Secrets (opaque encrypted blobs, keyed by name)
	GetSecret(name string) ([]byte, error)
	PutSecret(name string, data []byte) error
	DeleteSecret(name string) error

	// Utility
	Close() error
}
