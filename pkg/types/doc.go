/*
Package types defines the core data structures used throughout Shepherd.

This package contains the fundamental types of the configuration management
domain model: components, configurations, sources, sessions, and service
options. These types are used by all other packages for state management,
API serialization, and batching logic.

# Core Types

Fleet state:
  - Component: a managed entity with desired configuration and layer results
  - ComponentStatus: pending, success, failed, incomplete (derived)
  - LayerResult: outcome of one layer run, keyed by (clone URL, playbook)

Content registry:
  - Configuration: ordered list of layers
  - Layer: repository reference (clone URL or source name), ref, playbook
  - Source: registered content location with a credential reference

Scheduling:
  - Session: one configuration run over a set of components
  - SessionTarget / TargetDefinition: dynamic, spec, image, repo targeting
  - SessionStatusInfo: monotonic status and succeeded progression
  - Options: service-wide tunables (single record)

# Design Patterns

All enums use typed string constants:

	type SessionStatus string
	const (
	    SessionPending SessionStatus = "pending"
	    SessionRunning SessionStatus = "running"
	)

Partial updates use pointer fields (ComponentPatch): nil means "leave
untouched", so a patch can distinguish "clear this field" from "no change".

All types are JSON-serializable; the storage layer persists them as JSON
values keyed by ID or name.

# Thread Safety

Types in this package carry no synchronization. The storage layer serializes
mutations per record; in-memory caches implement their own locking.
*/
package types
