package types

import (
	"time"
)

// Component represents a single managed entity in the fleet: its desired
// configuration, the per-layer results of applying it, and scheduling
// metadata used by the batcher.
type Component struct {
	ID            string            `json:"id"`
	DesiredConfig string            `json:"desired_config,omitempty"`
	Status        ComponentStatus   `json:"status"`
	ErrorCount    int               `json:"error_count"`
	RetryPolicy   *int              `json:"retry_policy,omitempty"`
	Enabled       bool              `json:"enabled"`
	Tags          map[string]string `json:"tags,omitempty"`
	State         []LayerResult     `json:"state"`
	Session       string            `json:"session,omitempty"`
	LastUpdated   time.Time         `json:"last_updated"`
}

// ComponentStatus is the aggregated configuration status of a component,
// derived from its layer results and desired configuration.
type ComponentStatus string

const (
	StatusPending    ComponentStatus = "pending"
	StatusSuccess    ComponentStatus = "success"
	StatusFailed     ComponentStatus = "failed"
	StatusIncomplete ComponentStatus = "incomplete"
)

// LayerResult records the outcome of applying one configuration layer to a
// component. Entries are keyed by (CloneURL, Playbook); appending a result
// for an existing key replaces the older entry.
type LayerResult struct {
	CloneURL    string       `json:"clone_url"`
	Playbook    string       `json:"playbook"`
	Commit      string       `json:"commit,omitempty"`
	Status      LayerOutcome `json:"status"`
	Session     string       `json:"session,omitempty"`
	LastUpdated time.Time    `json:"last_updated"`
}

// LayerOutcome is the result of a single layer run.
type LayerOutcome string

const (
	LayerSuccess    LayerOutcome = "success"
	LayerFailed     LayerOutcome = "failed"
	LayerIncomplete LayerOutcome = "incomplete"
)

// ComponentPatch is a partial component update. Nil fields are left
// untouched; non-nil scalar fields overwrite, Tags merge key-by-key (an
// empty value removes the tag), State replaces wholesale, and StateAppend
// upserts a single layer result.
type ComponentPatch struct {
	DesiredConfig *string           `json:"desired_config,omitempty"`
	ErrorCount    *int              `json:"error_count,omitempty"`
	RetryPolicy   *int              `json:"retry_policy,omitempty"`
	Enabled       *bool             `json:"enabled,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	State         *[]LayerResult    `json:"state,omitempty"`
	StateAppend   *LayerResult      `json:"state_append,omitempty"`
}

// Configuration is an ordered list of layers to apply to components.
type Configuration struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Layers      []Layer   `json:"layers"`
	LastUpdated time.Time `json:"last_updated"`
}

// Layer identifies one unit of configuration content: a repository (by
// clone URL or registered source name), a git ref, and a playbook.
// Exactly one of CloneURL and Source must be set, and at most one of
// Branch and Commit.
type Layer struct {
	Name     string `json:"name,omitempty"`
	CloneURL string `json:"clone_url,omitempty"`
	Source   string `json:"source,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Commit   string `json:"commit,omitempty"`
	Playbook string `json:"playbook,omitempty"`
}

// Source is a registered configuration content location. Credentials are
// held in the secret store and referenced by name; raw secret material
// never appears on a Source record.
type Source struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	CloneURL    string             `json:"clone_url"`
	CACert      string             `json:"ca_cert,omitempty"`
	Credentials *SourceCredentials `json:"credentials,omitempty"`
	LastUpdated time.Time          `json:"last_updated"`
}

// SourceCredentials is the stored reference to a source's credentials.
type SourceCredentials struct {
	AuthenticationMethod string `json:"authentication_method"`
	SecretName           string `json:"secret_name"`
}

// RawCredentials is the create-time credential payload. It is exchanged
// for a SourceCredentials reference immediately and never persisted.
type RawCredentials struct {
	AuthenticationMethod string `json:"authentication_method"`
	Username             string `json:"username"`
	Password             string `json:"password"`
}

// Session is one configuration run over a set of components.
type Session struct {
	Name           string            `json:"name"`
	Configuration  string            `json:"configuration_name"`
	ConfigLimit    string            `json:"configuration_limit,omitempty"`
	AnsibleLimit   string            `json:"ansible_limit,omitempty"`
	Target         SessionTarget     `json:"target"`
	Status         SessionStatusInfo `json:"status"`
	Tags           map[string]string `json:"tags,omitempty"`
	DebugOnFailure bool              `json:"debug_on_failure"`
}

// SessionTarget describes which components a session runs against.
type SessionTarget struct {
	Definition TargetDefinition `json:"definition"`
	Groups     []TargetGroup    `json:"groups,omitempty"`
}

// TargetDefinition selects the targeting mode for a session.
type TargetDefinition string

const (
	// TargetDynamic resolves targets from component inventory at run time.
	TargetDynamic TargetDefinition = "dynamic"
	// TargetSpec targets explicit groups of named components.
	TargetSpec TargetDefinition = "spec"
	// TargetImage customizes images identified by UUID members.
	TargetImage TargetDefinition = "image"
	// TargetRepo runs against the repository contents only.
	TargetRepo TargetDefinition = "repo"
)

// TargetGroup names a group of target members.
type TargetGroup struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// SessionStatusInfo tracks session progress. Status and Succeeded only
// move forward; patches attempting to regress either are ignored.
type SessionStatusInfo struct {
	Status         SessionStatus    `json:"status"`
	Succeeded      SessionSucceeded `json:"succeeded"`
	StartTime      *time.Time       `json:"start_time,omitempty"`
	CompletionTime *time.Time       `json:"completion_time,omitempty"`
}

// SessionStatus is the lifecycle phase of a session.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionRunning  SessionStatus = "running"
	SessionComplete SessionStatus = "complete"
)

// SessionSucceeded is the terminal verdict of a session.
type SessionSucceeded string

const (
	SucceededNone    SessionSucceeded = "none"
	SucceededUnknown SessionSucceeded = "unknown"
	SucceededFalse   SessionSucceeded = "false"
	SucceededTrue    SessionSucceeded = "true"
)

// Options holds service-wide tunables. A single record lives in the store;
// zero-valued fields fall back to defaults when read.
type Options struct {
	BatcherCheckInterval      int    `json:"batcher_check_interval"`
	BatchSize                 int    `json:"batch_size"`
	BatchWindow               int    `json:"batch_window"`
	DefaultBatcherRetryPolicy int    `json:"default_batcher_retry_policy"`
	DefaultPlaybook           string `json:"default_playbook"`
	DefaultPageSize           int    `json:"default_page_size"`
	SessionTTL                string `json:"session_ttl"`
	IncludeAraLinks           bool   `json:"include_ara_links"`
	LoggingLevel              string `json:"logging_level"`
}

// BulkOutcome reports the per-record result of a bulk mutation. IDs that
// were changed appear in Succeeded; IDs that were skipped map to the
// reason they were skipped.
type BulkOutcome struct {
	Succeeded []string          `json:"succeeded"`
	Skipped   map[string]string `json:"skipped,omitempty"`
}
