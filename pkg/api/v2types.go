package api

import (
	"time"

	"github.com/fleetconf/shepherd/pkg/options"
	"github.com/fleetconf/shepherd/pkg/types"
)

// The v2 wire types mirror the domain types with the historical camelCase
// field names. They exist only at the HTTP boundary; nothing below the
// handlers sees them.

type v2Component struct {
	ID                  string            `json:"id"`
	DesiredConfig       string            `json:"desiredConfig,omitempty"`
	ConfigurationStatus string            `json:"configurationStatus"`
	ErrorCount          int               `json:"errorCount"`
	RetryPolicy         *int              `json:"retryPolicy,omitempty"`
	Enabled             bool              `json:"enabled"`
	Tags                map[string]string `json:"tags,omitempty"`
	State               []v2LayerResult   `json:"state"`
	SessionName         string            `json:"sessionName,omitempty"`
	LastUpdated         time.Time         `json:"lastUpdated"`
}

type v2LayerResult struct {
	CloneURL    string    `json:"cloneUrl"`
	Playbook    string    `json:"playbook"`
	Commit      string    `json:"commit,omitempty"`
	Status      string    `json:"status"`
	SessionName string    `json:"sessionName,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type v2ComponentPatch struct {
	ID            string            `json:"id,omitempty"`
	DesiredConfig *string           `json:"desiredConfig,omitempty"`
	ErrorCount    *int              `json:"errorCount,omitempty"`
	RetryPolicy   *int              `json:"retryPolicy,omitempty"`
	Enabled       *bool             `json:"enabled,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	State         *[]v2LayerResult  `json:"state,omitempty"`
	StateAppend   *v2LayerResult    `json:"stateAppend,omitempty"`
}

type v2Configuration struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Layers      []v2Layer `json:"layers"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type v2Layer struct {
	Name     string `json:"name,omitempty"`
	CloneURL string `json:"cloneUrl,omitempty"`
	Source   string `json:"source,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Commit   string `json:"commit,omitempty"`
	Playbook string `json:"playbook,omitempty"`
}

type v2Session struct {
	Name               string            `json:"name"`
	ConfigurationName  string            `json:"configurationName"`
	ConfigurationLimit string            `json:"configurationLimit,omitempty"`
	AnsibleLimit       string            `json:"ansibleLimit,omitempty"`
	Target             v2SessionTarget   `json:"target"`
	Status             v2SessionStatus   `json:"status"`
	Tags               map[string]string `json:"tags,omitempty"`
	DebugOnFailure     bool              `json:"debugOnFailure"`
}

type v2SessionTarget struct {
	Definition string          `json:"definition"`
	Groups     []v2TargetGroup `json:"groups,omitempty"`
}

type v2TargetGroup struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type v2SessionStatus struct {
	Status         string     `json:"status"`
	Succeeded      string     `json:"succeeded"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	CompletionTime *time.Time `json:"completionTime,omitempty"`
}

type v2Options struct {
	BatcherCheckInterval      *int    `json:"batcherCheckInterval,omitempty"`
	BatchSize                 *int    `json:"batchSize,omitempty"`
	BatchWindow               *int    `json:"batchWindow,omitempty"`
	DefaultBatcherRetryPolicy *int    `json:"defaultBatcherRetryPolicy,omitempty"`
	DefaultPlaybook           *string `json:"defaultPlaybook,omitempty"`
	DefaultPageSize           *int    `json:"defaultPageSize,omitempty"`
	SessionTTL                *string `json:"sessionTTL,omitempty"`
	IncludeAraLinks           *bool   `json:"includeAraLinks,omitempty"`
	LoggingLevel              *string `json:"loggingLevel,omitempty"`
}

func toV2Component(c *types.Component) *v2Component {
	out := &v2Component{
		ID:                  c.ID,
		DesiredConfig:       c.DesiredConfig,
		ConfigurationStatus: string(c.Status),
		ErrorCount:          c.ErrorCount,
		RetryPolicy:         c.RetryPolicy,
		Enabled:             c.Enabled,
		Tags:                c.Tags,
		State:               make([]v2LayerResult, 0, len(c.State)),
		SessionName:         c.Session,
		LastUpdated:         c.LastUpdated,
	}
	for _, lr := range c.State {
		out.State = append(out.State, toV2LayerResult(lr))
	}
	return out
}

func (c *v2Component) toComponent() *types.Component {
	out := &types.Component{
		ID:            c.ID,
		DesiredConfig: c.DesiredConfig,
		ErrorCount:    c.ErrorCount,
		RetryPolicy:   c.RetryPolicy,
		Enabled:       c.Enabled,
		Tags:          c.Tags,
		State:         make([]types.LayerResult, 0, len(c.State)),
		Session:       c.SessionName,
	}
	for _, lr := range c.State {
		out.State = append(out.State, fromV2LayerResult(lr))
	}
	return out
}

func toV2LayerResult(lr types.LayerResult) v2LayerResult {
	return v2LayerResult{
		CloneURL:    lr.CloneURL,
		Playbook:    lr.Playbook,
		Commit:      lr.Commit,
		Status:      string(lr.Status),
		SessionName: lr.Session,
		LastUpdated: lr.LastUpdated,
	}
}

func fromV2LayerResult(lr v2LayerResult) types.LayerResult {
	return types.LayerResult{
		CloneURL:    lr.CloneURL,
		Playbook:    lr.Playbook,
		Commit:      lr.Commit,
		Status:      types.LayerOutcome(lr.Status),
		Session:     lr.SessionName,
		LastUpdated: lr.LastUpdated,
	}
}

func (p *v2ComponentPatch) toPatch() *types.ComponentPatch {
	out := &types.ComponentPatch{
		DesiredConfig: p.DesiredConfig,
		ErrorCount:    p.ErrorCount,
		RetryPolicy:   p.RetryPolicy,
		Enabled:       p.Enabled,
		Tags:          p.Tags,
	}
	if p.State != nil {
		state := make([]types.LayerResult, 0, len(*p.State))
		for _, lr := range *p.State {
			state = append(state, fromV2LayerResult(lr))
		}
		out.State = &state
	}
	if p.StateAppend != nil {
		lr := fromV2LayerResult(*p.StateAppend)
		out.StateAppend = &lr
	}
	return out
}

func toV2Configuration(cfg *types.Configuration) *v2Configuration {
	out := &v2Configuration{
		Name:        cfg.Name,
		Description: cfg.Description,
		Layers:      make([]v2Layer, 0, len(cfg.Layers)),
		LastUpdated: cfg.LastUpdated,
	}
	for _, l := range cfg.Layers {
		out.Layers = append(out.Layers, v2Layer(l))
	}
	return out
}

func (cfg *v2Configuration) toConfiguration() *types.Configuration {
	out := &types.Configuration{
		Name:        cfg.Name,
		Description: cfg.Description,
		Layers:      make([]types.Layer, 0, len(cfg.Layers)),
	}
	for _, l := range cfg.Layers {
		out.Layers = append(out.Layers, types.Layer(l))
	}
	return out
}

func toV2Session(s *types.Session) *v2Session {
	out := &v2Session{
		Name:               s.Name,
		ConfigurationName:  s.Configuration,
		ConfigurationLimit: s.ConfigLimit,
		AnsibleLimit:       s.AnsibleLimit,
		Target: v2SessionTarget{
			Definition: string(s.Target.Definition),
		},
		Status: v2SessionStatus{
			Status:         string(s.Status.Status),
			Succeeded:      string(s.Status.Succeeded),
			StartTime:      s.Status.StartTime,
			CompletionTime: s.Status.CompletionTime,
		},
		Tags:           s.Tags,
		DebugOnFailure: s.DebugOnFailure,
	}
	for _, g := range s.Target.Groups {
		out.Target.Groups = append(out.Target.Groups, v2TargetGroup(g))
	}
	return out
}

func (s *v2Session) toSession() *types.Session {
	out := &types.Session{
		Name:           s.Name,
		Configuration:  s.ConfigurationName,
		ConfigLimit:    s.ConfigurationLimit,
		AnsibleLimit:   s.AnsibleLimit,
		Tags:           s.Tags,
		DebugOnFailure: s.DebugOnFailure,
		Target: types.SessionTarget{
			Definition: types.TargetDefinition(s.Target.Definition),
		},
	}
	for _, g := range s.Target.Groups {
		out.Target.Groups = append(out.Target.Groups, types.TargetGroup(g))
	}
	return out
}

func toV2Options(o *types.Options) map[string]any {
	return map[string]any{
		"batcherCheckInterval":      o.BatcherCheckInterval,
		"batchSize":                 o.BatchSize,
		"batchWindow":               o.BatchWindow,
		"defaultBatcherRetryPolicy": o.DefaultBatcherRetryPolicy,
		"defaultPlaybook":           o.DefaultPlaybook,
		"defaultPageSize":           o.DefaultPageSize,
		"sessionTTL":                o.SessionTTL,
		"includeAraLinks":           o.IncludeAraLinks,
		"loggingLevel":              o.LoggingLevel,
	}
}

func (p *v2Options) toPatch() *options.Patch {
	return &options.Patch{
		BatcherCheckInterval:      p.BatcherCheckInterval,
		BatchSize:                 p.BatchSize,
		BatchWindow:               p.BatchWindow,
		DefaultBatcherRetryPolicy: p.DefaultBatcherRetryPolicy,
		DefaultPlaybook:           p.DefaultPlaybook,
		DefaultPageSize:           p.DefaultPageSize,
		SessionTTL:                p.SessionTTL,
		IncludeAraLinks:           p.IncludeAraLinks,
		LoggingLevel:              p.LoggingLevel,
	}
}
