// Package configstore owns the declarative agent profile: goal, persona,
// task description template, planner model, heartbeats, and the deployable
// function set. The core never mutates a profile; it takes an immutable
// snapshot per cycle. Backends: a YAML file with hot reload, MySQL, and a
// static in-memory store for tests and embedding.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pulse/internal/registry"
)

// ErrInvalidProfile marks a profile that fails validation.
var ErrInvalidProfile = errors.New("invalid agent profile")

// Supported planner model ids. DefaultModelID applies when unset.
const (
	DefaultModelID = "llama_3_1_405b"

	DefaultMainHeartbeat     = 15 * time.Second
	DefaultReactionHeartbeat = 5 * time.Second
)

var supportedModels = map[string]struct{}{
	"llama_3_1_405b":         {},
	"deepseek_r1":            {},
	"llama_3_3_70b_instruct": {},
	"qwen2p5_72b_instruct":   {},
	"deepseek_v3":            {},
}

// SupportedModel reports whether the model id is a known planner backend.
func SupportedModel(id string) bool {
	_, ok := supportedModels[id]
	return ok
}

// AgentProfile is the declarative agent configuration. The task description
// is a template; {{counter}} placeholders resolve from session counters at
// decision time.
type AgentProfile struct {
	Goal            string `json:"goal" yaml:"goal"`
	Description     string `json:"description" yaml:"description"`
	WorldInfo       string `json:"world_info,omitempty" yaml:"world_info,omitempty"`
	TaskDescription string `json:"task_description,omitempty" yaml:"task_description,omitempty"`

	ModelID string `json:"model_id,omitempty" yaml:"model_id,omitempty"`

	MainHeartbeat     time.Duration `json:"main_heartbeat,omitempty" yaml:"main_heartbeat,omitempty"`
	ReactionHeartbeat time.Duration `json:"reaction_heartbeat,omitempty" yaml:"reaction_heartbeat,omitempty"`

	Functions []*registry.FunctionSpec `json:"functions,omitempty" yaml:"functions,omitempty"`
	Workers   []*registry.Worker       `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// Normalize fills defaults and validates. Returns ErrInvalidProfile wraps
// for out-of-range values.
func (p *AgentProfile) Normalize() error {
	if p.ModelID == "" {
		p.ModelID = DefaultModelID
	}
	if !SupportedModel(p.ModelID) {
		return fmt.Errorf("%w: unknown model id %q", ErrInvalidProfile, p.ModelID)
	}
	if p.MainHeartbeat == 0 {
		p.MainHeartbeat = DefaultMainHeartbeat
	}
	if p.ReactionHeartbeat == 0 {
		p.ReactionHeartbeat = DefaultReactionHeartbeat
	}
	if p.MainHeartbeat < 0 || p.ReactionHeartbeat < 0 {
		return fmt.Errorf("%w: heartbeat intervals must be positive", ErrInvalidProfile)
	}
	for _, fn := range p.Functions {
		if err := fn.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
	}
	return nil
}

// Clone deep-copies the profile so snapshots never share function specs
// with the store.
func (p *AgentProfile) Clone() AgentProfile {
	out := *p
	out.Functions = make([]*registry.FunctionSpec, len(p.Functions))
	for i, fn := range p.Functions {
		clone := *fn
		out.Functions[i] = &clone
	}
	out.Workers = make([]*registry.Worker, len(p.Workers))
	for i, w := range p.Workers {
		clone := *w
		out.Workers[i] = &clone
	}
	return out
}

// Worker returns the named worker, nil when absent.
func (p *AgentProfile) Worker(name string) *registry.Worker {
	for _, w := range p.Workers {
		if w.Name == name {
			return w
		}
	}
	return nil
}

// Store is the configuration collaborator contract.
type Store interface {
	// Snapshot returns an immutable copy of the current profile.
	Snapshot(ctx context.Context) (AgentProfile, error)

	// Update applies the mutation atomically and persists the result.
	// The mutation sees a copy; a returned error abandons the update.
	Update(ctx context.Context, mutate func(*AgentProfile) error) error
}

// Static is the in-memory Store used by tests and embedded deployments.
type Static struct {
	mu      sync.RWMutex
	profile AgentProfile
}

// NewStatic builds a static store from a profile, normalizing it.
func NewStatic(profile AgentProfile) (*Static, error) {
	if err := profile.Normalize(); err != nil {
		return nil, err
	}
	return &Static{profile: profile}, nil
}

func (s *Static) Snapshot(ctx context.Context) (AgentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Clone(), nil
}

func (s *Static) Update(ctx context.Context, mutate func(*AgentProfile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.profile.Clone()
	if err := mutate(&next); err != nil {
		return err
	}
	if err := next.Normalize(); err != nil {
		return err
	}
	s.profile = next
	return nil
}
