package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"pulse/internal/logging"
)

// FileStore reads the agent profile from a YAML file and can hot-reload it
// when the file changes on disk. Updates are written back atomically.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	profile AgentProfile
}

// NewFileStore loads and validates the profile at path.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	fs := &FileStore{
		path:   path,
		logger: logging.OrNop(logger).Named("configstore"),
	}
	if err := fs.reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) Snapshot(ctx context.Context) (AgentProfile, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.profile.Clone(), nil
}

func (f *FileStore) Update(ctx context.Context, mutate func(*AgentProfile) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.profile.Clone()
	if err := mutate(&next); err != nil {
		return err
	}
	if err := next.Normalize(); err != nil {
		return err
	}
	if err := f.write(next); err != nil {
		return err
	}
	f.profile = next
	return nil
}

// Watch hot-reloads the profile on file writes until ctx is done. Rapid
// editor save bursts are debounced.
func (f *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("profile watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", f.path, err)
	}

	go func() {
		defer watcher.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(f.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				pending = time.After(250 * time.Millisecond)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("profile watcher error", zap.Error(err))
			case <-pending:
				pending = nil
				if err := f.reload(); err != nil {
					f.logger.Warn("profile reload failed", zap.Error(err))
					continue
				}
				f.logger.Info("profile reloaded", zap.String("path", f.path))
			}
		}
	}()
	return nil
}

// ExportJSON writes the deployable agent.json snapshot next to the profile,
// or to the given path when non-empty.
func (f *FileStore) ExportJSON(path string) error {
	if path == "" {
		path = filepath.Join(filepath.Dir(f.path), "agent.json")
	}
	f.mu.RLock()
	snapshot := f.profile.Clone()
	f.mu.RUnlock()

	return ExportJSON(path, snapshot)
}

func (f *FileStore) reload() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read profile %s: %w", f.path, err)
	}
	var profile AgentProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidProfile, f.path, err)
	}
	if err := profile.Normalize(); err != nil {
		return err
	}

	f.mu.Lock()
	f.profile = profile
	f.mu.Unlock()
	return nil
}

// write persists the profile atomically: temp file then rename.
func (f *FileStore) write(profile AgentProfile) error {
	raw, err := yaml.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}

// ExportJSON writes the deployable JSON snapshot of a profile.
func ExportJSON(path string, profile AgentProfile) error {
	type export struct {
		Goal            string `json:"goal"`
		Description     string `json:"description"`
		WorldInfo       string `json:"worldInfo"`
		TaskDescription string `json:"taskDescription,omitempty"`
		ModelID         string `json:"gameEngineModel,omitempty"`
		Heartbeats      struct {
			Main     int `json:"mainHeartbeat"`
			Reaction int `json:"reactionHeartbeat"`
		} `json:"state"`
		Functions []any `json:"customFunctions"`
	}

	out := export{
		Goal:            profile.Goal,
		Description:     profile.Description,
		WorldInfo:       profile.WorldInfo,
		TaskDescription: profile.TaskDescription,
		ModelID:         profile.ModelID,
	}
	out.Heartbeats.Main = int(profile.MainHeartbeat / time.Second)
	out.Heartbeats.Reaction = int(profile.ReactionHeartbeat / time.Second)
	for _, fn := range profile.Functions {
		out.Functions = append(out.Functions, fn)
	}

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}
