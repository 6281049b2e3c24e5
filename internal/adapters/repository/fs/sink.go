// Package fs provides a filesystem persistence sink: one JSON document per
// checkpoint plus a session document, laid out so a developer can inspect
// or version-control the files directly.
//
//	<root>/
//	├── session.json
//	└── checkpoints/
//	    ├── ab12cd34ef56.json
//	    └── ...
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
)

// DefaultRoot is the directory used when none is configured.
const DefaultRoot = ".agentstate"

// Sink implements session.Sink over a directory tree.
type Sink struct {
	mu   sync.Mutex
	root string
}

// NewSink creates a filesystem sink rooted at root, creating the layout if
// needed. An empty root uses DefaultRoot.
func NewSink(root string) (*Sink, error) {
	if root == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(filepath.Join(root, "checkpoints"), 0o755); err != nil {
		return nil, fmt.Errorf("create sink layout: %w", err)
	}
	return &Sink{root: root}, nil
}

func (s *Sink) checkpointPath(id string) string {
	return filepath.Join(s.root, "checkpoints", id+".json")
}

func (s *Sink) sessionPath() string {
	return filepath.Join(s.root, "session.json")
}

// Save writes the checkpoint as an indented JSON document.
func (s *Sink) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.checkpointPath(cp.ID), data)
}

// Load reads a checkpoint document by id.
func (s *Sink) Load(_ context.Context, id string) (*checkpoint.Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, checkpoint.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}
	return &cp, nil
}

// List returns stored checkpoints matching the filter, newest first.
func (s *Sink) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, "checkpoints"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}

	var results []*checkpoint.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		cp, err := s.Load(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue // skip unreadable documents rather than failing the listing
		}
		if filter.Branch != "" && cp.BranchName != filter.Branch {
			continue
		}
		if filter.Since != nil && cp.Timestamp.Before(*filter.Since) {
			continue
		}
		results = append(results, cp)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Delete removes a checkpoint document.
func (s *Sink) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.checkpointPath(id))
	if os.IsNotExist(err) {
		return checkpoint.ErrCheckpointNotFound
	}
	return err
}

// SaveSession writes the full session document.
func (s *Sink) SaveSession(_ context.Context, snap *session.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.sessionPath(), data)
}

// LoadSession reads the session document, or returns nil when absent.
func (s *Sink) LoadSession(_ context.Context) (*session.Snapshot, error) {
	data, err := os.ReadFile(s.sessionPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &snap, nil
}

// Clear deletes everything under the sink root and recreates the layout.
func (s *Sink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.root); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(s.root, "checkpoints"), 0o755)
}

// writeAtomic writes via a temp file and rename so a crash mid-write never
// leaves a truncated document.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
