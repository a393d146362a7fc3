// Package file provides file-based persistence: the in-memory store flushed to a JSON
// document under a root directory after every change.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence/memory"
)

const stateFile = "state.json"

// Persistence implements persistence.Persistence on top of memory.Store.
type Persistence struct {
	*memory.Store

	root   string
	logger *slog.Logger

	flushMu  sync.Mutex
	flushErr error
}

// NewPersistence opens (creating if needed) the store rooted at root. Workflow definitions
// found as <root>/workflows/*.json are loaded when the state file does not know them yet.
func NewPersistence(ctx context.Context, logger *slog.Logger, root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	if err := os.MkdirAll(cleanRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory %s: %w", cleanRoot, err)
	}

	p := &Persistence{
		Store:  memory.NewStore(),
		root:   cleanRoot,
		logger: logger.With("module", "file_persistence"),
	}

	if err := p.load(); err != nil {
		return nil, err
	}

	if err := p.loadDefinitions(ctx); err != nil {
		return nil, err
	}

	p.OnChange(p.flush)

	return p, nil
}

func (p *Persistence) load() error {
	data, err := os.ReadFile(filepath.Join(p.root, stateFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var snap memory.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode state file: %w", err)
	}

	p.Restore(&snap)

	return nil
}

func (p *Persistence) loadDefinitions(ctx context.Context) error {
	files, err := fs.Glob(os.DirFS(p.root), "workflows/*.json")
	if err != nil {
		return fmt.Errorf("failed to list workflow files: %w", err)
	}

	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(p.root, name))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}

		var wf models.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			return fmt.Errorf("failed to decode %s: %w", name, err)
		}

		if _, err := p.Workflows().GetByID(ctx, wf.ID); err == nil {
			continue
		}

		if err := p.Workflows().Save(ctx, &wf); err != nil {
			return err
		}

		p.logger.InfoContext(ctx, "Loaded workflow definition", "workflow_id", wf.ID, "file", name)
	}

	return nil
}

// flush writes the snapshot to a temporary file and renames it over the state file.
func (p *Persistence) flush() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	data, err := json.MarshalIndent(p.Snapshot(), "", "  ")
	if err == nil {
		tmp := filepath.Join(p.root, stateFile+".tmp")
		if err = os.WriteFile(tmp, data, 0o600); err == nil {
			err = os.Rename(tmp, filepath.Join(p.root, stateFile))
		}
	}

	p.flushErr = err
	if err != nil {
		p.logger.Error("Failed to flush state file", "error", err)
	}
}

// HealthCheck reports the last flush failure, or a missing root directory.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	return p.flushErr
}
