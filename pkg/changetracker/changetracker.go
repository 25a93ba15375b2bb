package changetracker

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ronnygunawan/opencopilot/pkg/utils"
)

// ChangeKind classifies a filesystem mutation.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// FileChange records what was actually done to one file. OldContent is nil
// for created files, NewContent is nil for deleted files.
type FileChange struct {
	Kind       ChangeKind
	Path       string
	OldContent *string
	NewContent *string
	Timestamp  time.Time
}

// Tracker is the append-only ledger of filesystem mutations for one step.
// Every mutation goes through the tracker so the ledger is complete; rollback
// replays it in reverse. A tracker is owned by a single pipeline instance and
// is not safe for concurrent use.
type Tracker struct {
	root    string
	changes []FileChange
	logger  *utils.Logger
}

// NewTracker creates a ledger rooted at the given working tree.
func NewTracker(root string, logger *utils.Logger) *Tracker {
	return &Tracker{root: root, logger: logger}
}

func (t *Tracker) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(t.root, path)
}

// Changes returns a copy of the ledger in the order mutations were performed.
func (t *Tracker) Changes() []FileChange {
	out := make([]FileChange, len(t.changes))
	copy(out, t.changes)
	return out
}

// Len returns the number of ledger entries.
func (t *Tracker) Len() int {
	return len(t.changes)
}

// CreateFile writes a new file and ledgers the creation. Creating a file that
// already exists is an application failure.
func (t *Tracker) CreateFile(path, content string) error {
	full := t.abs(path)
	if _, err := os.Stat(full); err == nil {
		return fmt.Errorf("cannot create %s: file already exists", path)
	}
	if err := utils.SaveFile(full, content); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	t.append(FileChange{Kind: ChangeCreated, Path: path, NewContent: &content})
	return nil
}

// ModifyFile replaces a file's content and ledgers the previous content.
func (t *Tracker) ModifyFile(path, content string) error {
	full := t.abs(path)
	old, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("cannot modify %s: %w", path, err)
	}
	if err := utils.SaveFile(full, content); err != nil {
		return fmt.Errorf("failed to modify %s: %w", path, err)
	}
	oldStr := string(old)
	t.append(FileChange{Kind: ChangeModified, Path: path, OldContent: &oldStr, NewContent: &content})
	return nil
}

// DeleteFile removes a file, keeping its content in the ledger for rollback.
func (t *Tracker) DeleteFile(path string) error {
	full := t.abs(path)
	old, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("cannot delete %s: %w", path, err)
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	oldStr := string(old)
	t.append(FileChange{Kind: ChangeDeleted, Path: path, OldContent: &oldStr})
	return nil
}

// ReadFile reads a file relative to the working tree without touching the
// ledger.
func (t *Tracker) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(t.abs(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *Tracker) append(change FileChange) {
	change.Timestamp = time.Now()
	t.changes = append(t.changes, change)
	if t.logger != nil {
		t.logger.Logf("Ledger: %s %s", change.Kind, change.Path)
	}
}

// Rollback restores the working tree to its state before the ledger began by
// replaying entries newest-first: created files are deleted, modified files
// get their old content back, deleted files are recreated. The ledger is
// drained as entries are undone, so running Rollback twice is a no-op.
func (t *Tracker) Rollback() error {
	return t.RollbackTo(0)
}

// RollbackTo undoes every ledger entry past mark, newest-first. A mark taken
// with Len before a unit of work makes that unit atomic: rolling back to the
// mark leaves earlier ledger entries intact.
func (t *Tracker) RollbackTo(mark int) error {
	if mark < 0 {
		mark = 0
	}
	for i := len(t.changes) - 1; i >= mark; i-- {
		change := t.changes[i]
		if err := t.undo(change); err != nil {
			// Keep the entries not yet undone so a later rollback can
			// finish the job.
			t.changes = t.changes[:i+1]
			return fmt.Errorf("rollback of %s %s failed: %w", change.Kind, change.Path, err)
		}
		t.changes = t.changes[:i]
	}
	return nil
}

func (t *Tracker) undo(change FileChange) error {
	full := t.abs(change.Path)
	switch change.Kind {
	case ChangeCreated:
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return err
		}
	case ChangeModified, ChangeDeleted:
		if change.OldContent == nil {
			return fmt.Errorf("ledger entry has no previous content")
		}
		if err := utils.SaveFile(full, *change.OldContent); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown change kind %q", change.Kind)
	}
	return nil
}
