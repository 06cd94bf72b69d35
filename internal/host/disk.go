package host

import (
	"log/slog"
	"os"
	"path/filepath"

	"dpatch/internal/fs"
	"dpatch/internal/patcher"
	"dpatch/internal/state"
	"dpatch/model"
)

// Disk writes changes directly to the filesystem. Used with --no-editor
// or when no Neovim instance is reachable. Every overwrite stashes both
// the pre- and post-image (keyed by content hash) under the state dir,
// which is what undo and redo restore from.
type Disk struct {
	stateDir string
}

// NewDisk creates a direct disk writer.
func NewDisk(stateDir string) *Disk {
	return &Disk{stateDir: stateDir}
}

// Apply writes each planned change to its target path, restoring the
// file's native line ending.
func (d *Disk) Apply(changes []model.FileChange, progress func(int)) (updated, failed []string) {
	processFn := func(change model.FileChange) (string, bool) {
		if change.Action == model.ActionDelete {
			return change.Path, trashDelete(change.Path, d.stateDir)
		}
		return change.Path, d.writeFile(change)
	}
	return processSequentially(changes, processFn, progress)
}

func (d *Disk) writeFile(change model.FileChange) bool {
	if data, err := os.ReadFile(change.Path); err == nil {
		if err := d.stash(fs.SHA256Bytes(data), data); err != nil {
			slog.Warn("could not stash previous content", "path", change.Path, "err", err)
		}
	}

	content := []byte(patcher.JoinLines(change.Content, change.Ending))
	if err := os.WriteFile(change.Path, content, 0644); err != nil {
		slog.Warn("failed to write file", "path", change.Path, "err", err)
		return false
	}

	// Stash the post-image so redo can restore it; the operation record
	// carries the pre/post hash pair that keys both images.
	if err := d.stash(fs.SHA256Bytes(content), content); err != nil {
		slog.Warn("could not stash new content", "path", change.Path, "err", err)
	}
	return true
}

func (d *Disk) stash(name string, data []byte) error {
	dir := filepath.Join(d.stateDir, "stash")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0644)
}

func (d *Disk) unstash(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.stateDir, "stash", name))
}

// Flush is a no-op; Apply already wrote to disk.
func (d *Disk) Flush() error { return nil }

// Close is a no-op.
func (d *Disk) Close() {}

// Undo reverts a set of operations using the trash and the stash.
func (d *Disk) Undo(ops []state.Operation, progress func(int)) (undone, failed []string) {
	processFn := func(op state.Operation) (string, bool) {
		switch op.Action {
		case model.ActionDelete:
			return op.Path, undoDelete(op, d.stateDir)
		case model.ActionCreate:
			return op.Path, undoCreate(op)
		case model.ActionModify:
			return op.Path, d.undoModify(op)
		default:
			return op.Path, false
		}
	}
	return processSequentially(ops, processFn, progress)
}

// undoModify restores the stashed pre-image of a modified file, only if
// the file still matches the recorded post-operation hash.
func (d *Disk) undoModify(op state.Operation) bool {
	currentHash, err := fs.SHA256(op.Path)
	if err != nil || currentHash != op.SHA256 {
		return false
	}

	pre, err := d.unstash(op.PreSHA256)
	if err != nil {
		slog.Warn("no stashed pre-image, cannot undo modify", "path", op.Path)
		return false
	}
	return os.WriteFile(op.Path, pre, 0644) == nil
}

// Redo reapplies a set of operations.
func (d *Disk) Redo(ops []state.Operation, progress func(int)) (redone, failed []string) {
	processFn := func(op state.Operation) (string, bool) {
		switch op.Action {
		case model.ActionDelete:
			return op.Path, redoDelete(op, d.stateDir)
		case model.ActionCreate, model.ActionModify:
			return op.Path, d.redoFromStash(op)
		default:
			return op.Path, false
		}
	}
	return processSequentially(ops, processFn, progress)
}

// redoFromStash restores the post-image recorded for the operation,
// only if the file is still in the state the undo left it in.
func (d *Disk) redoFromStash(op state.Operation) bool {
	data, err := d.unstash(op.SHA256)
	if err != nil {
		return false
	}

	if !redoPreStateOK(op) {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(op.Path), 0755); err != nil {
		return false
	}
	return os.WriteFile(op.Path, data, 0644) == nil
}
