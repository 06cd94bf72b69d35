// Package host writes planned changes back through a host editor
// (Neovim over RPC) or, failing that, straight to disk.
package host

import (
	"log/slog"
	"os"
	"path/filepath"

	"dpatch/internal/fs"
	"dpatch/internal/state"
	"dpatch/model"
)

// Writer applies planned file changes and walks history operations.
type Writer interface {
	Apply(changes []model.FileChange, progress func(int)) (updated, failed []string)
	Undo(ops []state.Operation, progress func(int)) (undone, failed []string)
	Redo(ops []state.Operation, progress func(int)) (redone, failed []string)
	// Flush persists any buffered changes to disk.
	Flush() error
	Close()
}

// New picks a writer: Neovim unless noEditor is set, falling back to
// direct disk writes when no editor is reachable.
func New(noEditor bool, stateDir string) Writer {
	if !noEditor {
		w, err := NewNvim(stateDir)
		if err == nil {
			return w
		}
		slog.Warn("no editor reachable, writing directly to disk", "err", err)
	}
	return NewDisk(stateDir)
}

// processSequentially runs jobs in order, splitting results into
// succeeded and failed paths.
func processSequentially[T any](
	items []T,
	processFn func(item T) (path string, success bool),
	progress func(int),
) (succeeded, failed []string) {
	for i, item := range items {
		path, ok := processFn(item)
		if ok {
			succeeded = append(succeeded, path)
		} else {
			failed = append(failed, path)
		}
		if progress != nil {
			progress(i + 1)
		}
	}
	return succeeded, failed
}

// trashDelete moves a file into the state trash so undo can restore it.
func trashDelete(path, stateDir string) bool {
	trashPath := filepath.Join(stateDir, state.TrashDir)
	wd, err := os.Getwd()
	if err != nil {
		return false
	}
	return fs.TrashFile(path, trashPath, wd) == nil
}

// undoDelete restores a trashed file, verifying the recorded hash.
func undoDelete(op state.Operation, stateDir string) bool {
	trashPath := filepath.Join(stateDir, state.TrashDir)
	wd, err := os.Getwd()
	if err != nil {
		return false
	}
	if err := fs.RestoreFromTrash(op.Path, trashPath, wd); err != nil {
		return false
	}
	restoredHash, err := fs.SHA256(op.Path)
	if err != nil || restoredHash != op.SHA256 {
		// The restored file is not what the history says it was.
		os.Remove(op.Path)
		return false
	}
	return true
}

// undoCreate removes a created file if it still matches the recorded
// hash, and prunes the parent directory if that leaves it empty.
func undoCreate(op state.Operation) bool {
	currentHash, err := fs.SHA256(op.Path)
	if err != nil {
		// Already gone counts as undone.
		return os.IsNotExist(err)
	}
	if currentHash != op.SHA256 {
		return false
	}
	if err := os.Remove(op.Path); err != nil {
		return false
	}

	parentDir := filepath.Dir(op.Path)
	if isEmpty, _ := fs.IsEmptyDir(parentDir); isEmpty {
		os.Remove(parentDir)
	}
	return true
}

// redoPreStateOK reports whether a create or modify operation may be
// redone: the target must still be in the state the undo left it in.
// A file edited since the undo is left alone.
func redoPreStateOK(op state.Operation) bool {
	currentHash, err := fs.SHA256(op.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false
		}
		// A missing file is the undone state of a create only.
		return op.Action == model.ActionCreate
	}
	if currentHash == op.SHA256 {
		// Already in the post state; rewriting it is harmless.
		return true
	}
	return op.Action == model.ActionModify && currentHash == op.PreSHA256
}

// redoDelete re-trashes a file previously deleted, hash-checked.
func redoDelete(op state.Operation, stateDir string) bool {
	currentHash, err := fs.SHA256(op.Path)
	if err != nil || currentHash != op.SHA256 {
		return false
	}
	return trashDelete(op.Path, stateDir)
}
