package host

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpatch/internal/fs"
	"dpatch/internal/state"
	"dpatch/model"
)

func newDiskWriter(t *testing.T) (*Disk, string) {
	t.Helper()
	root := t.TempDir()
	stateDir := filepath.Join(root, ".dpatch")
	require.NoError(t, os.MkdirAll(stateDir, 0755))
	return NewDisk(stateDir), root
}

func TestDiskApplyCreate(t *testing.T) {
	d, root := newDiskWriter(t)
	path := filepath.Join(root, "new.txt")

	updated, failed := d.Apply([]model.FileChange{{
		Path:    path,
		Content: []string{"hello", "world"},
		Action:  model.ActionCreate,
	}}, nil)

	require.Empty(t, failed)
	assert.Equal(t, []string{path}, updated)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(data))
}

func TestDiskApplyRestoresCRLF(t *testing.T) {
	d, root := newDiskWriter(t)
	path := filepath.Join(root, "win.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\r\nb\r\n"), 0644))

	updated, failed := d.Apply([]model.FileChange{{
		Path:    path,
		Content: []string{"a", "B"},
		Action:  model.ActionModify,
		Ending:  model.EndingCRLF,
	}}, nil)

	require.Empty(t, failed)
	require.Len(t, updated, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\r\nB\r\n", string(data))
}

func TestDiskModifyUndoRedo(t *testing.T) {
	d, root := newDiskWriter(t)
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("before\n"), 0644))
	preHash, err := fs.SHA256(path)
	require.NoError(t, err)

	updated, failed := d.Apply([]model.FileChange{{
		Path:    path,
		Content: []string{"after"},
		Action:  model.ActionModify,
	}}, nil)
	require.Empty(t, failed)
	require.Len(t, updated, 1)

	postHash, err := fs.SHA256(path)
	require.NoError(t, err)
	op := state.Operation{Path: path, Action: model.ActionModify, SHA256: postHash, PreSHA256: preHash}

	undone, failedUndo := d.Undo([]state.Operation{op}, nil)
	require.Empty(t, failedUndo)
	require.Len(t, undone, 1)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "before\n", string(data))

	redone, failedRedo := d.Redo([]state.Operation{op}, nil)
	require.Empty(t, failedRedo)
	require.Len(t, redone, 1)
	data, _ = os.ReadFile(path)
	assert.Equal(t, "after\n", string(data))
}

func TestDiskUndoRefusesChangedFile(t *testing.T) {
	d, root := newDiskWriter(t)
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("before\n"), 0644))

	d.Apply([]model.FileChange{{
		Path:    path,
		Content: []string{"after"},
		Action:  model.ActionModify,
	}}, nil)

	postHash, err := fs.SHA256(path)
	require.NoError(t, err)

	// The user edits the file after dpatch wrote it.
	require.NoError(t, os.WriteFile(path, []byte("user edit\n"), 0644))

	op := state.Operation{Path: path, Action: model.ActionModify, SHA256: postHash}
	undone, failed := d.Undo([]state.Operation{op}, nil)
	assert.Empty(t, undone)
	assert.Equal(t, []string{path}, failed)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "user edit\n", string(data), "a changed file is never touched")
}

func TestDiskRedoRefusesChangedFile(t *testing.T) {
	d, root := newDiskWriter(t)
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("before\n"), 0644))
	preHash, err := fs.SHA256(path)
	require.NoError(t, err)

	d.Apply([]model.FileChange{{
		Path:    path,
		Content: []string{"after"},
		Action:  model.ActionModify,
	}}, nil)
	postHash, err := fs.SHA256(path)
	require.NoError(t, err)
	op := state.Operation{Path: path, Action: model.ActionModify, SHA256: postHash, PreSHA256: preHash}

	undone, failedUndo := d.Undo([]state.Operation{op}, nil)
	require.Empty(t, failedUndo)
	require.Len(t, undone, 1)

	// The user edits the file after the undo.
	require.NoError(t, os.WriteFile(path, []byte("precious user edit\n"), 0644))

	redone, failed := d.Redo([]state.Operation{op}, nil)
	assert.Empty(t, redone)
	assert.Equal(t, []string{path}, failed)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "precious user edit\n", string(data), "a changed file is never touched")
}

func TestDiskRedoCreateRefusesExistingFile(t *testing.T) {
	d, root := newDiskWriter(t)
	path := filepath.Join(root, "new.txt")

	d.Apply([]model.FileChange{{
		Path:    path,
		Content: []string{"generated"},
		Action:  model.ActionCreate,
	}}, nil)
	postHash, err := fs.SHA256(path)
	require.NoError(t, err)
	op := state.Operation{Path: path, Action: model.ActionCreate, SHA256: postHash}

	undone, failedUndo := d.Undo([]state.Operation{op}, nil)
	require.Empty(t, failedUndo)
	require.Len(t, undone, 1)

	// The user puts their own file at the path the create would retake.
	require.NoError(t, os.WriteFile(path, []byte("mine\n"), 0644))

	redone, failed := d.Redo([]state.Operation{op}, nil)
	assert.Empty(t, redone)
	assert.Equal(t, []string{path}, failed)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "mine\n", string(data))
}

func TestDiskUndoCreate(t *testing.T) {
	d, root := newDiskWriter(t)
	path := filepath.Join(root, "sub", "new.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	d.Apply([]model.FileChange{{
		Path:    path,
		Content: []string{"x"},
		Action:  model.ActionCreate,
	}}, nil)

	hash, err := fs.SHA256(path)
	require.NoError(t, err)

	op := state.Operation{Path: path, Action: model.ActionCreate, SHA256: hash}
	undone, failed := d.Undo([]state.Operation{op}, nil)
	require.Empty(t, failed)
	require.Len(t, undone, 1)
	assert.NoFileExists(t, path)
	assert.NoDirExists(t, filepath.Dir(path), "empty parent dir is pruned")
}

func TestDiskDeleteUndo(t *testing.T) {
	d, root := newDiskWriter(t)

	// trashDelete stores paths relative to the working directory.
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { os.Chdir(oldWd) })

	path := filepath.Join(root, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("bye\n"), 0644))
	hash, err := fs.SHA256(path)
	require.NoError(t, err)

	updated, failed := d.Apply([]model.FileChange{{
		Path:   path,
		Action: model.ActionDelete,
	}}, nil)
	require.Empty(t, failed)
	require.Len(t, updated, 1)
	assert.NoFileExists(t, path)

	op := state.Operation{Path: path, Action: model.ActionDelete, SHA256: hash}
	undone, failedUndo := d.Undo([]state.Operation{op}, nil)
	require.Empty(t, failedUndo)
	require.Len(t, undone, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bye\n", string(data))
}

func TestProcessSequentially(t *testing.T) {
	var seen []int
	ok, bad := processSequentially([]int{1, 2, 3}, func(n int) (string, bool) {
		return string(rune('a' + n)), n != 2
	}, func(i int) { seen = append(seen, i) })

	assert.Len(t, ok, 2)
	assert.Len(t, bad, 1)
	assert.Equal(t, []int{1, 2, 3}, seen)
}
