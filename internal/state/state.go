// Package state persists the operation history that undo and redo walk
// through. The history lives in a JSON file under the repository root.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dpatch/internal/fs"
	"dpatch/model"
)

const (
	stateDirName  = ".dpatch"
	stateFileName = "state.json"
	// TrashDir holds deleted files so undo can restore them.
	TrashDir = "trash"
)

// Operation records a single file operation.
type Operation struct {
	Path   string `json:"path"`
	Action string `json:"action"`
	// SHA256 of the file content after the operation; undo refuses to
	// touch a file that no longer matches.
	SHA256 string `json:"sha256"`
	// PreSHA256 is the hash of the content the operation replaced,
	// empty when the file did not exist. Redo refuses to touch a file
	// that does not match it.
	PreSHA256 string `json:"pre_sha256,omitempty"`
}

// HistoryEntry represents one complete run of the tool.
type HistoryEntry struct {
	Timestamp  int64       `json:"timestamp"`
	Operations []Operation `json:"operations"`
}

// State is the entire on-disk state.
type State struct {
	History      []HistoryEntry `json:"history"`
	CurrentIndex int            `json:"current_index"`
}

// Manager handles the lifecycle of the state file.
type Manager struct {
	statePath string
	state     *State
	StateDir  string
}

// findGitRoot finds the root of the enclosing git repository.
func findGitRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// New creates and loads a state manager rooted at the git toplevel, or
// the working directory outside a repository.
func New() (*Manager, error) {
	rootDir, err := findGitRoot()
	if err != nil {
		rootDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
	}
	return NewAt(rootDir)
}

// NewAt creates a state manager rooted at an explicit directory.
func NewAt(rootDir string) (*Manager, error) {
	stateDir := filepath.Join(rootDir, stateDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	m := &Manager{
		statePath: filepath.Join(stateDir, stateFileName),
		StateDir:  stateDir,
	}
	if err := m.load(); err != nil {
		// A corrupt state file should not brick the tool.
		m.state = &State{CurrentIndex: -1}
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = &State{CurrentIndex: -1}
			return nil
		}
		return err
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid state file: %w", err)
	}
	if s.CurrentIndex < -1 || s.CurrentIndex >= len(s.History) {
		return fmt.Errorf("invalid state file: index %d out of range", s.CurrentIndex)
	}
	m.state = &s
	return nil
}

func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.statePath, data, 0644)
}

// Write adds a new set of operations to the history, truncating any
// redo tail past the current position.
func (m *Manager) Write(operations []Operation) error {
	if m.state.CurrentIndex < len(m.state.History)-1 {
		m.state.History = m.state.History[:m.state.CurrentIndex+1]
	}

	m.state.History = append(m.state.History, HistoryEntry{
		Timestamp:  time.Now().UTC().Unix(),
		Operations: operations,
	})
	m.state.CurrentIndex++
	return m.save()
}

// OperationsToUndo returns the last operations and moves the pointer.
func (m *Manager) OperationsToUndo() []Operation {
	if m.state.CurrentIndex < 0 {
		return nil
	}
	ops := m.state.History[m.state.CurrentIndex].Operations
	m.state.CurrentIndex--
	if err := m.save(); err != nil {
		slog.Warn("could not persist history position; a repeated undo will replay this entry", "error", err)
	}
	return ops
}

// OperationsToRedo returns the next operations and moves the pointer.
func (m *Manager) OperationsToRedo() []Operation {
	next := m.state.CurrentIndex + 1
	if next >= len(m.state.History) {
		return nil
	}
	m.state.CurrentIndex = next
	ops := m.state.History[next].Operations
	if err := m.save(); err != nil {
		slog.Warn("could not persist history position; a repeated redo will replay this entry", "error", err)
	}
	return ops
}

// CreateOperations prepares history operations from the files a run
// touched, hashing the post-operation content. preHashes carries the
// hash each file had before the run, keyed by path; files that did not
// exist are absent from it.
func (m *Manager) CreateOperations(updatedFiles []string, fileActions map[string]string, preHashes map[string]string) []Operation {
	ops := make([]Operation, 0, len(updatedFiles))
	trashPath := filepath.Join(m.StateDir, TrashDir)
	wd, err := os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("could not get current working directory: %v", err))
	}

	for _, f := range updatedFiles {
		action := fileActions[f]
		pathForHash := f
		if action == model.ActionDelete {
			relPath, err := filepath.Rel(wd, f)
			if err != nil {
				relPath = filepath.Base(f)
			}
			pathForHash = filepath.Join(trashPath, relPath)
		}

		hash, err := fs.SHA256(pathForHash)
		if err != nil {
			// Without a hash the safety check will refuse the undo,
			// which is the conservative outcome.
			hash = ""
		}
		ops = append(ops, Operation{
			Path:      f,
			Action:    action,
			SHA256:    hash,
			PreSHA256: preHashes[f],
		})
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Path < ops[j].Path
	})
	return ops
}
