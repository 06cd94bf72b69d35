package host

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"

	"dpatch/internal/fs"
	"dpatch/internal/state"
	"dpatch/model"
)

const undoDir = "~/.local/state/nvim/undo/"

// Nvim writes changes into Neovim buffers over RPC. Modify operations
// get real editor undo history that way.
type Nvim struct {
	nvim          *nvim.Nvim
	stateDir      string
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
}

// NewNvim connects to a running instance via $NVIM_LISTEN_ADDRESS or
// starts a temporary headless one.
func NewNvim(stateDir string) (*Nvim, error) {
	if addr := os.Getenv("NVIM_LISTEN_ADDRESS"); addr != "" {
		v, err := nvim.Dial(addr)
		if err == nil {
			return &Nvim{nvim: v, stateDir: stateDir}, nil
		}
	}

	tmpDir, err := os.MkdirTemp("", "dpatch-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	// Wait for the socket file to appear.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	m := &Nvim{
		nvim:          v,
		stateDir:      stateDir,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
	}
	m.configureTempInstance()
	return m, nil
}

// configureTempInstance sets up undofile so modify-undo survives the
// headless instance.
func (m *Nvim) configureTempInstance() {
	home, _ := os.UserHomeDir()
	expandedUndoDir := strings.Replace(undoDir, "~", home, 1)
	os.MkdirAll(expandedUndoDir, 0755)

	b := m.nvim.NewBatch()
	b.Command("set undofile")
	b.Command(fmt.Sprintf("set undodir=%s", expandedUndoDir))
	b.Command("set noswapfile")
	b.Execute()
}

// Close disconnects and kills the instance if it was self-started.
func (m *Nvim) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
	if m.isSelfStarted && m.cmd != nil && m.cmd.Process != nil {
		if err := m.cmd.Process.Kill(); err == nil {
			m.cmd.Wait()
			os.RemoveAll(filepath.Dir(m.socketPath))
		}
	}
}

// Apply updates Neovim buffers with the planned file contents. Deletes
// bypass the editor and go through the trash.
func (m *Nvim) Apply(changes []model.FileChange, progress func(int)) (updated, failed []string) {
	processFn := func(change model.FileChange) (string, bool) {
		if change.Action == model.ActionDelete {
			return change.Path, trashDelete(change.Path, m.stateDir)
		}
		return change.Path, m.updateBuffer(change.Path, change.Content)
	}
	return processSequentially(changes, processFn, progress)
}

func (m *Nvim) updateBuffer(filePath string, content []string) bool {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}

	byteContent := make([][]byte, len(content))
	for i, s := range content {
		byteContent[i] = []byte(s)
	}

	b := m.nvim.NewBatch()
	b.Command(fmt.Sprintf("edit %s", absPath))
	b.SetBufferLines(0, 0, -1, true, byteContent)

	return b.Execute() == nil
}

// Flush writes all modified buffers to disk.
func (m *Nvim) Flush() error {
	return m.nvim.Command("wa!")
}

// Undo reverts a set of operations.
func (m *Nvim) Undo(ops []state.Operation, progress func(int)) (undone, failed []string) {
	processFn := func(op state.Operation) (string, bool) {
		switch op.Action {
		case model.ActionDelete:
			return op.Path, undoDelete(op, m.stateDir)
		case model.ActionCreate:
			return op.Path, m.undoModifyOrCreate(op, true)
		default:
			return op.Path, m.undoModifyOrCreate(op, false)
		}
	}
	return processSequentially(ops, processFn, progress)
}

func (m *Nvim) undoModifyOrCreate(op state.Operation, isCreate bool) bool {
	currentHash, err := fs.SHA256(op.Path)
	if err != nil {
		// The undo of a create is trivially done if the file is gone.
		return isCreate && os.IsNotExist(err)
	}

	// Core safety check: a file changed since the operation is left
	// alone.
	if currentHash != op.SHA256 {
		return false
	}

	if isCreate {
		return undoCreate(op)
	}

	absPath, _ := filepath.Abs(op.Path)
	b := m.nvim.NewBatch()
	b.Command(fmt.Sprintf("edit! %s", absPath))
	b.Command("undo")
	b.Command("write")
	return b.Execute() == nil
}

// Redo redoes a set of operations.
func (m *Nvim) Redo(ops []state.Operation, progress func(int)) (redone, failed []string) {
	processFn := func(op state.Operation) (string, bool) {
		switch op.Action {
		case model.ActionDelete:
			return op.Path, redoDelete(op, m.stateDir)
		case model.ActionCreate, model.ActionModify:
			return op.Path, m.redoFile(op)
		default:
			return op.Path, false
		}
	}
	return processSequentially(ops, processFn, progress)
}

func (m *Nvim) redoFile(op state.Operation) bool {
	if !redoPreStateOK(op) {
		return false
	}

	absPath, _ := filepath.Abs(op.Path)
	b := m.nvim.NewBatch()
	b.Command(fmt.Sprintf("edit! %s", absPath))
	b.Command("redo")
	b.Command("write")
	return b.Execute() == nil
}
