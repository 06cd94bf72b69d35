// Package dpatch wires the pipeline together: acquire input, build the
// execution plan, apply it through a host writer, record history. It is
// both the CLI's engine and the embeddable library surface.
package dpatch

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"dpatch/cli"
	"dpatch/internal/fs"
	"dpatch/internal/host"
	"dpatch/internal/parser"
	"dpatch/internal/patcher"
	"dpatch/internal/source"
	"dpatch/internal/state"
	"dpatch/model"
)

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// App orchestrates the entire application logic.
type App struct {
	cfg              *cli.Config
	stateManager     *state.Manager
	pathResolver     *fs.PathResolver
	sourceProvider   *source.Provider
	progressCallback ProgressUpdate

	// newWriter is swappable for tests.
	newWriter func() host.Writer
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

// New creates a new App instance.
func New(cfg *cli.Config) (*App, error) {
	stateManager, err := state.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}

	a := &App{
		cfg:            cfg,
		stateManager:   stateManager,
		pathResolver:   fs.NewPathResolver(cfg.LookupDirs),
		sourceProvider: source.New(cfg.InputFile),
	}
	a.newWriter = func() host.Writer {
		return host.New(cfg.NoEditor, stateManager.StateDir)
	}
	return a, nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// Execute runs the operation selected by the flags.
func (a *App) Execute() (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch {
	case a.cfg.Undo:
		return a.undoLastOperation()
	case a.cfg.Redo:
		return a.redoLastOperation()
	case a.cfg.OutputDiffFix:
		return a.fixAndPrintDiffs()
	default:
		return a.processContent()
	}
}

// Parse creates a plan from content and returns the new content of each
// affected file, keyed by absolute path.
func (a *App) Parse(content string) (map[string]string, error) {
	plan, err := parser.CreatePlan(content, a.pathResolver, a.cfg.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution plan: %w", err)
	}

	changes := make(map[string]string)
	for _, change := range plan.Changes {
		if change.Action == model.ActionDelete {
			// A path-to-content map cannot express a deletion.
			continue
		}
		changes[change.Path] = strings.Join(change.Content, "\n")
	}
	return changes, nil
}

// Apply takes a map of file paths to content and applies the changes.
func (a *App) Apply(changes map[string]string) (model.Summary, error) {
	planChanges := make([]model.FileChange, 0, len(changes))
	for path, content := range changes {
		planChanges = append(planChanges, model.FileChange{
			Path:    path,
			Content: patcher.SplitLines(content),
			Source:  model.SourceLibrary,
		})
	}

	actions, dirs := fs.ClassifyTargets(planChanges)
	for i, change := range planChanges {
		planChanges[i].Action = actions[change.Path]
	}
	plan := &parser.ExecutionPlan{
		Changes:      planChanges,
		FileActions:  actions,
		DirsToCreate: dirs,
	}

	if err := fs.CreateDirs(plan.DirsToCreate); err != nil {
		return model.Summary{}, err
	}
	return a.applyChanges(plan)
}

// processContent handles the main flow: read the source, build the
// plan, apply it.
func (a *App) processContent() (model.Summary, error) {
	content, err := a.sourceProvider.GetContent()
	if err != nil {
		return model.Summary{}, err
	}
	if strings.TrimSpace(content) == "" {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}

	plan, err := parser.CreatePlan(content, a.pathResolver, a.cfg.Extensions)
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to create execution plan: %w", err)
	}
	if len(plan.Changes) == 0 && len(plan.Failed) == 0 {
		return model.Summary{Message: "No valid changes were generated. Nothing to do."}, nil
	}

	if err := fs.CreateDirs(plan.DirsToCreate); err != nil {
		return model.Summary{}, err
	}
	return a.applyChanges(plan)
}

// applyChanges pushes the planned changes through the host writer and
// records the run in history.
func (a *App) applyChanges(plan *parser.ExecutionPlan) (model.Summary, error) {
	writer := a.newWriter()
	defer writer.Close()

	// Hash targets before they change so redo can verify pre-state.
	preHashes := make(map[string]string, len(plan.Changes))
	for _, change := range plan.Changes {
		if h, err := fs.SHA256(change.Path); err == nil {
			preHashes[change.Path] = h
		}
	}

	updatedFiles, failedFromWriter := writer.Apply(plan.Changes, a.writerProgress(len(plan.Changes)))
	allFailed := append(plan.Failed, failedFromWriter...)

	created := []string{}
	modified := []string{}
	for _, path := range updatedFiles {
		switch plan.FileActions[path] {
		case model.ActionCreate:
			created = append(created, path)
		default:
			modified = append(modified, path)
		}
	}

	if len(updatedFiles) > 0 && !a.cfg.Buffer { // Save by default.
		if err := writer.Flush(); err != nil {
			return model.Summary{}, fmt.Errorf("failed to save buffers: %w", err)
		}
		ops := a.stateManager.CreateOperations(updatedFiles, plan.FileActions, preHashes)
		if err := a.stateManager.Write(ops); err != nil {
			return model.Summary{}, fmt.Errorf("failed to record history: %w", err)
		}
	}

	summary := model.Summary{
		Created:  created,
		Modified: modified,
		Failed:   allFailed,
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

// fixAndPrintDiffs re-anchors diffs from the source and prints the
// corrected unified diff to stdout.
func (a *App) fixAndPrintDiffs() (model.Summary, error) {
	content, err := a.sourceProvider.GetContent()
	if err != nil {
		return model.Summary{}, err
	}
	if content == "" {
		return model.Summary{}, nil
	}

	for _, diff := range parser.ExtractDiffBlocks(content) {
		corrected, err := patcher.CorrectDiff(diff, a.pathResolver)
		if err != nil {
			// Silently skip failures for this mode.
			continue
		}
		fmt.Print(corrected)
	}
	return model.Summary{}, nil
}

// undoLastOperation handles the undo logic.
func (a *App) undoLastOperation() (model.Summary, error) {
	ops := a.stateManager.OperationsToUndo()
	if len(ops) == 0 {
		return model.Summary{Message: "No operation to undo."}, nil
	}

	writer := a.newWriter()
	defer writer.Close()

	undone, failed := writer.Undo(ops, a.writerProgress(len(ops)))
	summary := model.Summary{
		Modified: undone,
		Failed:   failed,
		Message:  "Undid last operation.",
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

// redoLastOperation handles the redo logic.
func (a *App) redoLastOperation() (model.Summary, error) {
	ops := a.stateManager.OperationsToRedo()
	if len(ops) == 0 {
		return model.Summary{Message: "No operation to redo."}, nil
	}

	writer := a.newWriter()
	defer writer.Close()

	redone, failed := writer.Redo(ops, a.writerProgress(len(ops)))
	summary := model.Summary{
		Modified: redone,
		Failed:   failed,
		Message:  "Redid last undone operation.",
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

// writerProgress adapts the app-level callback to the writer's
// per-item progress hook.
func (a *App) writerProgress(total int) func(int) {
	if a.progressCallback == nil {
		return nil
	}
	a.progressCallback(0, total)
	return func(current int) {
		a.progressCallback(current, total)
	}
}

// relativizeSummaryPaths converts absolute file paths in a summary to
// be relative to the working directory for cleaner display.
func (a *App) relativizeSummaryPaths(summary *model.Summary) {
	wd, err := os.Getwd()
	if err != nil {
		return
	}

	makeRelative := func(absPaths []string) []string {
		relPaths := make([]string, len(absPaths))
		for i, p := range absPaths {
			rel, err := filepath.Rel(wd, p)
			if err != nil || strings.HasPrefix(rel, "..") {
				relPaths[i] = p
			} else {
				relPaths[i] = rel
			}
		}
		return relPaths
	}

	summary.Created = makeRelative(summary.Created)
	summary.Modified = makeRelative(summary.Modified)
	summary.Failed = makeRelative(summary.Failed)
}
