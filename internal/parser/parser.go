// Package parser builds the execution plan: it pulls file blocks and
// diff blocks out of the input and resolves them into concrete file
// changes.
package parser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"dpatch/internal/fs"
	"dpatch/internal/patcher"
	"dpatch/model"
)

// ExecutionPlan contains all the changes and setup needed for a run.
type ExecutionPlan struct {
	Changes      []model.FileChange
	FileActions  map[string]string // absolute path -> create/modify/delete
	DirsToCreate map[string]struct{}
	Failed       []string
}

var (
	pathInHintRegex = regexp.MustCompile("`([^`\n]+)`")
	hunkHeaderRegex = regexp.MustCompile(`(?m)^@@ -\d`)
	oldFileRegex    = regexp.MustCompile(`(?m)^--- `)
	newFileRegex    = regexp.MustCompile(`(?m)^\+\+\+ `)
)

// CreatePlan parses content and generates a plan of file changes.
func CreatePlan(content string, resolver *fs.PathResolver, extensions []string) (*ExecutionPlan, error) {
	// '.diff' as the only extension selects diff-only mode.
	isDiffOnlyMode := len(extensions) == 1 && extensions[0] == ".diff"

	blocks, err := ExtractCodeBlocks([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to extract code blocks: %w", err)
	}

	var fileBlocks []model.FileChange
	if !isDiffOnlyMode {
		fileBlocks = parseFileBlocks(blocks, resolver, extensions)
	}

	diffBlocks := collectDiffBlocks(content, blocks)

	patcherExtensions := extensions
	if isDiffOnlyMode {
		// In diff-only mode, don't filter patches by extension.
		patcherExtensions = nil
	}
	patchedChanges, failed := patcher.GenerateChanges(diffBlocks, resolver, patcherExtensions)

	// Combine changes, letting file blocks overwrite diff patches for
	// the same file.
	finalChanges := make(map[string]model.FileChange)
	for _, change := range patchedChanges {
		finalChanges[change.Path] = change
	}
	for _, block := range fileBlocks {
		finalChanges[block.Path] = block
	}

	planChanges := make([]model.FileChange, 0, len(finalChanges))
	for _, change := range finalChanges {
		planChanges = append(planChanges, change)
	}

	actions, dirs := fs.ClassifyTargets(planChanges)
	for i, change := range planChanges {
		if change.Action == "" {
			planChanges[i].Action = actions[change.Path]
		}
	}

	return &ExecutionPlan{
		Changes:      planChanges,
		FileActions:  actions,
		DirsToCreate: dirs,
		Failed:       failed,
	}, nil
}

// ExtractDiffBlocks finds all diff documents in the content: fenced
// blocks with a diff language tag, or the whole input when it is a bare
// unified diff with no fences at all.
func ExtractDiffBlocks(content string) []model.DiffBlock {
	blocks, err := ExtractCodeBlocks([]byte(content))
	if err != nil {
		return nil
	}
	return collectDiffBlocks(content, blocks)
}

func collectDiffBlocks(content string, blocks []CodeBlock) []model.DiffBlock {
	var diffs []model.DiffBlock
	for _, block := range blocks {
		if block.Lang != "diff" && block.Lang != "patch" {
			continue
		}
		raw := strings.TrimSpace(block.Content)
		diffs = append(diffs, model.DiffBlock{
			FilePath:   patcher.ExtractPathFromDiff(raw),
			RawContent: raw,
		})
	}

	if len(diffs) == 0 && looksLikeDiff(content) {
		raw := strings.TrimSpace(content)
		diffs = append(diffs, model.DiffBlock{
			FilePath:   patcher.ExtractPathFromDiff(raw),
			RawContent: raw,
		})
	}
	return diffs
}

// looksLikeDiff reports whether the content is a bare unified diff
// rather than a document containing fenced blocks.
func looksLikeDiff(content string) bool {
	if strings.Contains(content, "```") {
		return false
	}
	if hunkHeaderRegex.MatchString(content) {
		return oldFileRegex.MatchString(content) || newFileRegex.MatchString(content)
	}
	return false
}

func parseFileBlocks(blocks []CodeBlock, resolver *fs.PathResolver, extensions []string) []model.FileChange {
	var changes []model.FileChange
	for _, block := range blocks {
		if block.Lang == "diff" || block.Lang == "patch" {
			continue // Diffs are handled separately.
		}

		filePath := extractPathFromHint(block.Hint)
		if filePath == "" {
			continue
		}
		if !hasAllowedExtension(filePath, extensions) {
			continue
		}

		resolved := resolver.Resolve(filePath)
		changes = append(changes, model.FileChange{
			Path:    resolved,
			Content: patcher.SplitLines(block.Content),
			Source:  model.SourceCodeBlock,
			Ending:  endingOf(resolved),
		})
	}
	return changes
}

// endingOf preserves the line ending of an existing target file.
func endingOf(path string) model.LineEnding {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.EndingLF
	}
	return patcher.DetectEnding(string(data))
}

func extractPathFromHint(hint string) string {
	hint = strings.TrimSpace(hint)

	// A path hint must be enclosed in backticks, e.g. `path/to/file.go`
	if match := pathInHintRegex.FindStringSubmatch(hint); len(match) > 1 {
		path := strings.TrimSpace(match[1])
		// Disallow spaces to avoid capturing commands like `go run
		// main.go` as a path.
		if !strings.Contains(path, " ") {
			return path
		}
	}

	if hint != "" {
		slog.Debug("no path in hint, skipping block", "hint", hint)
	}
	return ""
}

func hasAllowedExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
