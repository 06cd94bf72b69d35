// Package patcher turns raw unified-diff text into applied file
// contents. Parsing is delegated to sourcegraph/go-diff; this package
// re-anchors each hunk against the file currently on disk and applies
// it to an in-memory line slice.
package patcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"dpatch/internal/fs"
	"dpatch/model"
)

// filePathRegex extracts the file path from a '+++ b/...' line.
var filePathRegex = regexp.MustCompile(`(?m)^\+\+\+ b/(?P<path>.*?)(\s|$)`)

// ExtractPathFromDiff finds the first target path in a raw diff string.
// Used for display and filtering before the diff is fully parsed.
func ExtractPathFromDiff(content string) string {
	match := filePathRegex.FindStringSubmatch(content)
	if len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// ParseDiffs parses a raw diff document into per-file diffs. The text
// is normalized to LF first; go-diff chokes on CR.
func ParseDiffs(raw string) ([]*godiff.FileDiff, error) {
	norm := Normalize(raw)
	if !strings.HasSuffix(norm, "\n") {
		norm += "\n"
	}
	fds, err := godiff.ParseMultiFileDiff([]byte(norm))
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}
	return fds, nil
}

// TargetPath returns the path a file diff applies to, with the a/ b/
// prefixes stripped, and whether the diff deletes the file.
func TargetPath(fd *godiff.FileDiff) (path string, isDelete bool) {
	newName := stripDiffPrefix(fd.NewName)
	origName := stripDiffPrefix(fd.OrigName)

	if fd.NewName == "/dev/null" {
		return origName, true
	}
	if newName != "" {
		return newName, false
	}
	return origName, false
}

func stripDiffPrefix(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, prefix) {
			return name[len(prefix):]
		}
	}
	return name
}

// GenerateChanges parses and applies all diff blocks, producing the
// final file contents. A block or file that fails to apply is recorded
// in failed and never aborts the run.
func GenerateChanges(blocks []model.DiffBlock, resolver *fs.PathResolver, extensions []string) (changes []model.FileChange, failed []string) {
	for _, block := range blocks {
		fds, err := ParseDiffs(block.RawContent)
		if err != nil {
			slog.Warn("skipping unparseable diff block", "path", block.FilePath, "err", err)
			if block.FilePath != "" {
				failed = append(failed, block.FilePath)
			}
			continue
		}

		for _, fd := range fds {
			path, isDelete := TargetPath(fd)
			if path == "" {
				slog.Warn("diff entry has no usable file path, skipping")
				continue
			}
			if !allowedExtension(path, extensions) {
				continue
			}

			if isDelete {
				resolved := resolver.ResolveExisting(path)
				if resolved == "" {
					failed = append(failed, path)
					continue
				}
				changes = append(changes, model.FileChange{
					Path:   resolved,
					Source: model.SourceDiff,
					Action: model.ActionDelete,
				})
				continue
			}

			content, ending := loadSource(resolver, path)
			patched, err := ApplyFileDiff(content, fd)
			if err != nil {
				slog.Warn("failed to apply diff", "path", path, "err", err)
				failed = append(failed, path)
				continue
			}

			changes = append(changes, model.FileChange{
				Path:    resolver.Resolve(path),
				Content: patched,
				Source:  model.SourceDiff,
				Ending:  ending,
			})
		}
	}
	return changes, failed
}

// CorrectDiff re-anchors all hunks of a diff block against the current
// sources and renders the corrected unified diff.
func CorrectDiff(block model.DiffBlock, resolver *fs.PathResolver) (string, error) {
	fds, err := ParseDiffs(block.RawContent)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, fd := range fds {
		path, isDelete := TargetPath(fd)
		if path == "" || isDelete {
			continue
		}
		content, _ := loadSource(resolver, path)
		patched, err := ApplyFileDiff(content, fd)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		fixed, err := FixedDiff(content, patched, path)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		parts = append(parts, fixed)
	}
	return strings.Join(parts, ""), nil
}

// loadSource reads the current content of a target file as LF lines.
// A missing file yields nil lines, which applies new-file diffs.
func loadSource(resolver *fs.PathResolver, path string) ([]string, model.LineEnding) {
	resolved := resolver.ResolveExisting(path)
	if resolved == "" {
		return nil, model.EndingLF
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, model.EndingLF
	}
	content := string(data)
	return SplitLines(content), DetectEnding(content)
}

func allowedExtension(path string, extensions []string) bool {
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
