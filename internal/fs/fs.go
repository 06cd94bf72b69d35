// Package fs locates target files across lookup directories and holds
// the small pile of disk helpers the rest of the tool leans on.
package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"dpatch/model"
)

// PathResolver finds absolute paths for files named in diffs and hints.
type PathResolver struct {
	lookupDirs []string
}

// NewPathResolver creates a PathResolver. With no lookup dirs it
// resolves against the current working directory.
func NewPathResolver(lookupDirs []string) *PathResolver {
	if len(lookupDirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			panic(fmt.Sprintf("could not get current working directory: %v", err))
		}
		return &PathResolver{lookupDirs: []string{wd}}
	}

	absDirs := make([]string, 0, len(lookupDirs))
	for _, dir := range lookupDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			slog.Warn("ignoring invalid lookup directory", "dir", dir, "err", err)
			continue
		}
		absDirs = append(absDirs, abs)
	}
	if len(absDirs) == 0 {
		wd, _ := os.Getwd()
		absDirs = []string{wd}
	}
	return &PathResolver{lookupDirs: absDirs}
}

// Resolve finds an absolute path, assuming a new file in the first
// lookup directory if none exists yet.
func (r *PathResolver) Resolve(relativePath string) string {
	if existing := r.ResolveExisting(relativePath); existing != "" {
		return existing
	}
	return filepath.Join(r.lookupDirs[0], relativePath)
}

// ResolveExisting finds an absolute path only if the file exists.
func (r *PathResolver) ResolveExisting(relativePath string) string {
	for _, dir := range r.lookupDirs {
		absPath := filepath.Join(dir, relativePath)
		if _, err := os.Stat(absPath); err == nil {
			return absPath
		}
	}
	return ""
}

// ClassifyTargets determines which paths are new vs. modified and which
// directories need to be created first. Paths already marked for
// deletion keep that action.
func ClassifyTargets(changes []model.FileChange) (map[string]string, map[string]struct{}) {
	fileActions := make(map[string]string)
	dirsToCreate := make(map[string]struct{})

	for _, change := range changes {
		if change.Action == model.ActionDelete {
			fileActions[change.Path] = model.ActionDelete
			continue
		}
		if _, err := os.Stat(change.Path); os.IsNotExist(err) {
			fileActions[change.Path] = model.ActionCreate
			dir := filepath.Dir(change.Path)
			if dir != "." && dir != "/" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					dirsToCreate[dir] = struct{}{}
				}
			}
		} else {
			fileActions[change.Path] = model.ActionModify
		}
	}
	return fileActions, dirsToCreate
}

// CreateDirs creates all directories in the set, parents included.
func CreateDirs(dirs map[string]struct{}) error {
	sortedDirs := make([]string, 0, len(dirs))
	for dir := range dirs {
		sortedDirs = append(sortedDirs, dir)
	}
	sort.Strings(sortedDirs)

	for _, dir := range sortedDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("created directory", "dir", dir)
	}
	return nil
}

// SHA256 returns the hex SHA-256 of a file's content.
func SHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SHA256Bytes returns the hex SHA-256 of in-memory content.
func SHA256Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TrashFile moves a file into the trash directory, preserving its path
// relative to root so it can be restored later.
func TrashFile(path, trashDir, root string) error {
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = filepath.Base(path)
	}
	dest := filepath.Join(trashDir, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.Rename(path, dest)
}

// RestoreFromTrash moves a trashed file back to its original path.
func RestoreFromTrash(path, trashDir, root string) error {
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = filepath.Base(path)
	}
	src := filepath.Join(trashDir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.Rename(src, path)
}

// IsEmptyDir reports whether a directory contains no entries.
func IsEmptyDir(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
