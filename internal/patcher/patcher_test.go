package patcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpatch/internal/fs"
	"dpatch/model"
)

func TestExtractPathFromDiff(t *testing.T) {
	diff := "--- a/src/main.go\n+++ b/src/main.go\n@@ -1 +1 @@\n-a\n+b\n"
	assert.Equal(t, "src/main.go", ExtractPathFromDiff(diff))
	assert.Equal(t, "", ExtractPathFromDiff("no diff here"))
}

func TestTargetPath(t *testing.T) {
	fds, err := ParseDiffs(`--- a/pkg/x.go
+++ b/pkg/x.go
@@ -1 +1 @@
-a
+b
--- a/gone.go
+++ /dev/null
@@ -1 +0,0 @@
-a
`)
	require.NoError(t, err)
	require.Len(t, fds, 2)

	path, isDelete := TargetPath(fds[0])
	assert.Equal(t, "pkg/x.go", path)
	assert.False(t, isDelete)

	path, isDelete = TargetPath(fds[1])
	assert.Equal(t, "gone.go", path)
	assert.True(t, isDelete)
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestGenerateChanges(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.go", "package main\n\nfunc main() {\n}\n")
	resolver := fs.NewPathResolver([]string{dir})

	blocks := []model.DiffBlock{{
		FilePath: "main.go",
		RawContent: "--- a/main.go\n+++ b/main.go\n@@ -1,2 +1,2 @@\n-package main\n+package mainer\n \n",
	}}

	changes, failed := GenerateChanges(blocks, resolver, nil)
	require.Empty(t, failed)
	require.Len(t, changes, 1)
	assert.Equal(t, filepath.Join(dir, "main.go"), changes[0].Path)
	assert.Equal(t, model.SourceDiff, changes[0].Source)
	assert.Equal(t, "package mainer", changes[0].Content[0])
}

func TestGenerateChangesExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "notes.txt", "old\n")
	resolver := fs.NewPathResolver([]string{dir})

	blocks := []model.DiffBlock{{
		FilePath:   "notes.txt",
		RawContent: "--- a/notes.txt\n+++ b/notes.txt\n@@ -1 +1 @@\n-old\n+new\n",
	}}

	changes, failed := GenerateChanges(blocks, resolver, []string{".go"})
	assert.Empty(t, changes)
	assert.Empty(t, failed)
}

func TestGenerateChangesFailureIsIsolated(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "alpha\n")
	writeTestFile(t, dir, "b.txt", "beta\n")
	resolver := fs.NewPathResolver([]string{dir})

	blocks := []model.DiffBlock{{
		RawContent: `--- a/a.txt
+++ b/a.txt
@@ -1 +1 @@
-not in the file
+whatever
--- a/b.txt
+++ b/b.txt
@@ -1 +1 @@
-beta
+BETA
`,
	}}

	changes, failed := GenerateChanges(blocks, resolver, nil)
	require.Len(t, changes, 1)
	assert.Equal(t, []string{"a.txt"}, failed)
	assert.Equal(t, "BETA", changes[0].Content[0])
}

func TestGenerateChangesDelete(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "gone.go", "package gone\n")
	resolver := fs.NewPathResolver([]string{dir})

	blocks := []model.DiffBlock{{
		FilePath:   "gone.go",
		RawContent: "--- a/gone.go\n+++ /dev/null\n@@ -1 +0,0 @@\n-package gone\n",
	}}

	changes, failed := GenerateChanges(blocks, resolver, nil)
	require.Empty(t, failed)
	require.Len(t, changes, 1)
	assert.Equal(t, model.ActionDelete, changes[0].Action)
	assert.Equal(t, path, changes[0].Path)
}

func TestGenerateChangesPreservesCRLF(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "win.txt", "one\r\ntwo\r\n")
	resolver := fs.NewPathResolver([]string{dir})

	blocks := []model.DiffBlock{{
		FilePath:   "win.txt",
		RawContent: "--- a/win.txt\n+++ b/win.txt\n@@ -1,2 +1,2 @@\n one\n-two\n+TWO\n",
	}}

	changes, failed := GenerateChanges(blocks, resolver, nil)
	require.Empty(t, failed)
	require.Len(t, changes, 1)
	assert.Equal(t, model.EndingCRLF, changes[0].Ending)
	assert.Equal(t, "one\r\nTWO\r\n", JoinLines(changes[0].Content, changes[0].Ending))
}

func TestCorrectDiff(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", "one\ntwo\nthree\nfour\nfive\n")
	resolver := fs.NewPathResolver([]string{dir})

	// Header claims line 1; the change is really at line 4.
	block := model.DiffBlock{
		FilePath:   "f.txt",
		RawContent: "--- a/f.txt\n+++ b/f.txt\n@@ -1,2 +1,2 @@\n four\n-five\n+FIVE\n",
	}

	out, err := CorrectDiff(block, resolver)
	require.NoError(t, err)
	assert.Contains(t, out, "+++ b/f.txt")
	assert.Contains(t, out, "-five")
	assert.Contains(t, out, "+FIVE")
	assert.Contains(t, out, "@@ -2,4 +2,4 @@")
}
