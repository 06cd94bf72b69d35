package dpatch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpatch/cli"
	"dpatch/dpatch"
)

// chdirTemp runs the test from a fresh temp directory so state files
// and relative paths stay contained.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(oldWd) })
	return dir
}

func TestParse(t *testing.T) {
	dir := chdirTemp(t)

	dummyPath := filepath.Join(dir, "dummy.go")
	require.NoError(t, os.WriteFile(dummyPath, []byte("package main\n\nfunc main() {}\n"), 0644))

	app, err := dpatch.New(&cli.Config{Extensions: []string{".go"}})
	require.NoError(t, err)

	content := "`dummy.go`\n\n```go\npackage main\n\nfunc main() {\n\t// new content\n}\n```"
	changes, err := app.Parse(content)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Contains(t, changes, dummyPath)
	assert.Contains(t, changes[dummyPath], "// new content")
}

func TestExecuteAppliesDiffAndUndoes(t *testing.T) {
	dir := chdirTemp(t)

	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("one\ntwo\nthree\n"), 0644))

	docPath := filepath.Join(dir, "input.md")
	doc := "```diff\n--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n one\n-two\n+TWO\n three\n```\n"
	require.NoError(t, os.WriteFile(docPath, []byte(doc), 0644))

	app, err := dpatch.New(&cli.Config{NoEditor: true, InputFile: docPath})
	require.NoError(t, err)

	summary, err := app.Execute()
	require.NoError(t, err)
	assert.Equal(t, []string{"f.txt"}, summary.Modified)
	assert.Empty(t, summary.Failed)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "one\nTWO\nthree\n", string(data))

	// A fresh app sees the recorded history and can undo it.
	undoApp, err := dpatch.New(&cli.Config{NoEditor: true, Undo: true})
	require.NoError(t, err)

	summary, err = undoApp.Execute()
	require.NoError(t, err)
	assert.Equal(t, []string{"f.txt"}, summary.Modified)

	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(data))
}

func TestExecuteCreatesNewFileFromDiff(t *testing.T) {
	dir := chdirTemp(t)

	docPath := filepath.Join(dir, "input.md")
	doc := "```diff\n--- /dev/null\n+++ b/greeting.txt\n@@ -0,0 +1,2 @@\n+hello\n+world\n```\n"
	require.NoError(t, os.WriteFile(docPath, []byte(doc), 0644))

	app, err := dpatch.New(&cli.Config{NoEditor: true, InputFile: docPath})
	require.NoError(t, err)

	summary, err := app.Execute()
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting.txt"}, summary.Created)

	data, err := os.ReadFile(filepath.Join(dir, "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(data))
}

func TestExecuteEmptySource(t *testing.T) {
	dir := chdirTemp(t)

	docPath := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(docPath, []byte("  \n"), 0644))

	app, err := dpatch.New(&cli.Config{NoEditor: true, InputFile: docPath})
	require.NoError(t, err)

	summary, err := app.Execute()
	require.NoError(t, err)
	assert.True(t, summary.Empty())
	assert.Contains(t, summary.Message, "empty")
}

func TestProgressCallback(t *testing.T) {
	dir := chdirTemp(t)

	docPath := filepath.Join(dir, "input.md")
	doc := "`a.txt`\n\n```\nalpha\n```\n\n`b.txt`\n\n```\nbeta\n```\n"
	require.NoError(t, os.WriteFile(docPath, []byte(doc), 0644))

	app, err := dpatch.New(&cli.Config{NoEditor: true, InputFile: docPath})
	require.NoError(t, err)

	var calls [][2]int
	app.SetProgressCallback(func(current, total int) {
		calls = append(calls, [2]int{current, total})
	})

	summary, err := app.Execute()
	require.NoError(t, err)
	assert.Len(t, summary.Created, 2)

	require.NotEmpty(t, calls)
	assert.Equal(t, [2]int{0, 2}, calls[0])
	assert.Equal(t, [2]int{2, 2}, calls[len(calls)-1])
}
