package dpatch

import (
	"fmt"

	"dpatch/cli"
)

// Config for using dpatch as a library.
type Config struct {
	// Update editor buffers without saving them to disk.
	Buffer bool
	// Write directly to disk instead of through an editor.
	NoEditor bool
	// Directories to look for target files in.
	LookupDirs []string
	// Filter by extension. Use 'diff' to process only diff blocks.
	Extensions []string
}

// Apply parses the given content string and applies the changes to
// files. It returns a summary of the operations in a map.
func Apply(content string, config Config) (map[string][]string, error) {
	cliCfg := &cli.Config{
		Buffer:     config.Buffer,
		NoEditor:   config.NoEditor,
		LookupDirs: config.LookupDirs,
		Extensions: config.Extensions,
	}

	app, err := New(cliCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dpatch app: %w", err)
	}

	changes, err := app.Parse(content)
	if err != nil {
		return nil, err
	}
	summary, err := app.Apply(changes)
	if err != nil {
		return nil, err
	}

	return map[string][]string{
		"Created":  summary.Created,
		"Modified": summary.Modified,
		"Failed":   summary.Failed,
	}, nil
}
