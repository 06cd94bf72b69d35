// Package source decides where the input blob comes from: an explicit
// file, a pipe on stdin, or the system clipboard.
package source

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"
)

// Provider determines and retrieves the source content.
type Provider struct {
	inputFile string
}

// New creates a Provider. inputFile may be empty.
func New(inputFile string) *Provider {
	return &Provider{inputFile: inputFile}
}

// GetContent retrieves content from the input file if one was given,
// from stdin if it is piped, or from the clipboard otherwise. Empty
// content is not an error; callers decide what to do with it.
func (p *Provider) GetContent() (string, error) {
	if p.inputFile != "" {
		slog.Debug("reading input", "source", "file", "path", p.inputFile)
		content, err := os.ReadFile(p.inputFile)
		if err != nil {
			return "", fmt.Errorf("failed to read input file: %w", err)
		}
		return string(content), nil
	}

	if isPiped(os.Stdin) {
		slog.Debug("reading input", "source", "stdin")
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}

	slog.Debug("reading input", "source", "clipboard")
	content, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	return content, nil
}

func isPiped(f *os.File) bool {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
