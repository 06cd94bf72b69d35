package cli

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds all the command-line flag values.
type Config struct {
	Buffer        bool
	OutputDiffFix bool
	Undo          bool
	Redo          bool
	NoEditor      bool
	NoTUI         bool
	InputFile     string
	LookupDirs    []string
	Extensions    []string
	LogLevel      string
	LogFormat     string
}

// ParseFlags defines and parses command-line flags using pflag.
func ParseFlags() (*Config, error) {
	cfg := &Config{}

	pflag.BoolVarP(&cfg.Buffer, "buffer", "b", false, "Update editor buffers without saving them to disk (changes are saved by default).")
	pflag.BoolVarP(&cfg.OutputDiffFix, "output-diff-fix", "o", false, "Print the corrected diff (re-anchored hunk headers) instead of applying it.")
	pflag.StringVarP(&cfg.InputFile, "file", "f", "", "Read content from a file instead of stdin or the clipboard.")
	pflag.StringSliceVarP(&cfg.LookupDirs, "lookup-dir", "l", []string{}, "Directories to look for target files in (default: current directory).")
	pflag.StringSliceVarP(&cfg.Extensions, "extension", "e", []string{}, "Filter by extension. Use 'diff' to process only diff blocks (e.g., 'py', 'js', 'diff').")
	pflag.BoolVar(&cfg.NoEditor, "no-editor", false, "Write files directly to disk instead of through a Neovim instance.")
	pflag.BoolVar(&cfg.NoTUI, "no-tui", false, "Print plain results instead of the interactive summary view.")
	pflag.StringVar(&cfg.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error).")
	pflag.StringVar(&cfg.LogFormat, "log-format", "auto", "Log format (auto, text, json).")

	// Mutually exclusive history group
	pflag.BoolVarP(&cfg.Undo, "undo", "u", false, "Undo the last operation.")
	pflag.BoolVarP(&cfg.Redo, "redo", "r", false, "Redo the last undone operation.")

	pflag.Usage = func() {
		fmt.Println("Usage: dpatch [flags]")
		fmt.Println("\nApply unified diffs and file blocks from stdin (pipe), the clipboard, or a file.")
		fmt.Println("\nExample: pbpaste | dpatch -e go")
		fmt.Println("\nFlags:")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	// Validate mutually exclusive flags
	if cfg.Undo && cfg.Redo {
		return nil, fmt.Errorf("error: --undo and --redo are mutually exclusive")
	}

	// Normalize extensions
	for i, ext := range cfg.Extensions {
		if len(ext) > 0 && ext[0] != '.' {
			cfg.Extensions[i] = "." + ext
		}
	}

	return cfg, nil
}
