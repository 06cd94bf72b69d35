package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"dpatch/cli"
	"dpatch/dpatch"
	"dpatch/internal/logging"
	"dpatch/internal/tui"
	"dpatch/internal/ui"
)

func main() {
	cfg, err := cli.ParseFlags()
	if err != nil {
		// pflag already prints the error message.
		os.Exit(1)
	}

	logging.Setup(logging.ParseFormat(cfg.LogFormat), logging.ParseLevel(cfg.LogLevel))

	app, err := dpatch.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Modes that print to stdout or were asked to skip the TUI.
	if cfg.OutputDiffFix || cfg.NoTUI || !logging.IsTTY(os.Stdout) {
		runPlain(app, cfg)
		return
	}

	model := tui.New(app)
	p := tea.NewProgram(model)
	model.SetProgram(p)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// runPlain executes without the TUI, with a progress bar on stderr when
// it is a terminal.
func runPlain(app *dpatch.App, cfg *cli.Config) {
	var bar *ui.ProgressBar
	if !cfg.OutputDiffFix && logging.IsTTY(os.Stderr) {
		app.SetProgressCallback(func(current, total int) {
			if bar == nil {
				bar = ui.NewProgressBar(total, "Applying")
				bar.Start()
			}
			bar.Set(current)
		})
	}

	summary, err := app.Execute()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		if e, ok := err.(*dpatch.DetailedError); ok {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", e.Stack)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !cfg.OutputDiffFix {
		ui.PrintSummary(summary)
	}
	if len(summary.Failed) > 0 {
		os.Exit(1)
	}
}
