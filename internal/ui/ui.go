// Package ui is the plain-console output path, used when the TUI is
// disabled or stdout is not a terminal.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"dpatch/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(os.Stderr, format+"\n", a...)
}

// PrintSummary renders an operation summary to the console.
func PrintSummary(s model.Summary) {
	if s.Message != "" {
		Header("%s", s.Message)
	}
	if s.Empty() {
		if s.Message == "" {
			Info("Nothing to do.")
		}
		return
	}

	printGroup := func(c *color.Color, label string, files []string) {
		if len(files) == 0 {
			return
		}
		c.Fprintf(os.Stderr, "%s %d file(s):\n", label, len(files))
		for _, f := range files {
			fmt.Printf("  - %s\n", f)
		}
	}
	printGroup(SuccessColor, "Created", s.Created)
	printGroup(SuccessColor, "Modified", s.Modified)
	printGroup(ErrorColor, "Failed to process", s.Failed)
}

// --- Progress Bar ---

// ProgressBar draws a one-line progress bar on stderr.
type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to an absolute position.
func (p *ProgressBar) Set(current int) {
	p.current = current
	p.draw()
}

func (p *ProgressBar) Finish() {
	fmt.Fprintln(os.Stderr)
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)
	fmt.Fprintf(os.Stderr, "\r%s |%s| %s %.1f%%", p.prefix, bar, countStr, percent*100)
}
