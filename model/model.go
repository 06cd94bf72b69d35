package model

// LineEnding identifies the dominant line ending of a source file.
type LineEnding int

const (
	EndingLF LineEnding = iota
	EndingCRLF
)

// Newline returns the ending as a literal string.
func (e LineEnding) Newline() string {
	if e == EndingCRLF {
		return "\r\n"
	}
	return "\n"
}

// Change sources, used to categorize results in the summary.
const (
	SourceDiff      = "diff"
	SourceCodeBlock = "codeblock"
	SourceLibrary   = "library"
)

// File actions, as recorded in the plan and the history file.
const (
	ActionCreate = "create"
	ActionModify = "modify"
	ActionDelete = "delete"
)

// FileChange represents a single planned change to a file. Content holds
// the full new file as lines without line endings; Ending is the ending
// to restore on write.
type FileChange struct {
	Path    string
	Content []string
	Source  string
	Action  string
	Ending  LineEnding
}

// DiffBlock represents a raw unified diff for a single file, extracted
// from the source content.
type DiffBlock struct {
	FilePath   string
	RawContent string
}

// Summary holds the results of an operation for display.
type Summary struct {
	Created  []string
	Modified []string
	Failed   []string
	Message  string
}

// Empty reports whether the summary carries no file results.
func (s Summary) Empty() bool {
	return len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Failed) == 0
}
