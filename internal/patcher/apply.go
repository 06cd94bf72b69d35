package patcher

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	godiff "github.com/sourcegraph/go-diff/diff"

	"dpatch/model"
)

// Normalize converts CRLF and lone-CR line endings to LF.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// DetectEnding reports the dominant line ending of a file's content.
func DetectEnding(content string) model.LineEnding {
	crlf := strings.Count(content, "\r\n")
	lf := strings.Count(content, "\n") - crlf
	if crlf > lf {
		return model.EndingCRLF
	}
	return model.EndingLF
}

// SplitLines splits normalized content into lines without endings. Nil
// for empty content, so a missing file and an empty file look alike.
func SplitLines(content string) []string {
	norm := Normalize(content)
	norm = strings.TrimSuffix(norm, "\n")
	if norm == "" {
		return nil
	}
	return strings.Split(norm, "\n")
}

// JoinLines renders lines back to file content in the given ending,
// with a single trailing newline. Empty content stays empty.
func JoinLines(lines []string, ending model.LineEnding) string {
	if len(lines) == 0 {
		return ""
	}
	nl := ending.Newline()
	return strings.Join(lines, nl) + nl
}

// ApplyFileDiff applies all hunks of a parsed file diff to the source
// lines and returns the patched lines.
func ApplyFileDiff(source []string, fd *godiff.FileDiff) ([]string, error) {
	anchored, err := anchorHunks(source, fd.Hunks)
	if err != nil {
		return nil, err
	}

	patched := source
	for _, h := range anchored {
		patched, err = applyHunk(patched, h)
		if err != nil {
			return nil, err
		}
	}
	return patched, nil
}

// applyHunk splices one anchored hunk into the line slice. Matching is
// whitespace-normalized, mirroring the anchor search; blank-line drift
// between the hunk and the source is tolerated in both directions.
func applyHunk(source []string, h anchoredHunk) ([]string, error) {
	out := make([]string, 0, len(source)+len(h.lines))
	out = append(out, source[:h.start-1]...)
	idx := h.start - 1

	for _, line := range h.lines {
		if line == "" {
			// Treat a bare empty line as empty context.
			line = " "
		}
		prefix, content := line[0], line[1:]

		switch prefix {
		case '+':
			out = append(out, content)

		case ' ', '-':
			want := normalizeLine(content)

			// Keep blank source lines the hunk does not mention.
			for want != "" && idx < len(source) && normalizeLine(source[idx]) == "" {
				out = append(out, source[idx])
				idx++
			}

			if want == "" {
				// Blank hunk line: consume a blank source line if one
				// is there, otherwise the hunk drifted and we move on.
				if idx < len(source) && normalizeLine(source[idx]) == "" {
					if prefix == ' ' {
						out = append(out, source[idx])
					}
					idx++
				} else if prefix == ' ' {
					out = append(out, content)
				}
				continue
			}

			if idx >= len(source) || normalizeLine(source[idx]) != want {
				return nil, fmt.Errorf("context mismatch at line %d", idx+1)
			}
			if prefix == ' ' {
				out = append(out, source[idx])
			}
			idx++

		default:
			// "\ No newline at end of file" and friends.
			continue
		}
	}

	out = append(out, source[idx:]...)
	return out, nil
}

// FixedDiff renders a clean unified diff between the original and
// patched lines, with correct hunk headers.
func FixedDiff(source, patched []string, path string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        diffLines(source),
		B:        diffLines(patched),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

// diffLines converts ending-less lines to the trailing-newline form
// difflib expects.
func diffLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
