package patcher

import (
	"fmt"
	"sort"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// anchoredHunk is a hunk whose start line has been located in the
// actual source, regardless of what its header claimed.
type anchoredHunk struct {
	// start is the 1-based line in the source where the hunk applies.
	// len(source)+1 means append at end.
	start int
	lines []string
}

// hunkLines splits a parsed hunk body into its prefixed lines.
func hunkLines(h *godiff.Hunk) []string {
	body := strings.TrimSuffix(string(h.Body), "\n")
	if body == "" {
		return nil
	}
	return strings.Split(body, "\n")
}

// targetBlock builds the search pattern for a hunk: the lines that are
// guaranteed to exist in the original source (context and removals).
// Empty lines are skipped so the match survives whitespace-only drift.
func targetBlock(lines []string) []string {
	var block []string
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		if line[0] != ' ' && line[0] != '-' {
			continue
		}
		content := line[1:]
		if strings.TrimSpace(content) != "" {
			block = append(block, content)
		}
	}
	return block
}

// normalizeLine prepares a line for comparison by collapsing all
// internal whitespace runs to a single space.
func normalizeLine(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// matchBlock finds the 1-based starting line of block within source.
// Empty source lines are filtered out before matching, with a map back
// to the original line numbers, so the returned position is real.
func matchBlock(source, block []string) int {
	if len(block) == 0 {
		return -1
	}

	normalizedBlock := make([]string, len(block))
	for i, line := range block {
		normalizedBlock[i] = normalizeLine(line)
	}

	var filteredSource []string
	var originalLineNumbers []int
	for i, line := range source {
		normalized := normalizeLine(line)
		if normalized != "" {
			filteredSource = append(filteredSource, normalized)
			originalLineNumbers = append(originalLineNumbers, i+1)
		}
	}

	for i := 0; i <= len(filteredSource)-len(normalizedBlock); i++ {
		match := true
		for j := range normalizedBlock {
			if filteredSource[i+j] != normalizedBlock[j] {
				match = false
				break
			}
		}
		if match {
			return originalLineNumbers[i]
		}
	}
	return -1
}

// anchorHunks locates every hunk of a file diff in the source. Hunks
// with no context or removals (pure additions, typically new files)
// fall back to the header's start line.
func anchorHunks(source []string, hunks []*godiff.Hunk) ([]anchoredHunk, error) {
	anchored := make([]anchoredHunk, 0, len(hunks))
	for i, h := range hunks {
		lines := hunkLines(h)
		block := targetBlock(lines)

		var start int
		if len(block) == 0 {
			start = int(h.OrigStartLine)
			if start < 1 {
				start = 1
			}
			if start > len(source)+1 {
				start = len(source) + 1
			}
		} else {
			start = matchBlock(source, block)
			if start == -1 {
				return nil, fmt.Errorf("could not find matching block for hunk %d", i+1)
			}
		}
		anchored = append(anchored, anchoredHunk{start: start, lines: lines})
	}

	// Apply bottom-up so earlier hunks cannot shift later anchors.
	sort.Slice(anchored, func(i, j int) bool {
		return anchored[i].start > anchored[j].start
	})
	return anchored, nil
}
