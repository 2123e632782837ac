package git

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultMaxLines = 2000
	DefaultMaxFiles = 20
)

var (
	insertionsPattern = regexp.MustCompile(`(\d+)\s+insertions?\(\+\)`)
	deletionsPattern  = regexp.MustCompile(`(\d+)\s+deletions?\(-\)`)
	filesPattern      = regexp.MustCompile(`(\d+)\s+files?\s+changed`)
)

// ChangeSummary is the textual description of the workspace changes a run
// produced.
type ChangeSummary struct {
	Text string
	// Truncated is set when Text holds only the stat report.
	Truncated bool
	// ToolError is set when a git command failed.
	ToolError bool

	FilesChanged int
	LinesChanged int
}

// Empty reports whether there were no changes and no error.
func (s ChangeSummary) Empty() bool {
	return s.Text == "" && !s.ToolError
}

// ParseStat extracts the changed-file and changed-line counts from the
// trailing line of `git diff --stat`. Missing counts are zero.
func ParseStat(stat string) (files, lines int) {
	if m := filesPattern.FindStringSubmatch(stat); m != nil {
		files, _ = strconv.Atoi(m[1])
	}
	if m := insertionsPattern.FindStringSubmatch(stat); m != nil {
		n, _ := strconv.Atoi(m[1])
		lines += n
	}
	if m := deletionsPattern.FindStringSubmatch(stat); m != nil {
		n, _ := strconv.Atoi(m[1])
		lines += n
	}
	return files, lines
}

// Summarizer produces a ChangeSummary for a working tree, falling back to the
// stat report when the full diff would be too large.
type Summarizer struct {
	Dir      string
	MaxLines int
	MaxFiles int
}

// NewSummarizer returns a summarizer with the default limits.
func NewSummarizer(dir string) *Summarizer {
	return &Summarizer{Dir: dir, MaxLines: DefaultMaxLines, MaxFiles: DefaultMaxFiles}
}

// Summarize never returns an error; tool failures are reported through
// ChangeSummary.ToolError.
func (s *Summarizer) Summarize(ctx context.Context) ChangeSummary {
	statOut, err := command(ctx, s.Dir, "diff", "--stat").Output()
	if err != nil {
		return ChangeSummary{ToolError: true}
	}

	stat := strings.TrimSpace(string(statOut))
	if stat == "" {
		return ChangeSummary{}
	}

	files, lines := ParseStat(stat)
	summary := ChangeSummary{FilesChanged: files, LinesChanged: lines}

	if lines > s.maxLines() || files > s.maxFiles() {
		summary.Text = largeChangesetText(stat, files, lines)
		summary.Truncated = true
		return summary
	}

	diffOut, err := command(ctx, s.Dir, "diff").Output()
	if err != nil {
		summary.Text = stat
		summary.Truncated = true
		summary.ToolError = true
		return summary
	}

	summary.Text = string(diffOut)
	return summary
}

func (s *Summarizer) maxLines() int {
	if s.MaxLines <= 0 {
		return DefaultMaxLines
	}
	return s.MaxLines
}

func (s *Summarizer) maxFiles() int {
	if s.MaxFiles <= 0 {
		return DefaultMaxFiles
	}
	return s.MaxFiles
}

func largeChangesetText(stat string, files, lines int) string {
	var b strings.Builder
	b.WriteString("## Git Diff Summary (Large Changeset)\n\n")
	b.WriteString(stat)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "**Note**: This changeset is large (%d files, %d lines changed).\n", files, lines)
	b.WriteString("To review specific files in detail, use: `git diff -- <file_path>`\n")
	b.WriteString("Focus on files most critical to the implementation plan.")
	return b.String()
}
