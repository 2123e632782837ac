package checklist

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pablasso/ingot/internal/util"
)

// ErrParseAmbiguity marks checklist lines that could not be interpreted.
var ErrParseAmbiguity = errors.New("ambiguous checklist line")

// ParseWarning describes a line that was skipped while parsing.
type ParseWarning struct {
	Line   int
	Text   string
	Reason string
}

func (w ParseWarning) Error() string {
	return fmt.Sprintf("line %d: %s: %q", w.Line, w.Reason, w.Text)
}

func (w ParseWarning) Unwrap() error {
	return ErrParseAmbiguity
}

// SectionGroupPrefix prefixes group ids synthesized from section headings.
const SectionGroupPrefix = "section:"

var (
	headingPattern  = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.*?)\s*#*\s*$`)
	taskPattern     = regexp.MustCompile(`^(\s*)(?:[-*]\s*)?\[([ xX~!])\](\s.*|)$`)
	bracketPattern  = regexp.MustCompile(`^\s*[-*]\s*\[([^\]]?)\](\s|$)`)
	fencePattern    = regexp.MustCompile("^\\s{0,3}(```|~~~)")
	metadataPattern = regexp.MustCompile(`^\s*<!--\s*(.*?)\s*-->\s*$`)
)

// markers maps checkbox characters to statuses. Both x and X mean done.
var markers = map[byte]Status{
	' ': StatusPending,
	'x': StatusDone,
	'X': StatusDone,
	'~': StatusInProgress,
	'!': StatusFailed,
}

func markerFor(s Status) byte {
	switch s {
	case StatusDone:
		return 'x'
	case StatusInProgress:
		return '~'
	case StatusFailed:
		return '!'
	default:
		return ' '
	}
}

// Document is a parsed checklist. It keeps every original line so that
// serialization only ever touches checkbox markers.
type Document struct {
	lines           []string
	trailingNewline bool
	tasks           []*Task
	markerOffsets   map[int]int
}

// metadata is the category context set by a marker comment.
type metadata struct {
	category Category
	order    int
	group    string
}

// Parse reads checklist markup into a Document. Lines that look like tasks
// but cannot be interpreted are skipped and returned as warnings.
func Parse(text string) (*Document, []ParseWarning) {
	doc := &Document{
		trailingNewline: strings.HasSuffix(text, "\n"),
		markerOffsets:   make(map[int]int),
	}
	body := strings.TrimSuffix(text, "\n")
	if text == "" {
		doc.lines = nil
	} else {
		doc.lines = strings.Split(body, "\n")
	}

	var warnings []ParseWarning
	section := ""
	var meta *metadata
	fence := ""

	for i, line := range doc.lines {
		lineNum := i + 1

		if m := fencePattern.FindStringSubmatch(line); m != nil {
			switch {
			case fence == "":
				fence = m[1]
			case fence == m[1]:
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			section = strings.TrimSpace(m[1])
			meta = nil
			continue
		}

		if m := metadataPattern.FindStringSubmatch(line); m != nil {
			parsed, ok, reason := parseMetadata(m[1])
			if !ok {
				if reason != "" {
					warnings = append(warnings, ParseWarning{Line: lineNum, Text: line, Reason: reason})
					meta = nil
				}
				continue
			}
			meta = parsed
			continue
		}

		m := taskPattern.FindStringSubmatchIndex(line)
		if m == nil {
			if bm := bracketPattern.FindStringSubmatch(line); bm != nil {
				warnings = append(warnings, ParseWarning{
					Line:   lineNum,
					Text:   line,
					Reason: fmt.Sprintf("unknown checkbox marker [%s]", bm[1]),
				})
			}
			continue
		}

		name := strings.TrimSpace(line[m[6]:m[7]])
		if name == "" {
			warnings = append(warnings, ParseWarning{Line: lineNum, Text: line, Reason: "checkbox without task text"})
			continue
		}

		task := &Task{
			Name:       name,
			Status:     markers[line[m[4]]],
			LineNumber: lineNum,
			Section:    section,
			Indent:     len(line[m[2]:m[3]]),
		}
		applyMetadata(task, meta)
		doc.tasks = append(doc.tasks, task)
		doc.markerOffsets[lineNum] = m[4]
	}

	return doc, warnings
}

// parseMetadata interprets the body of an HTML comment. Comments without a
// category key are ordinary comments and return ok=false with no reason.
func parseMetadata(body string) (*metadata, bool, string) {
	fields := make(map[string]string)
	for _, part := range strings.Split(body, ",") {
		key, value, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	category, ok := fields["category"]
	if !ok {
		return nil, false, ""
	}

	switch strings.ToLower(category) {
	case "fundamental":
		order, err := strconv.Atoi(fields["order"])
		if err != nil {
			return nil, false, "fundamental marker without integer order"
		}
		return &metadata{category: CategoryFundamental, order: order}, true, ""
	case "independent":
		return &metadata{category: CategoryIndependent, group: fields["group"]}, true, ""
	default:
		return nil, false, fmt.Sprintf("unknown category %q", category)
	}
}

func applyMetadata(task *Task, meta *metadata) {
	if meta != nil && meta.category == CategoryFundamental {
		task.Category = CategoryFundamental
		task.DependencyOrder = meta.order
		return
	}

	task.Category = CategoryIndependent
	if meta != nil && meta.group != "" {
		task.GroupID = explicitGroupID(meta.group)
		return
	}
	task.GroupID = SectionGroupID(task.Section)
}

// SectionGroupID returns the synthesized lane id for tasks without metadata.
func SectionGroupID(section string) string {
	slug := util.KebabCase(section)
	if slug == "" {
		slug = "root"
	}
	return SectionGroupPrefix + slug
}

// explicitGroupID keeps author-provided ids out of the synthesized namespace.
func explicitGroupID(group string) string {
	if strings.HasPrefix(group, SectionGroupPrefix) {
		return "group:" + group
	}
	return group
}

// Tasks returns copies of all tasks in file order.
func (d *Document) Tasks() []Task {
	out := make([]Task, len(d.tasks))
	for i, t := range d.tasks {
		out[i] = *t
	}
	return out
}

// Task returns a copy of the task on the given line.
func (d *Document) Task(lineNumber int) (Task, bool) {
	t := d.find(lineNumber)
	if t == nil {
		return Task{}, false
	}
	return *t, true
}

func (d *Document) find(lineNumber int) *Task {
	for _, t := range d.tasks {
		if t.LineNumber == lineNumber {
			return t
		}
	}
	return nil
}

// setStatus validates and applies a status change in memory.
func (d *Document) setStatus(lineNumber int, status Status) (Status, error) {
	t := d.find(lineNumber)
	if t == nil {
		return "", fmt.Errorf("no task on line %d", lineNumber)
	}
	if !CanTransition(t.Status, status) {
		return t.Status, fmt.Errorf("line %d %s -> %s: %w", lineNumber, t.Status, status, ErrInvalidTransition)
	}
	prev := t.Status
	t.Status = status
	return prev, nil
}

// reset moves a failed task back to pending.
func (d *Document) reset(lineNumber int) error {
	t := d.find(lineNumber)
	if t == nil {
		return fmt.Errorf("no task on line %d", lineNumber)
	}
	if t.Status != StatusFailed {
		return fmt.Errorf("line %d is %s, only FAILED tasks can be reset: %w", lineNumber, t.Status, ErrInvalidTransition)
	}
	t.Status = StatusPending
	return nil
}

// Serialize writes the document back, changing only checkbox markers.
func (d *Document) Serialize() string {
	lines := make([]string, len(d.lines))
	copy(lines, d.lines)

	for _, t := range d.tasks {
		idx := t.LineNumber - 1
		offset := d.markerOffsets[t.LineNumber]
		line := []byte(lines[idx])
		line[offset] = markerFor(t.Status)
		lines[idx] = string(line)
	}

	out := strings.Join(lines, "\n")
	if d.trailingNewline {
		out += "\n"
	}
	return out
}
