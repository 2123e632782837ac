package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/pablasso/ingot/internal/tui/styles"
)

const defaultMaxLines = 1000

type outputEntry struct {
	lane string
	text string
}

// OutputViewport wraps bubbles/viewport with auto-scroll and a lane filter.
// Lines from every lane are kept in a ring buffer; the filter only changes
// what is rendered.
type OutputViewport struct {
	viewport   viewport.Model
	autoScroll bool // true = scroll to bottom on new content
	entries    []outputEntry
	lines      []string // wrapped, visible lines
	maxLines   int
	width      int
	height     int
	filter     string
}

// NewOutputViewport creates a new OutputViewport with the given dimensions.
// maxLines controls the ring buffer size (0 uses default of 1000).
func NewOutputViewport(width, height, maxLines int) OutputViewport {
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}

	vp := viewport.New(contentWidth(width), height)
	vp.SetContent("")

	return OutputViewport{
		viewport:   vp,
		autoScroll: true,
		entries:    make([]outputEntry, 0, 64),
		maxLines:   maxLines,
		width:      width,
		height:     height,
	}
}

// contentWidth reserves one column for the scrollbar.
func contentWidth(width int) int {
	if width <= 1 {
		return 0
	}
	return width - 1
}

// AddLine appends one line of output from lane.
func (o *OutputViewport) AddLine(lane, text string) {
	if len(o.entries) >= o.maxLines {
		o.entries = o.entries[1:]
	}
	o.entries = append(o.entries, outputEntry{lane: lane, text: text})
	o.rewrap()
}

// SetFilter restricts the view to one lane. An empty lane shows all.
func (o *OutputViewport) SetFilter(lane string) {
	if o.filter == lane {
		return
	}
	o.filter = lane
	o.rewrap()
}

// Filter returns the lane currently shown, or "" for all lanes.
func (o OutputViewport) Filter() string {
	return o.filter
}

// Update handles viewport key events. Scrolling up pauses auto-scroll.
func (o *OutputViewport) Update(msg tea.Msg) (OutputViewport, tea.Cmd) {
	var cmd tea.Cmd
	o.viewport, cmd = o.viewport.Update(msg)

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "up", "k", "pgup", "ctrl+u", "home", "g":
			o.autoScroll = false
		case "down", "j", "pgdown", "ctrl+d":
			if o.viewport.AtBottom() {
				o.autoScroll = true
			}
		case "end", "G":
			o.autoScroll = true
			o.viewport.GotoBottom()
		}
	}

	return *o, cmd
}

// View returns the rendered viewport with a scrollbar column.
func (o OutputViewport) View() string {
	content := o.viewport.View()
	if o.width <= 1 {
		return content
	}

	scrollbar := strings.Split(RenderScrollbar(o.height, len(o.lines), o.viewport.YOffset), "\n")
	contentLines := strings.Split(content, "\n")
	cw := contentWidth(o.width)

	var b strings.Builder
	for i := 0; i < o.height; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		cl := ""
		if i < len(contentLines) {
			cl = contentLines[i]
		}
		b.WriteString(cl)
		if pad := cw - lipgloss.Width(cl); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		if i < len(scrollbar) {
			b.WriteString(scrollbar[i])
		}
	}
	return b.String()
}

// SetSize updates the viewport dimensions.
func (o *OutputViewport) SetSize(width, height int) {
	if o.width == width && o.height == height {
		return
	}
	o.width = width
	o.height = height
	o.viewport.Width = contentWidth(width)
	o.viewport.Height = height
	o.rewrap()
}

// AutoScroll returns whether auto-scroll is currently enabled.
func (o OutputViewport) AutoScroll() bool {
	return o.autoScroll
}

// LineCount returns the number of visible (wrapped) lines.
func (o OutputViewport) LineCount() int {
	return len(o.lines)
}

func (o *OutputViewport) rewrap() {
	cw := contentWidth(o.width)
	o.lines = o.lines[:0]
	for _, e := range o.entries {
		if o.filter != "" && e.lane != o.filter {
			continue
		}
		line := styles.LaneStyle(e.lane).Render("["+e.lane+"]") + " " + e.text
		if cw > 0 {
			line = ansi.Wrap(line, cw, "/")
		}
		o.lines = append(o.lines, strings.Split(line, "\n")...)
	}
	o.viewport.SetContent(strings.Join(o.lines, "\n"))

	if o.autoScroll {
		o.viewport.GotoBottom()
	} else {
		o.viewport.SetYOffset(o.viewport.YOffset)
	}
}

// RenderScrollbar renders a 1-column vertical scrollbar. It is a blank gutter
// until content exceeds the viewport height.
func RenderScrollbar(viewHeight, contentHeight, yOffset int) string {
	if viewHeight <= 0 {
		return ""
	}

	const (
		track = "│"
		thumb = "█"
	)

	if contentHeight <= viewHeight {
		return strings.Repeat(" \n", viewHeight-1) + " "
	}

	thumbSize := max(1, viewHeight*viewHeight/contentHeight)
	maxYOffset := contentHeight - viewHeight
	thumbMaxTop := viewHeight - thumbSize
	thumbTop := min(max(0, yOffset*thumbMaxTop/maxYOffset), thumbMaxTop)

	var b strings.Builder
	for i := 0; i < viewHeight; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		if i >= thumbTop && i < thumbTop+thumbSize {
			b.WriteString(thumb)
		} else {
			b.WriteString(styles.SubtleStyle.Render(track))
		}
	}
	return b.String()
}
