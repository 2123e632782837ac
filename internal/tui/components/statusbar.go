package components

import (
	"strings"

	"github.com/pablasso/ingot/internal/tui/styles"
)

// StatusBar renders a bottom help bar showing contextual help items.
type StatusBar struct{}

// NewStatusBar creates a new StatusBar instance.
func NewStatusBar() StatusBar {
	return StatusBar{}
}

// Render joins items with " • " and pads to width. A non-empty notice is
// shown before the items.
func (s StatusBar) Render(width int, notice string, items []string) string {
	content := strings.Join(items, " • ")
	if notice != "" {
		if content != "" {
			content = notice + "  " + content
		} else {
			content = notice
		}
	}
	return styles.StatusBarStyle.Width(width).Render(content)
}
