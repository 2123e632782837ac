package components

import (
	"fmt"
	"strings"

	"github.com/pablasso/ingot/internal/tui/styles"
)

const (
	filledChar = "■"
	failedChar = "■"
	emptyChar  = "□"
)

// Progress renders a progress bar like: ■■■■□□□□ 4/8. Failed tasks are drawn
// after the done ones in the error color.
type Progress struct {
	Done   int
	Failed int
	Total  int
	Width  int // character width of the bar portion
}

// NewProgress creates a new Progress instance.
func NewProgress(done, failed, total, width int) Progress {
	return Progress{
		Done:   done,
		Failed: failed,
		Total:  total,
		Width:  width,
	}
}

// View returns the rendered progress bar string.
func (p Progress) View() string {
	if p.Total <= 0 || p.Width <= 0 {
		return ""
	}

	done := clamp(p.Done, 0, p.Total)
	failed := clamp(p.Failed, 0, p.Total-done)

	doneCells := (done * p.Width) / p.Total
	failedCells := ((done + failed) * p.Width / p.Total) - doneCells
	emptyCells := p.Width - doneCells - failedCells

	bar := strings.Repeat(filledChar, doneCells) +
		styles.ErrorStyle.Render(strings.Repeat(failedChar, failedCells)) +
		strings.Repeat(emptyChar, emptyCells)

	return fmt.Sprintf("%s %d/%d", bar, done, p.Total)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
