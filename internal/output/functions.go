package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tanq16/surge/internal/utils"
)

func PrintProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	current = max(0, min(current, total))
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"] +
		strings.Repeat(StyleSymbols["hline"], filled) +
		strings.Repeat(" ", width-filled) +
		StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// ProgressLine renders a bar followed by "done / total" and the average speed.
func ProgressLine(done, total int64, elapsed time.Duration) string {
	sizes := fmt.Sprintf("%s / %s", humanize.Bytes(uint64(max(done, 0))), humanize.Bytes(uint64(max(total, 0))))
	return fmt.Sprintf("%s%s %s %s", PrintProgressBar(done, total, 30), debugStyle.Render(sizes),
		StyleSymbols["bullet"], debugStyle.Render(utils.FormatSpeed(done, elapsed)))
}
