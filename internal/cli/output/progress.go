package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const barWidth = 40

// ProgressBar draws progress over a byte count, such as the heap bytes
// walked by an index build. It redraws one line in place.
type ProgressBar struct {
	w     io.Writer
	title string

	mu      sync.Mutex
	detail  string
	current int64
	total   int64
}

// NewProgressBar returns a bar titled title writing to w. Nothing is
// drawn until the first Update.
func NewProgressBar(w io.Writer, title string) *ProgressBar {
	return &ProgressBar{w: w, title: title}
}

// Update redraws the bar at current of total bytes. A total of zero or
// less draws the byte count alone.
func (p *ProgressBar) Update(current, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current, p.total = current, total
	p.render()
}

// SetDetail sets the text drawn after the byte counts, e.g. an object
// count. It shows from the next redraw.
func (p *ProgressBar) SetDetail(detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detail = detail
}

// Finish draws the bar full and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		p.current = p.total
	}
	p.render()
	fmt.Fprintln(p.w)
}

// Abort ends the line, leaving the bar where it stopped.
func (p *ProgressBar) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	var b strings.Builder
	b.WriteString("\r")
	b.WriteString(p.title)
	if p.total > 0 {
		frac := min(float64(p.current)/float64(p.total), 1)
		filled := int(barWidth * frac)
		fmt.Fprintf(&b, " [%s%s] %3.0f%% (%s/%s)",
			strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled),
			frac*100, formatBytes(p.current), formatBytes(p.total))
	} else {
		fmt.Fprintf(&b, " %s", formatBytes(p.current))
	}
	if p.detail != "" {
		b.WriteString(" ")
		b.WriteString(p.detail)
	}
	// Clear what a longer previous line left behind.
	b.WriteString("\033[K")
	io.WriteString(p.w, b.String())
}

// formatBytes renders b with a binary unit, e.g. "1.5 MiB".
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
