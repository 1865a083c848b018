package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a message while a step of unknown length runs, such
// as opening a dump.
type Spinner struct {
	w        io.Writer
	message  string
	interval time.Duration

	once    sync.Once
	started bool
	done    chan struct{}
	exited  chan struct{}
}

// NewSpinner returns a stopped spinner.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:        w,
		message:  message,
		interval: 100 * time.Millisecond,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start animates until Stop, Success or Fail. Call it at most once.
func (s *Spinner) Start() {
	s.started = true
	go func() {
		defer close(s.exited)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.w, "\r%s %s", spinnerFrames[i%len(spinnerFrames)], s.message)
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// halt stops the animation and waits for its last frame.
func (s *Spinner) halt() {
	s.once.Do(func() {
		close(s.done)
		if s.started {
			<-s.exited
		}
	})
}

// Stop clears the line.
func (s *Spinner) Stop() {
	s.halt()
	fmt.Fprint(s.w, "\r\033[K")
}

// Success replaces the animation with a check mark and message.
func (s *Spinner) Success(message string) {
	s.halt()
	fmt.Fprintf(s.w, "\r✓ %s\033[K\n", message)
}

// Fail replaces the animation with a cross and message.
func (s *Spinner) Fail(message string) {
	s.halt()
	fmt.Fprintf(s.w, "\r✗ %s\033[K\n", message)
}
