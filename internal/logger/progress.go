package logger

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress describes progress indicators that can be started and stopped.
type Progress interface {
	Start(operation string)
	Stop(operation string)
}

// SpinnerProgress renders a spinner-style progress indicator.
// Start and Stop may be called repeatedly; a Start while running replaces the message.
type SpinnerProgress struct {
	mu      sync.Mutex
	output  io.Writer
	frames  []string
	index   int
	message string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSpinnerProgress creates a progress spinner writing to the provided output.
func NewSpinnerProgress(output io.Writer) *SpinnerProgress {
	if output == nil {
		output = io.Discard
	}

	return &SpinnerProgress{
		output: output,
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

// Start begins rendering the progress spinner with the specified message.
func (p *SpinnerProgress) Start(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.message = message
	if p.stopCh != nil {
		return
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	p.stopCh = stopCh
	p.doneCh = doneCh

	go func() {
		defer close(doneCh)

		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				p.mu.Lock()
				frame := p.frames[p.index%len(p.frames)]
				p.index++
				fmt.Fprintf(p.output, "\r%s %s", frame, p.message)
				p.mu.Unlock()
			}
		}
	}()
}

// Stop terminates the spinner and prints the final message.
func (p *SpinnerProgress) Stop(message string) {
	p.mu.Lock()
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh, p.doneCh = nil, nil
	p.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.output, "\r✓ %s\n", message)
}

// NoopProgress satisfies Progress without rendering anything.
type NoopProgress struct{}

func (NoopProgress) Start(string) {}
func (NoopProgress) Stop(string)  {}
