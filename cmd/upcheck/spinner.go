package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const defaultSpinnerInterval = 120 * time.Millisecond

// checkSpinner draws a single-line progress indicator while a check runs.
// Nothing is drawn until delay has passed, so fast checks leave no trace.
type checkSpinner struct {
	writer        io.Writer
	delay         time.Duration
	frameInterval time.Duration
	frames        []rune

	messages chan string
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once

	mu       sync.Mutex
	frameIdx int
}

func newCheckSpinner(w io.Writer, delay time.Duration) *checkSpinner {
	return newCustomCheckSpinner(w, delay, defaultSpinnerInterval)
}

func newCustomCheckSpinner(w io.Writer, delay, frameInterval time.Duration) *checkSpinner {
	if w == nil {
		w = io.Discard
	}
	sp := &checkSpinner{
		writer:        w,
		delay:         delay,
		frameInterval: frameInterval,
		frames:        []rune{'|', '/', '-', '\\'},
		messages:      make(chan string, 8),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go sp.loop()
	return sp
}

// Status replaces the message next to the spinner.
func (s *checkSpinner) Status(message string) {
	if s == nil {
		return
	}
	select {
	case <-s.stopCh:
		return
	default:
	}
	select {
	case s.messages <- message:
	default:
	}
}

// Stop clears the line and waits for the draw loop to exit.
func (s *checkSpinner) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *checkSpinner) loop() {
	defer close(s.doneCh)

	var delayCh <-chan time.Time
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		delayCh = timer.C
	}

	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()

	var current string
	hasMessage := false
	visible := s.delay == 0

	for {
		select {
		case <-s.stopCh:
			if visible {
				s.clearLine()
			}
			return
		case msg := <-s.messages:
			current = msg
			hasMessage = true
			if visible {
				s.render(current)
			}
		case <-ticker.C:
			if visible && hasMessage {
				s.render(current)
			}
		case <-delayCh:
			delayCh = nil
			visible = true
			if hasMessage {
				s.render(current)
			}
		}
	}
}

func (s *checkSpinner) render(message string) {
	frame := s.nextFrame()
	_, _ = fmt.Fprintf(s.writer, "\r\033[2K%c %s", frame, message)
}

func (s *checkSpinner) clearLine() {
	_, _ = fmt.Fprint(s.writer, "\r\033[2K")
}

func (s *checkSpinner) nextFrame() rune {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := s.frames[s.frameIdx%len(s.frames)]
	s.frameIdx++
	return frame
}

func checkingMessage(channel string, detail string) string {
	msg := fmt.Sprintf("Checking %s for updates...", channel)
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return msg
	}
	return fmt.Sprintf("%s - %s", msg, detail)
}
