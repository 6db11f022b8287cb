package progress

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Stage runs a reporter in its own goroutine for the duration of one
// activity. The driving goroutine is the only sender.
type Stage struct {
	events chan Event
	g      errgroup.Group
	once   sync.Once
}

// Start launches r and returns the handle used to feed it.
func Start(r *Reporter) *Stage {
	s := &Stage{events: make(chan Event, 16)}
	s.g.Go(func() error {
		r.Run(s.events)
		return nil
	})
	return s
}

// Status replaces the displayed text.
func (s *Stage) Status(text string) {
	s.events <- Status(text)
}

// Finish ends the display with a success line and waits for the reporter.
func (s *Stage) Finish(text string) {
	s.stop(Done(text))
}

// Fail ends the display with a failure line and waits for the reporter.
func (s *Stage) Fail(text string) {
	s.stop(Failed(text))
}

// Close ends the display without a final line if neither Finish nor Fail
// was called, then waits for the reporter. It is safe to defer.
func (s *Stage) Close() {
	s.once.Do(func() { close(s.events) })
	_ = s.g.Wait()
}

func (s *Stage) stop(ev Event) {
	s.once.Do(func() {
		s.events <- ev
		close(s.events)
	})
	_ = s.g.Wait()
}
