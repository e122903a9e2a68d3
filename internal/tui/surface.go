package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joescharf/campus/internal/view"
)

// refreshMsg asks the model to re-read the session's view model.
type refreshMsg struct{}

// resetMsg clears a form.
type resetMsg struct{ form string }

// Surface forwards binder updates to a running program. The binder calls it
// on the session loop, which must never wait on the program, so updates are
// coalesced and a separate goroutine does the sending.
type Surface struct {
	mu     sync.Mutex
	resets []string
	dirty  chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewSurface() *Surface {
	return &Surface{dirty: make(chan struct{}, 1), done: make(chan struct{})}
}

func (s *Surface) mark() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Surface) Replace(view.Region, string) { s.mark() }
func (s *Surface) SetBusy(bool, string)        { s.mark() }
func (s *Surface) SetTheme(string)             { s.mark() }

func (s *Surface) ResetForm(form string) {
	s.mu.Lock()
	s.resets = append(s.resets, form)
	s.mu.Unlock()
	s.mark()
}

// Forward sends updates to send until Stop. It blocks; run it in a goroutine.
func (s *Surface) Forward(send func(tea.Msg)) {
	for {
		select {
		case <-s.done:
			return
		case <-s.dirty:
		}
		s.mu.Lock()
		resets := s.resets
		s.resets = nil
		s.mu.Unlock()
		for _, f := range resets {
			send(resetMsg{form: f})
		}
		send(refreshMsg{})
	}
}

// Stop ends Forward.
func (s *Surface) Stop() { s.once.Do(func() { close(s.done) }) }
