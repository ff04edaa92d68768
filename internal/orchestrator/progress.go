package orchestrator

import (
	"fmt"
	"io"
	"time"

	"github.com/kamilpajak/smarttest/pkg/models"
)

// Event types.
const (
	EventState     = "state"
	EventPhaseDone = "phase_done"
	EventInfo      = "info"
	EventError     = "error"
	EventDone      = "done"
)

// Event is a single progress update during a run.
type Event struct {
	Type     string        `json:"type"`
	State    models.State  `json:"state,omitempty"`
	Phase    models.Phase  `json:"phase,omitempty"`
	Message  string        `json:"message,omitempty"`
	Success  bool          `json:"success,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	// Result is set on the done event.
	Result *models.RunResult `json:"result,omitempty"`
}

// Emitter receives progress events during a run.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

// TextEmitter formats progress events as human-readable lines.
type TextEmitter struct {
	W io.Writer
}

// Emit writes a formatted progress line to the underlying writer.
func (e *TextEmitter) Emit(ev Event) {
	switch ev.Type {
	case EventState:
		if ev.State != models.StateDone {
			fmt.Fprintf(e.W, "[%s] %s\n", ev.State, ev.Message)
		}
	case EventPhaseDone:
		switch {
		case ev.Skipped:
			fmt.Fprintf(e.W, "  %s skipped: %s\n", ev.Phase, ev.Message)
		case ev.Success:
			fmt.Fprintf(e.W, "  %s ok (%s) %s\n", ev.Phase, ev.Duration.Round(time.Millisecond), ev.Message)
		default:
			fmt.Fprintf(e.W, "  %s failed (%s): %s\n", ev.Phase, ev.Duration.Round(time.Millisecond), ev.Message)
		}
	case EventInfo:
		fmt.Fprintf(e.W, "  %s\n", ev.Message)
	case EventError:
		fmt.Fprintf(e.W, "Error: %s\n", ev.Message)
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}
