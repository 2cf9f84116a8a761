package speech

import (
	"errors"
	"fmt"
	"testing"
)

func TestStateMachine(t *testing.T) {
	var changes []string
	sm := newStateMachine(func(from, to State) {
		changes = append(changes, fmt.Sprintf("%s->%s", from, to))
	})

	if sm.Current() != StateUninitialized {
		t.Fatalf("initial state = %v", sm.Current())
	}

	steps := []struct {
		to   State
		want bool
	}{
		{StateReady, false},
		{StateInitializing, true},
		{StateReady, true},
		{StateFailed, false},
		{StateShuttingDown, true},
		{StateReady, false},
		{StateShutDown, true},
		{StateShuttingDown, false},
	}
	for _, step := range steps {
		if got := sm.Transition(step.to); got != step.want {
			t.Errorf("Transition(%v) from %v = %v, want %v", step.to, sm.Current(), got, step.want)
		}
	}

	want := []string{
		"uninitialized->initializing",
		"initializing->ready",
		"ready->shutting-down",
		"shutting-down->shut-down",
	}
	if fmt.Sprint(changes) != fmt.Sprint(want) {
		t.Errorf("changes = %v, want %v", changes, want)
	}
}

func TestFailedCanShutDown(t *testing.T) {
	sm := newStateMachine(nil)
	sm.Transition(StateInitializing)
	sm.Transition(StateFailed)
	if sm.Transition(StateReady) {
		t.Error("failed pipeline became ready")
	}
	if !sm.Transition(StateShuttingDown) || !sm.Transition(StateShutDown) {
		t.Error("failed pipeline cannot shut down")
	}
}

func TestStateString(t *testing.T) {
	if StateShuttingDown.String() != "shutting-down" || State(99).String() != "unknown" {
		t.Error("unexpected state names")
	}
	if Flush.String() != "flush" || Append.String() != "append" {
		t.Error("unexpected queue mode names")
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("init: %w", &Error{Op: "open sink", Err: cause})

	if !errors.Is(err, cause) {
		t.Error("errors.Is does not reach the cause")
	}
	var serr *Error
	if !errors.As(err, &serr) || serr.Op != "open sink" {
		t.Errorf("errors.As failed: %v", err)
	}
	if got := serr.Error(); got != "speech: open sink: boom" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&Error{Op: "x"}).Error(); got != "speech: x" {
		t.Errorf("Error() without cause = %q", got)
	}
}
