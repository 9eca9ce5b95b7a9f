// Package playback implements the audio playback session: a state machine
// over one owned audio buffer with caption sync and a position ticker.
package playback

import (
	"errors"
	"fmt"
	"slices"
)

// State is a playback session state.
type State string

const (
	StateIdle              State = "idle"
	StateScriptGenerating  State = "script_generating"
	StateAudioSynthesizing State = "audio_synthesizing"
	StateReady             State = "ready"
	StatePlaying           State = "playing"
	StatePaused            State = "paused"
	StateEnded             State = "ended"
	StateError             State = "error"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNoAudio           = errors.New("no audio loaded")
	ErrClosed            = errors.New("session closed")
	ErrInvalidPosition   = errors.New("invalid position")
)

// transitions lists the legal targets of each state. Every state may also
// return to Idle.
var transitions = map[State][]State{
	StateIdle:              {StateScriptGenerating},
	StateScriptGenerating:  {StateAudioSynthesizing, StateError},
	StateAudioSynthesizing: {StateReady, StateError},
	StateReady:             {StatePlaying, StatePaused},
	StatePlaying:           {StatePaused, StateEnded},
	StatePaused:            {StatePlaying, StateEnded},
	StateEnded:             {StatePlaying, StatePaused},
	StateError:             {},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	if to == StateIdle {
		return true
	}
	return slices.Contains(transitions[from], to)
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// hasAudio reports whether a buffer is loaded in state s.
func hasAudio(s State) bool {
	switch s {
	case StateReady, StatePlaying, StatePaused, StateEnded:
		return true
	}
	return false
}
