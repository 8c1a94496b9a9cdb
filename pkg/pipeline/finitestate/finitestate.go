// Pipeline state machine implementation.
// Tracks the lifecycle of one generated script from raw LLM output to a
// render-ready artifact.
package finitestate

import (
	"log/slog"

	"github.com/robbyt/go-fsm"
)

// Pipeline state constants
const (
	// Working states
	StateExtracting         = "extracting"          // Locating the script inside raw LLM output
	StateRepairing          = "repairing"           // Rule battery is rewriting the script
	StateVerifying          = "verifying"           // Post-repair syntax verdict, may fall back
	StateStructureChecking  = "structure_checking"  // Structural predicates
	StateComplexityChecking = "complexity_checking" // Advisory complexity pass
	StateSafetyChecking     = "safety_checking"     // Denylist scan

	// Success state
	StateReady = "ready" // Script handed to the renderer unmodified (terminal)

	// Terminal failure states
	StateExtractionFailed = "extraction_failed" // No strategy found code, retry exhausted
	StateSyntaxFailed     = "syntax_failed"     // Neither repaired nor original text parses
	StateStructureFailed  = "structure_failed"  // Required structure missing
	StateSafetyRejected   = "safety_rejected"   // Denylist match
)

// PipelineTransitions defines the valid state transitions for a script run.
// Extracting lists itself because a failed extraction re-enters it once with
// the stricter regeneration output.
var PipelineTransitions = map[string][]string{
	StateExtracting:         {StateRepairing, StateExtracting, StateExtractionFailed},
	StateRepairing:          {StateVerifying},
	StateVerifying:          {StateStructureChecking, StateSyntaxFailed},
	StateStructureChecking:  {StateComplexityChecking, StateStructureFailed},
	StateComplexityChecking: {StateSafetyChecking},
	StateSafetyChecking:     {StateReady, StateSafetyRejected},

	StateReady: {},

	StateExtractionFailed: {},
	StateSyntaxFailed:     {},
	StateStructureFailed:  {},
	StateSafetyRejected:   {},
}

// Machine is the surface of the state machine the orchestrator drives.
// The abstraction keeps the go-fsm dependency out of the pipeline's callers
// and simplifies testing.
type Machine interface {
	// Transition attempts to transition the state machine to the specified state.
	Transition(state string) error

	// TransitionBool attempts the transition and reports success.
	TransitionBool(state string) bool

	// SetState sets the state machine to the specified state unconditionally.
	SetState(state string) error

	// GetState returns the current state of the state machine.
	GetState() string
}

// New creates a pipeline state machine starting in StateExtracting.
func New(handler slog.Handler) (Machine, error) {
	return fsm.New(handler, StateExtracting, PipelineTransitions)
}

// Terminal reports whether a state has no outgoing transitions.
func Terminal(state string) bool {
	return len(PipelineTransitions[state]) == 0
}
