package core

import "context"

// PhaseKind tags the protocol phase governing a client. The Synchronizing
// to Executing transition is one-directional and happens at most once per
// handle; teardown leaves the handle closed, never back at PhaseNone with
// a live transport.
type PhaseKind int

const (
	PhaseNone PhaseKind = iota
	PhaseSynchronizing
	PhaseExecuting
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseSynchronizing:
		return "synchronizing"
	case PhaseExecuting:
		return "executing"
	default:
		return "none"
	}
}

// phaseSender is the send capability both phase handlers expose.
type phaseSender interface {
	send(msg Message, reply *PendingReply) error
}

// syncPhase replays session state to a newly joined client. run either
// completes, fails, or is cancelled by teardown.
type syncPhase interface {
	phaseSender
	run(ctx context.Context) error
}

// execPhase handles steady-state bidirectional exchange.
type execPhase interface {
	phaseSender
	startListening()
	stopListening()
}

// phaseState is a tagged variant over the two mutually exclusive handlers.
// Exactly one of sync/exec is non-nil, matching kind.
type phaseState struct {
	kind PhaseKind
	sync syncPhase
	exec execPhase
}

func (p phaseState) sender() phaseSender {
	switch p.kind {
	case PhaseSynchronizing:
		return p.sync
	case PhaseExecuting:
		return p.exec
	default:
		return nil
	}
}
