package core

import "errors"

var (
	// ErrClientClosed is returned when operating on a torn-down handle.
	ErrClientClosed = errors.New("client closed")
	// ErrAlreadyJoined is returned by Join on a handle that already has a phase.
	ErrAlreadyJoined = errors.New("client already joined a session")
	// ErrNoActivePhase marks a send attempted with no protocol phase active.
	ErrNoActivePhase = errors.New("no active protocol phase")
	// ErrReplyTimeout fails a pending reply whose deadline elapsed.
	ErrReplyTimeout = errors.New("reply timed out")
	// ErrSuperseded fails the pending reply of a queued message that a
	// coalescing rule replaced with a newer one.
	ErrSuperseded = errors.New("message superseded by newer update")
	// ErrNoSession is returned when synchronization starts without a bound session.
	ErrNoSession = errors.New("no session bound")
)
