// Package model holds the shared types of a Wasabi connection: roles, session
// states, journal records and the error kinds reported across packages.
package model

import (
	"time"
)

// Role is the side of the connection a process plays.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleAcceptor  Role = "acceptor"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateHandshaking State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionRecord is the journal entry for one connection.
// Message contents are never recorded.
type SessionRecord struct {
	ID          string     `json:"id"`
	Role        Role       `json:"role"`
	Peer        string     `json:"peer"`
	State       State      `json:"state"`
	CloseReason string     `json:"closeReason,omitempty"`
	ErrorKind   string     `json:"errorKind,omitempty"`
	FramesIn    int64      `json:"framesIn"`
	FramesOut   int64      `json:"framesOut"`
	OpenedAt    time.Time  `json:"openedAt"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

// Duration returns how long the session has been, or was, open.
func (r *SessionRecord) Duration() time.Duration {
	if r.ClosedAt != nil {
		return r.ClosedAt.Sub(r.OpenedAt)
	}
	return time.Since(r.OpenedAt)
}

// Closed reports whether the record has been finalized.
func (r *SessionRecord) Closed() bool {
	return r.ClosedAt != nil
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	for st := StateHandshaking; st <= StateClosed; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return StateHandshaking, false
}
