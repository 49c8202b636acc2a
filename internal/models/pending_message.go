package models

import "time"

// PendingMessage is a Message this client has attempted to send but not yet
// reconciled against an authoritative server row. It lives in the pending
// queue (memory plus the durable local slot), never on the server.
type PendingMessage struct {
	Message

	Status     MessageStatus `json:"status"`
	RetryCount int           `json:"retryCount"`
	LastError  string        `json:"lastError,omitempty"`
	// LastErrorCode is the machine-readable code of the failure that put
	// the entry at FAILED; it decides automatic retry eligibility.
	LastErrorCode string    `json:"lastErrorCode,omitempty"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
	// LastAttemptAt is refreshed on every retry; staleness is measured
	// against it rather than the original enqueue time.
	LastAttemptAt time.Time `json:"lastAttemptAt,omitempty"`
}

// LastAttempt returns the most recent send attempt time, falling back to
// the enqueue time for entries restored from older snapshots.
func (p *PendingMessage) LastAttempt() time.Time {
	if !p.LastAttemptAt.IsZero() {
		return p.LastAttemptAt
	}
	return p.EnqueuedAt
}

// Reconciled reports whether the entry has been matched to a server row.
func (p *PendingMessage) Reconciled() bool {
	return p.ID != "" && p.Status.rank() >= StatusStored.rank()
}

// PendingPatch is a partial update applied to a queue entry by correlation
// id. Nil fields are left untouched.
type PendingPatch struct {
	ServerID        string
	ServerCreatedAt *time.Time
	Status          *MessageStatus
	LastError       *string
	LastErrorCode   *string
}
