package model

import "time"

// Status is the delivery state of a reminder.
type Status string

const (
	StatusUnset   Status = "" // NULL in the store, treated as pending
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Effective returns the status as reported to readers. Unset reads as pending.
func (s Status) Effective() Status {
	if s == StatusUnset {
		return StatusPending
	}
	return s
}

// Channel names a delivery strategy.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
	ChannelPush  Channel = "push"
)

// Reminder represents a reminder record in the system.
type Reminder struct {
	ID        string     `json:"id"`                   // opaque unique identifier
	Title     string     `json:"title"`                // text used in the delivered message
	Target    string     `json:"target"`               // email address, chat id or device token
	Channel   Channel    `json:"channel"`              // delivery method, e.g. "email", "chat"
	DueAt     time.Time  `json:"due_at"`               // time after which the reminder may be sent
	Status    Status     `json:"status"`               // "", "pending", "sent" or "failed"
	Attempts  int        `json:"attempts"`             // delivery attempts made so far
	LastError *string    `json:"last_error,omitempty"` // last failure, cleared on success
	SentAt    *time.Time `json:"sent_at,omitempty"`    // time of the successful delivery
}

// IsPending reports whether the reminder has not been delivered or failed yet.
func (r Reminder) IsPending() bool {
	return r.Status == StatusUnset || r.Status == StatusPending
}

// Outcome is the status change persisted after a delivery attempt.
//
// Nil SentAt/LastError with the matching Clear/Set flag false means the column
// is left out of the update.
type Outcome struct {
	Status            Status
	SentAt            *time.Time
	LastError         *string
	ClearLastError    bool
	IncrementAttempts bool
}

// Delivered builds the outcome of a successful delivery at now.
func Delivered(now time.Time) Outcome {
	return Outcome{
		Status:         StatusSent,
		SentAt:         &now,
		ClearLastError: true,
	}
}

// Failed builds the outcome of a failed delivery.
func Failed(reason string) Outcome {
	return Outcome{
		Status:            StatusFailed,
		LastError:         &reason,
		IncrementAttempts: true,
	}
}

// Without returns a copy of o that does not touch column.
func (o Outcome) Without(column string) Outcome {
	switch column {
	case "sent_at":
		o.SentAt = nil
	case "last_error":
		o.LastError = nil
		o.ClearLastError = false
	}
	return o
}

// Touches reports whether the outcome writes column.
func (o Outcome) Touches(column string) bool {
	switch column {
	case "sent_at":
		return o.SentAt != nil
	case "last_error":
		return o.LastError != nil || o.ClearLastError
	case "attempts":
		return o.IncrementAttempts
	case "status":
		return true
	default:
		return false
	}
}
