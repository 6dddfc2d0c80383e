// Package channel implements the reminder delivery strategies.
//
// Every strategy formats a reminder for its medium and hands it to a Sender,
// the single capability shared by the email, chat and push collaborators.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/aliskhannn/reminder-dispatcher/internal/errs"
	"github.com/aliskhannn/reminder-dispatcher/internal/model"
)

//go:generate mockgen -source=channel.go -destination=../mocks/channel/mock.go -package=mocks

// Sender delivers a message to a target through an external collaborator.
type Sender interface {
	Send(ctx context.Context, target, subject, body string) error
}

// Channel delivers a single reminder.
type Channel interface {
	Deliver(ctx context.Context, rem model.Reminder) error
}

// dueLayout is how due times appear in delivered messages.
const dueLayout = "Mon, 02 Jan 2006 15:04 MST"

func formatDue(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(dueLayout)
}

// Registry selects the channel for a reminder. Reminders without a channel
// use the fallback.
type Registry struct {
	channels map[model.Channel]Channel
	fallback model.Channel
}

// NewRegistry creates a registry over the given channels.
func NewRegistry(channels map[model.Channel]Channel, fallback model.Channel) *Registry {
	return &Registry{channels: channels, fallback: fallback}
}

// Resolve returns the channel name used for rem.
func (r *Registry) Resolve(rem model.Reminder) model.Channel {
	if rem.Channel == "" {
		return r.fallback
	}
	return rem.Channel
}

// Deliver sends rem through its channel. Every failure is a *errs.DeliveryError.
func (r *Registry) Deliver(ctx context.Context, rem model.Reminder) error {
	name := r.Resolve(rem)

	ch, ok := r.channels[name]
	if !ok {
		return &errs.DeliveryError{Channel: string(name), Err: fmt.Errorf("%w %q", errs.ErrUnknownChannel, name)}
	}

	if err := ch.Deliver(ctx, rem); err != nil {
		return &errs.DeliveryError{Channel: string(name), Err: err}
	}

	return nil
}
