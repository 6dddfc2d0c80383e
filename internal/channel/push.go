package channel

import (
	"context"
	"time"

	"github.com/aliskhannn/reminder-dispatcher/internal/model"
)

// Push delivers reminders as push notifications to a device token.
type Push struct {
	sender Sender
	loc    *time.Location
}

func NewPush(sender Sender, loc *time.Location) *Push {
	return &Push{sender: sender, loc: loc}
}

// dataSender is implemented by push senders that can attach a data payload.
type dataSender interface {
	SendWithData(ctx context.Context, target, title, body string, data map[string]string) error
}

func (p *Push) Deliver(ctx context.Context, rem model.Reminder) error {
	body := "Due " + formatDue(rem.DueAt, p.loc)

	if ds, ok := p.sender.(dataSender); ok {
		return ds.SendWithData(ctx, rem.Target, Subject(rem), body, map[string]string{"reminder_id": rem.ID})
	}

	return p.sender.Send(ctx, rem.Target, Subject(rem), body)
}
