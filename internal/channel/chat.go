package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/aliskhannn/reminder-dispatcher/internal/model"
)

// Chat delivers reminders as a single text line to a chat.
type Chat struct {
	sender Sender
	loc    *time.Location
}

func NewChat(sender Sender, loc *time.Location) *Chat {
	return &Chat{sender: sender, loc: loc}
}

// Text returns the chat line for rem.
func (c *Chat) Text(rem model.Reminder) string {
	return fmt.Sprintf("⏰ Reminder: %s (due %s)", rem.Title, formatDue(rem.DueAt, c.loc))
}

func (c *Chat) Deliver(ctx context.Context, rem model.Reminder) error {
	return c.sender.Send(ctx, rem.Target, "", c.Text(rem))
}
