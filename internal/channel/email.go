package channel

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/aliskhannn/reminder-dispatcher/internal/model"
)

var emailBody = template.Must(template.New("reminder").Parse(
	`<div style="font-family:sans-serif"><h2>{{.Title}}</h2><p>This is your reminder, due {{.Due}}.</p></div>`,
))

// Email delivers reminders as HTML emails.
type Email struct {
	sender Sender
	loc    *time.Location
}

// NewEmail creates the email strategy. Due times are rendered in loc (UTC when nil).
func NewEmail(sender Sender, loc *time.Location) *Email {
	return &Email{sender: sender, loc: loc}
}

// Subject returns the email subject for rem.
func Subject(rem model.Reminder) string {
	return "Reminder: " + rem.Title
}

// Body renders the HTML body for rem, escaping the title.
func (e *Email) Body(rem model.Reminder) (string, error) {
	var buf bytes.Buffer
	err := emailBody.Execute(&buf, struct{ Title, Due string }{
		Title: rem.Title,
		Due:   formatDue(rem.DueAt, e.loc),
	})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}

	return buf.String(), nil
}

func (e *Email) Deliver(ctx context.Context, rem model.Reminder) error {
	body, err := e.Body(rem)
	if err != nil {
		return err
	}

	return e.sender.Send(ctx, rem.Target, Subject(rem), body)
}
