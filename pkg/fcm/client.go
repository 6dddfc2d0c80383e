// Package fcm sends push notifications through the Firebase Cloud Messaging
// legacy HTTP API.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultURL = "https://fcm.googleapis.com/fcm/send"

// Client sends push notifications to device tokens.
type Client struct {
	serverKey string
	url       string
	client    *http.Client
}

// NewClient creates an FCM client. An empty url selects the public endpoint.
func NewClient(serverKey, url string, timeout time.Duration) *Client {
	if url == "" {
		url = defaultURL
	}

	return &Client{
		serverKey: serverKey,
		url:       url,
		client:    &http.Client{Timeout: timeout},
	}
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type message struct {
	To           string            `json:"to"`
	Notification notification      `json:"notification"`
	Data         map[string]string `json:"data"`
}

// Send pushes a notification with the given title and body to token.
func (c *Client) Send(ctx context.Context, token, title, body string) error {
	return c.SendWithData(ctx, token, title, body, nil)
}

// SendWithData is Send with a data payload delivered to the app.
func (c *Client) SendWithData(ctx context.Context, token, title, body string, data map[string]string) error {
	if data == nil {
		data = map[string]string{}
	}

	payload, err := json.Marshal(message{
		To:           token,
		Notification: notification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fcm API error: %s", resp.Status)
	}

	return nil
}
