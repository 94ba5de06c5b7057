// Package mattermost posts operator notifications to a Mattermost Incoming
// Webhook as colour-coded attachments.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aridosvaldez/aridos/internal/notifications"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "Aridos"
	maxErrorBody    = 512
)

// Attachment colours per severity.
var severityColors = map[notifications.Severity]string{
	notifications.SeveritySuccess: "#2e7d32",
	notifications.SeverityInfo:    "#0277bd",
	notifications.SeverityWarning: "#ef6c00",
	notifications.SeverityError:   "#c62828",
}

// Config holds Mattermost sender configuration.
type Config struct {
	WebhookURL string
	Channel    string // overrides the webhook's default channel
	Username   string
	IconURL    string
	Timeout    time.Duration
}

// Sender posts to one incoming webhook.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a sender. Username defaults to "Aridos", timeout to 10s.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name identifies the sender in logs and metrics.
func (s *Sender) Name() string {
	return "mattermost"
}

type webhookPayload struct {
	Username    string       `json:"username,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Channel     string       `json:"channel,omitempty"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Fallback string `json:"fallback"`
	Color    string `json:"color"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
}

// Send posts msg as a single attachment coloured by its severity.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if s.config.WebhookURL == "" {
		return notifications.NewNonRetryableError(errors.New("mattermost: webhook URL is empty"))
	}

	color, ok := severityColors[msg.Severity]
	if !ok {
		color = severityColors[notifications.SeverityInfo]
	}
	body, err := json.Marshal(webhookPayload{
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
		Channel:  s.config.Channel,
		Attachments: []attachment{{
			Fallback: fallbackText(msg),
			Color:    color,
			Title:    msg.Subject,
			Text:     msg.Body,
		}},
	})
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("mattermost: marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("mattermost: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return notifications.NewRetryableError(fmt.Errorf("mattermost: send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	return classifyResponse(resp)
}

func fallbackText(msg notifications.Message) string {
	if msg.Subject == "" {
		return msg.Body
	}
	return msg.Subject + ": " + msg.Body
}

// classifyResponse maps the webhook's answer onto the worker's retry rules:
// rate limiting and server errors are retried, anything else is final.
func classifyResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("mattermost: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return notifications.NewRetryableError(err)
	}
	return notifications.NewNonRetryableError(err)
}
