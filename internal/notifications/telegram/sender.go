// Package telegram sends operator notifications to a Telegram chat through
// the Bot API. Only warnings and errors ring the recipients' phones.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aridosvaldez/aridos/internal/notifications"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL    = "https://api.telegram.org/bot%s/sendMessage"
	defaultRateLimit = 1.0 // messages per second to one chat
	defaultTimeout   = 10 * time.Second
)

// Config holds telegram sender configuration.
type Config struct {
	BotToken  string
	ChatID    string
	RateLimit float64
}

// Sender posts to a single chat, throttled to RateLimit messages per second.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	apiURL     string

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewSender validates config. RateLimit defaults to one message per second.
func NewSender(config Config) (*Sender, error) {
	var errs []error
	if config.BotToken == "" {
		errs = append(errs, errors.New("bot token is required"))
	}
	if config.ChatID == "" {
		errs = append(errs, errors.New("chat id is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("telegram sender: %w", err)
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		apiURL:     defaultAPIURL,
	}, nil
}

// Name identifies the sender in logs and metrics.
func (s *Sender) Name() string {
	return "telegram"
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// Send posts the HTML body of msg. Success and info messages are delivered
// silently.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if err := s.waitPause(ctx); err != nil {
		return fmt.Errorf("telegram: retry_after wait: %w", err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: rate limit wait: %w", err)
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:              s.config.ChatID,
		Text:                msg.Body,
		ParseMode:           "HTML",
		DisableNotification: !msg.Severity.AtLeast(notifications.SeverityWarning),
	})
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("telegram: marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(s.apiURL, s.config.BotToken), bytes.NewReader(body))
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("telegram: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return notifications.NewRetryableError(fmt.Errorf("telegram: send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	return s.classifyResponse(resp)
}

// classifyResponse retries rate limiting and server failures. When the Bot
// API asks for a pause, sends are held back for that long.
func (s *Sender) classifyResponse(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return notifications.NewRetryableError(fmt.Errorf("telegram: read response: %w", err))
	}

	var ar apiResponse
	if jsonErr := json.Unmarshal(raw, &ar); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return notifications.NewNonRetryableError(fmt.Errorf("telegram: decode response: %w", jsonErr))
	}
	if resp.StatusCode == http.StatusOK && ar.OK {
		return nil
	}

	code := ar.ErrorCode
	if code == 0 {
		code = resp.StatusCode
	}
	apiErr := fmt.Errorf("telegram: error %d: %s", code, ar.Description)

	switch {
	case code == http.StatusTooManyRequests:
		if ar.Parameters != nil && ar.Parameters.RetryAfter > 0 {
			s.holdBack(time.Duration(ar.Parameters.RetryAfter) * time.Second)
		}
		return notifications.NewRetryableError(apiErr)
	case code >= 400 && code < 500:
		return notifications.NewNonRetryableError(apiErr)
	default:
		return notifications.NewRetryableError(apiErr)
	}
}

// holdBack pauses every send for d.
func (s *Sender) holdBack(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until := time.Now().Add(d); until.After(s.pausedUntil) {
		s.pausedUntil = until
	}
}

func (s *Sender) waitPause(ctx context.Context) error {
	s.mu.Lock()
	wait := time.Until(s.pausedUntil)
	s.mu.Unlock()
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
