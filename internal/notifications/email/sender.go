// Package email mails operator notifications to the quarry office.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"regexp"
	"strconv"
	"time"

	"github.com/aridosvaldez/aridos/internal/notifications"
	mail "github.com/go-mail/mail"
)

// TLS modes.
const (
	TLSAuto     = "auto"
	TLSStartTLS = "starttls"
	TLSImplicit = "ssl"
	TLSNone     = "none"
)

const defaultDialTimeout = 10 * time.Second

// Config holds SMTP settings for the email route.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	TLSMode    string
}

// Sender mails every message it receives to a fixed recipient list.
type Sender struct {
	config Config
}

// NewSender validates config and applies defaults (port 587, TLS auto).
func NewSender(config Config) (*Sender, error) {
	var errs []error
	if config.Host == "" {
		errs = append(errs, errors.New("smtp host is required"))
	}
	if config.From == "" {
		errs = append(errs, errors.New("from address is required"))
	}
	if len(config.Recipients) == 0 {
		errs = append(errs, errors.New("at least one recipient is required"))
	}
	switch config.TLSMode {
	case "":
		config.TLSMode = TLSAuto
	case TLSAuto, TLSStartTLS, TLSImplicit, TLSNone:
	default:
		errs = append(errs, fmt.Errorf("unknown tls mode %q", config.TLSMode))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("email sender: %w", err)
	}
	if config.Port == 0 {
		config.Port = 587
	}
	return &Sender{config: config}, nil
}

// Name identifies the sender in logs and metrics.
func (s *Sender) Name() string {
	return "email"
}

// Send mails msg. Warnings and errors are flagged as urgent so mail clients
// surface them. Transient SMTP failures are left retryable.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d := s.dialer()
	if deadline, ok := ctx.Deadline(); ok {
		d.Timeout = time.Until(deadline)
	}

	if err := d.DialAndSend(s.buildMessage(msg)); err != nil {
		err = fmt.Errorf("smtp send: %w", err)
		if !IsRetryable(err) {
			return notifications.NewNonRetryableError(err)
		}
		return notifications.NewRetryableError(err)
	}
	return nil
}

func (s *Sender) buildMessage(msg notifications.Message) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", s.config.Recipients...)
	m.SetHeader("Subject", msg.Subject)
	if priority, ok := priorityHeader(msg.Severity); ok {
		m.SetHeader("X-Priority", priority)
		m.SetHeader("Importance", "high")
	}
	m.SetBody("text/plain", msg.Body)
	return m
}

func (s *Sender) dialer() *mail.Dialer {
	d := mail.NewDialer(s.config.Host, s.config.Port, s.config.Username, s.config.Password)
	d.Timeout = defaultDialTimeout
	d.TLSConfig = &tls.Config{ServerName: s.config.Host, MinVersion: tls.VersionTLS12}

	switch s.config.TLSMode {
	case TLSImplicit:
		d.SSL = true
	case TLSStartTLS:
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case TLSNone:
		d.StartTLSPolicy = mail.NoStartTLS
	}
	return d
}

func priorityHeader(severity notifications.Severity) (string, bool) {
	switch severity {
	case notifications.SeverityError:
		return "1", true
	case notifications.SeverityWarning:
		return "2", true
	}
	return "", false
}

var replyCode = regexp.MustCompile(`(?:^|: )([2-5]\d\d)[ -]`)

// IsRetryable reports whether err is a network failure or an SMTP 4xx reply.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code/100 == 4
	}

	// Some failures only carry the reply code in their text.
	if m := replyCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code/100 == 4
	}
	return false
}
