package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/matheusmosca/order-lifecycle/pkg/config"
	"github.com/matheusmosca/order-lifecycle/services/users"
)

var (
	ErrNoContact       = errors.New("user has no email or phone")
	ErrSenderRejected  = errors.New("notification provider rejected the message")
	ErrSenderNotConfig = errors.New("notification provider is not configured")
)

// Message é uma notificação já renderizada
type Message struct {
	Subject string
	Body    string
}

// Sender entrega uma mensagem a um usuário. Um nil significa envio confirmado
type Sender interface {
	Send(ctx context.Context, user users.User, msg Message) error
}

const requestTimeout = 10 * time.Second

// BrevoMailer envia e-mails transacionais pela API da Brevo
type BrevoMailer struct {
	client      *resty.Client
	apiKey      string
	senderName  string
	senderEmail string
}

func NewBrevoMailer(cfg config.Brevo) *BrevoMailer {
	return &BrevoMailer{
		client:      resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(requestTimeout),
		apiKey:      cfg.APIKey,
		senderName:  cfg.SenderName,
		senderEmail: cfg.SenderEmail,
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmail struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	TextContent string         `json:"textContent"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
}

func (m *BrevoMailer) Configured() bool {
	return m.apiKey != "" && m.senderEmail != ""
}

func (m *BrevoMailer) Send(ctx context.Context, user users.User, msg Message) error {
	if !m.Configured() {
		return ErrSenderNotConfig
	}

	var out brevoResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("api-key", m.apiKey).
		SetHeader("Accept", "application/json").
		SetBody(brevoEmail{
			Sender:      brevoContact{Email: m.senderEmail, Name: m.senderName},
			To:          []brevoContact{{Email: user.Email, Name: user.Name}},
			Subject:     msg.Subject,
			TextContent: msg.Body,
		}).
		SetResult(&out).
		Post("/v3/smtp/email")
	if err != nil {
		return fmt.Errorf("failed to call brevo: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: brevo status=%d body=%s", ErrSenderRejected, resp.StatusCode(), resp.String())
	}
	return nil
}

// TermiiSMS envia SMS pela API da Termii
type TermiiSMS struct {
	client   *resty.Client
	apiKey   string
	senderID string
}

func NewTermiiSMS(cfg config.Termii) *TermiiSMS {
	return &TermiiSMS{
		client:   resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(requestTimeout),
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
	}
}

type termiiRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	SMS     string `json:"sms"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	APIKey  string `json:"api_key"`
}

func (s *TermiiSMS) Configured() bool {
	return s.apiKey != "" && s.senderID != ""
}

func (s *TermiiSMS) Send(ctx context.Context, user users.User, msg Message) error {
	if !s.Configured() {
		return ErrSenderNotConfig
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(termiiRequest{
			To:      user.Phone,
			From:    s.senderID,
			SMS:     msg.Body,
			Type:    "plain",
			Channel: "generic",
			APIKey:  s.apiKey,
		}).
		Post("/api/sms/send")
	if err != nil {
		return fmt.Errorf("failed to call termii: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: termii status=%d body=%s", ErrSenderRejected, resp.StatusCode(), resp.String())
	}
	return nil
}

// Dispatcher escolhe o canal: e-mail quando o usuário tem endereço, SMS caso contrário
type Dispatcher struct {
	email Sender
	sms   Sender
}

func NewDispatcher(email, sms Sender) *Dispatcher {
	return &Dispatcher{email: email, sms: sms}
}

func (d *Dispatcher) Send(ctx context.Context, user users.User, msg Message) error {
	switch {
	case user.Email != "" && usable(d.email):
		return d.email.Send(ctx, user, msg)
	case user.Phone != "" && usable(d.sms):
		return d.sms.Send(ctx, user, msg)
	}
	return fmt.Errorf("user %d: %w", user.ID, ErrNoContact)
}

func usable(s Sender) bool {
	if s == nil {
		return false
	}
	if c, ok := s.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}
