package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/survivorsoul/soulsongs/internal/markdown"
)

var ErrEmailNotConfigured = errors.New("email service not configured (missing RESEND_API_KEY)")

type EmailService struct {
	client    *resend.Client
	markdown  *markdown.Parser
	fromEmail string
	isDev     bool
	appURL    string
	appName   string
}

// NewEmailService logs emails instead of sending them in development.
func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		markdown:  markdown.NewParser(),
		fromEmail: fromEmail,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
	}
}

func (s *EmailService) SendWelcomeEmail(ctx context.Context, email, name string) error {
	return s.send(ctx, templateWelcome, email, emailData{Name: name})
}

func (s *EmailService) SendSubscriptionActivatedEmail(ctx context.Context, email, name, tier string) error {
	return s.send(ctx, templateSubscriptionActivated, email, emailData{Name: name, Tier: tier})
}

func (s *EmailService) SendSubscriptionCanceledEmail(ctx context.Context, email, name string) error {
	return s.send(ctx, templateSubscriptionCanceled, email, emailData{Name: name})
}

func (s *EmailService) send(ctx context.Context, tmpl, to string, data emailData) error {
	kind := strings.TrimSuffix(tmpl, ".md")

	data.AppURL = s.appURL
	data.AppName = s.appName
	msg, err := renderEmail(s.markdown, tmpl, data)
	if err != nil {
		return err
	}

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", kind, "to", to, "subject", msg.Subject)
		return nil
	}

	if s.client == nil {
		return ErrEmailNotConfigured
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	}

	_, err = s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}

	slog.Info("email sent", "type", kind, "to", to)
	return nil
}
