package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// Config holds email notifier configuration
type Config struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	// Recipient is the guardian address notifications are copied to.
	Recipient string
	// BaseURL turns relative notification targets into links.
	BaseURL string
}

// Sender is the part of the SendGrid client the notifier uses.
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Notifier delivers notifications by email through SendGrid.
type Notifier struct {
	config *Config
	logger *logrus.Logger
	client Sender
	tmpl   *template.Template
}

const notificationTemplate = `<!DOCTYPE html>
<html>
<body>
  <h2>{{.Title}}</h2>
  <p>{{.Body}}</p>
  {{if .Link}}<p><a href="{{.Link}}">Start learning</a></p>{{end}}
</body>
</html>`

type notificationData struct {
	Title string
	Body  string
	Link  string
}

// NewNotifier creates a SendGrid-backed notifier
func NewNotifier(config *Config, logger *logrus.Logger) (ports.Notifier, error) {
	return newNotifier(config, sendgrid.NewSendClient(config.SendGridAPIKey), logger)
}

// NewNotifierWithSender is used by tests to swap the SendGrid client.
func NewNotifierWithSender(config *Config, sender Sender, logger *logrus.Logger) (*Notifier, error) {
	return newNotifier(config, sender, logger)
}

func newNotifier(config *Config, sender Sender, logger *logrus.Logger) (*Notifier, error) {
	if config.Recipient == "" {
		return nil, fmt.Errorf("email notifier requires a recipient")
	}
	tmpl, err := template.New("notification").Parse(notificationTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notification template: %w", err)
	}
	return &Notifier{config: config, logger: logger, client: sender, tmpl: tmpl}, nil
}

// Notify emails n to the configured recipient
func (e *Notifier) Notify(ctx context.Context, n notification.Notification) error {
	var buf bytes.Buffer
	data := notificationData{Title: n.Title, Body: n.Body, Link: e.link(n.URL())}
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render notification email: %w", err)
	}

	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	to := mail.NewEmail("", e.config.Recipient)
	message := mail.NewSingleEmail(from, n.Title, to, n.Body, buf.String())

	response, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		if e.logger != nil {
			e.logger.WithFields(logrus.Fields{"to": e.config.Recipient, "tag": n.Tag}).WithError(err).Error("email: failed to send notification")
		}
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("failed to send email: sendgrid answered %d", response.StatusCode)
	}

	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{"to": e.config.Recipient, "tag": n.Tag, "status_code": response.StatusCode}).Info("email: notification sent")
	}
	return nil
}

func (e *Notifier) link(target string) string {
	if target == "" {
		return ""
	}
	if target[0] == '/' {
		return e.config.BaseURL + target
	}
	return target
}
