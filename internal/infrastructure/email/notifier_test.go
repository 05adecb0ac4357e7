package email_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/email"
)

type senderMock struct {
	sendFn func(ctx context.Context, m *mail.SGMailV3) (*rest.Response, error)
	sent   []*mail.SGMailV3
}

func (s *senderMock) SendWithContext(ctx context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	s.sent = append(s.sent, m)
	if s.sendFn != nil {
		return s.sendFn(ctx, m)
	}
	return &rest.Response{StatusCode: 202}, nil
}

func testConfig() *email.Config {
	return &email.Config{FromEmail: "hello@app.test", FromName: "Learning App", Recipient: "guardian@home.test", BaseURL: "https://app.test"}
}

func TestNotifier_SendsRenderedEmail(t *testing.T) {
	sender := &senderMock{}
	n, err := email.NewNotifierWithSender(testConfig(), sender, nil)
	require.NoError(t, err)

	note := notification.Defaults()
	note.Title = "Story time <3"
	note.Data = map[string]any{"url": "/stories/42"}
	require.NoError(t, n.Notify(context.Background(), note))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	require.Equal(t, "Story time <3", msg.Subject)
	require.Equal(t, "guardian@home.test", msg.Personalizations[0].To[0].Address)

	var html string
	for _, c := range msg.Content {
		if c.Type == "text/html" {
			html = c.Value
		}
	}
	require.Contains(t, html, `href="https://app.test/stories/42"`)
	require.Contains(t, html, "Story time &lt;3")
}

func TestNotifier_Failures(t *testing.T) {
	boom := errors.New("dial tcp: timeout")
	sender := &senderMock{sendFn: func(ctx context.Context, m *mail.SGMailV3) (*rest.Response, error) { return nil, boom }}
	n, err := email.NewNotifierWithSender(testConfig(), sender, nil)
	require.NoError(t, err)
	require.ErrorIs(t, n.Notify(context.Background(), notification.Defaults()), boom)

	sender.sendFn = func(ctx context.Context, m *mail.SGMailV3) (*rest.Response, error) {
		return &rest.Response{StatusCode: 401, Body: "unauthorized"}, nil
	}
	require.ErrorContains(t, n.Notify(context.Background(), notification.Defaults()), "401")
}

func TestNotifier_RequiresRecipient(t *testing.T) {
	_, err := email.NewNotifierWithSender(&email.Config{}, &senderMock{}, nil)
	require.Error(t, err)
}
