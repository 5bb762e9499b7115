package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	gomail "gopkg.in/gomail.v2"
)

// SMTPMailer delivers messages over plain SMTP for deployments without a
// Gmail API credential. It rebuilds the message from the structured fields
// rather than the raw encoding.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) (*SMTPMailer, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		from = username
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp sender address is required")
	}

	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg OutboundMessage) error {
	if m == nil || m.dialer == nil {
		return fmt.Errorf("mailer is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient address is required")
	}

	out := gomail.NewMessage()
	from := msg.From
	if from == "" {
		from = m.from
	}
	out.SetHeader("From", from)
	out.SetHeader("To", msg.To)
	out.SetHeader("Subject", msg.Subject)
	out.SetBody("text/html", msg.HTMLBody)

	for _, att := range msg.Attachments {
		payload, err := base64.StdEncoding.DecodeString(att.Base64)
		if err != nil {
			return fmt.Errorf("decode attachment %q: %w", att.Name, err)
		}
		mimeType := att.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		out.Attach(att.Name,
			gomail.SetHeader(map[string][]string{"Content-Type": {mimeType}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, copyErr := w.Write(payload)
				return copyErr
			}))
	}

	if err := m.dialer.DialAndSend(out); err != nil {
		return &ProviderError{
			Message:   "smtp send failed",
			Transient: true,
			Cause:     err,
		}
	}
	return nil
}

// DefaultSignature is empty for SMTP: there is no account signature to
// fetch.
func (m *SMTPMailer) DefaultSignature(_ context.Context) (string, error) {
	return "", nil
}
