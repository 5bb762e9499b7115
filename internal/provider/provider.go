package provider

import (
	"context"

	"github.com/haiminhvu/mailflow/internal/domain"
)

// OutboundMessage is one fully rendered email handed to a Mailer. Raw is
// the base64url transport encoding; drivers that speak SMTP use the
// structured fields instead.
type OutboundMessage struct {
	From        string
	To          string
	Subject     string
	HTMLBody    string
	Attachments []domain.Attachment
	Raw         string
}

// Mailer is the outbound mail delivery port.
type Mailer interface {
	Send(ctx context.Context, msg OutboundMessage) error
	// DefaultSignature fetches the sender's signature HTML. Callers treat
	// any error as "no signature" rather than failing the send.
	DefaultSignature(ctx context.Context) (string, error)
}

// CredentialProvider yields a bearer token for the mail and sheet APIs,
// refreshing only when the cached token has expired.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// SheetReader pulls raw tabular rows, header row included. Column-name
// resolution is the caller's concern.
type SheetReader interface {
	ReadTabular(ctx context.Context, spreadsheetID, rangeA1 string) ([][]string, error)
}
