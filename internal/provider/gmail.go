package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/haiminhvu/mailflow/internal/mime"
)

const (
	defaultGmailBaseURL = "https://gmail.googleapis.com"
	defaultGmailTimeout = 30 * time.Second

	signatureFetchRetries = 2
)

// GmailScopes covers sending mail and reading send-as settings, the two
// calls this mailer makes.
var GmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.settings.basic",
}

type gmailSendRequest struct {
	Raw string `json:"raw"`
}

type gmailSendAs struct {
	IsPrimary bool   `json:"isPrimary"`
	Signature string `json:"signature"`
}

type gmailSendAsResponse struct {
	SendAs []gmailSendAs `json:"sendAs"`
}

// GmailMailer delivers messages through the Gmail REST API using the raw
// base64url encoding produced by the assembler.
type GmailMailer struct {
	client  *resty.Client
	creds   CredentialProvider
	baseURL string
}

func NewGmailMailer(baseURL string, creds CredentialProvider) (*GmailMailer, error) {
	client := resty.New()
	client.SetTimeout(defaultGmailTimeout)
	client.SetRetryCount(0)

	return NewGmailMailerWithClient(baseURL, creds, client)
}

func NewGmailMailerWithClient(baseURL string, creds CredentialProvider, client *resty.Client) (*GmailMailer, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultGmailBaseURL
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid gmail base url: %w", err)
	}
	if creds == nil {
		return nil, fmt.Errorf("credential provider is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGmailTimeout)
	}
	client.SetRetryCount(0)

	return &GmailMailer{
		client:  client,
		creds:   creds,
		baseURL: strings.TrimRight(trimmed, "/"),
	}, nil
}

func (m *GmailMailer) Send(ctx context.Context, msg OutboundMessage) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("mailer is not initialized")
	}
	if strings.TrimSpace(msg.Raw) == "" {
		return fmt.Errorf("raw message is required")
	}

	token, err := m.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}

	response, err := m.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(gmailSendRequest{Raw: msg.Raw}).
		Post(m.baseURL + "/gmail/v1/users/me/messages/send")
	if err != nil {
		return &ProviderError{
			Message:   "gmail send request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &ProviderError{
		StatusCode: statusCode,
		Message:    gmailErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

// DefaultSignature reads the primary send-as alias and returns its cleaned
// signature HTML. Transient fetch failures are retried briefly; callers
// fall back to an empty signature on error.
func (m *GmailMailer) DefaultSignature(ctx context.Context) (string, error) {
	if m == nil || m.client == nil {
		return "", fmt.Errorf("mailer is not initialized")
	}

	var signature string
	operation := func() error {
		token, err := m.creds.Token(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire token: %w", err))
		}

		response, err := m.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(&gmailSendAsResponse{}).
			Get(m.baseURL + "/gmail/v1/users/me/settings/sendAs")
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			return err
		}

		statusCode := response.StatusCode()
		if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
			fetchErr := &ProviderError{
				StatusCode: statusCode,
				Message:    gmailErrorMessage(statusCode, strings.TrimSpace(response.String())),
				Transient:  isTransientHTTPStatus(statusCode),
			}
			if !fetchErr.Transient {
				return backoff.Permanent(fetchErr)
			}
			return fetchErr
		}

		result, ok := response.Result().(*gmailSendAsResponse)
		if !ok || result == nil {
			return backoff.Permanent(fmt.Errorf("unexpected sendAs response shape"))
		}

		for _, alias := range result.SendAs {
			if alias.IsPrimary {
				signature = mime.CleanSignatureHTML(alias.Signature)
				return nil
			}
		}
		signature = ""
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), signatureFetchRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return signature, nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gmailErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gmail returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
