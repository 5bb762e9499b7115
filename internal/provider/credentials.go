package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/haiminhvu/mailflow/internal/domain"
)

// OAuthCredentialProvider exchanges a long-lived refresh token for access
// tokens. The token source caches the current token and refreshes only
// when it expires.
type OAuthCredentialProvider struct {
	mu     sync.Mutex
	source oauth2.TokenSource
}

func NewOAuthCredentialProvider(ctx context.Context, clientID, clientSecret, refreshToken string, scopes []string) (*OAuthCredentialProvider, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, fmt.Errorf("oauth client credentials are required")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("oauth refresh token is required")
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}

	base := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return &OAuthCredentialProvider{
		source: oauth2.ReuseTokenSource(nil, base),
	}, nil
}

func (p *OAuthCredentialProvider) Token(_ context.Context) (string, error) {
	if p == nil || p.source == nil {
		return "", fmt.Errorf("%w: credential provider is not initialized", domain.ErrAuth)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	token, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", domain.ErrAuth)
	}
	return token.AccessToken, nil
}

// StaticCredentialProvider returns a fixed token. Used in tests and for
// environments that inject the token out of band.
type StaticCredentialProvider struct {
	AccessToken string
}

func (p StaticCredentialProvider) Token(_ context.Context) (string, error) {
	if p.AccessToken == "" {
		return "", fmt.Errorf("%w: no static token configured", domain.ErrAuth)
	}
	return p.AccessToken, nil
}
