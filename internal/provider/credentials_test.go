package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/haiminhvu/mailflow/internal/domain"
)

func TestStaticCredentialProvider(t *testing.T) {
	t.Parallel()

	token, err := StaticCredentialProvider{AccessToken: "tok-1"}.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() unexpected error: %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("Token() = %q", token)
	}

	_, err = StaticCredentialProvider{}.Token(context.Background())
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("Token() error = %v, want ErrAuth", err)
	}
}

func TestNewOAuthCredentialProviderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewOAuthCredentialProvider(context.Background(), "", "secret", "refresh", nil); err == nil {
		t.Fatal("expected error for missing client id")
	}
	if _, err := NewOAuthCredentialProvider(context.Background(), "id", "secret", "", nil); err == nil {
		t.Fatal("expected error for missing refresh token")
	}
}
