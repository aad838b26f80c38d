package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/moveoone/moveo/internal/auth/internal/domain"
)

// mockTokenStore is a test double for TokenStore.
type mockTokenStore struct {
	tokens      map[string]*domain.Token // keyed by hash
	createErr   error
	revokeErr   error
	findErr     error
	listErr     error
	createCalls int
	revokeCalls int
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{
		tokens: make(map[string]*domain.Token),
	}
}

func (m *mockTokenStore) FindByHash(_ context.Context, tokenHash string) (*domain.Token, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.tokens[tokenHash], nil
}

func (m *mockTokenStore) Create(_ context.Context, token *domain.Token) error {
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	m.tokens[token.TokenHash] = token
	return nil
}

func (m *mockTokenStore) Revoke(_ context.Context, id string) error {
	m.revokeCalls++
	if m.revokeErr != nil {
		return m.revokeErr
	}
	for _, token := range m.tokens {
		if token.ID == id {
			token.Revoked = true
			now := time.Now()
			token.RevokedAt = &now
			return nil
		}
	}
	return domain.ErrTokenNotFound
}

func (m *mockTokenStore) ListByAppID(_ context.Context, appID string) ([]domain.Token, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []domain.Token
	for _, token := range m.tokens {
		if token.AppID == appID {
			result = append(result, *token)
		}
	}
	return result, nil
}

func TestValidateToken_ValidToken(t *testing.T) {
	store := newMockTokenStore()
	svc := NewTokenService(store, nil)

	plaintext, _, err := svc.CreateToken(context.Background(), "app-1", "web")
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	token, err := svc.ValidateToken(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("ValidateToken() returned unexpected error: %v", err)
	}
	if token.AppID != "app-1" {
		t.Errorf("ValidateToken() app_id = %q, want %q", token.AppID, "app-1")
	}
}

func TestValidateToken_RevokedToken(t *testing.T) {
	store := newMockTokenStore()
	svc := NewTokenService(store, nil)

	plaintext, token, _ := svc.CreateToken(context.Background(), "app-1", "web")
	_ = svc.RevokeToken(context.Background(), token.ID)

	_, err := svc.ValidateToken(context.Background(), plaintext)
	if !errors.Is(err, domain.ErrTokenRevoked) {
		t.Errorf("ValidateToken() error = %v, want ErrTokenRevoked", err)
	}
}

func TestValidateToken_Malformed(t *testing.T) {
	store := newMockTokenStore()
	svc := NewTokenService(store, nil)

	_, err := svc.ValidateToken(context.Background(), "not-a-token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_UnknownToken(t *testing.T) {
	store := newMockTokenStore()
	svc := NewTokenService(store, nil)

	_, err := svc.ValidateToken(context.Background(), domain.TokenPrefix+strings.Repeat("0", 64))
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_StoreError(t *testing.T) {
	store := newMockTokenStore()
	store.findErr = errors.New("database connection failed")
	svc := NewTokenService(store, nil)

	_, err := svc.ValidateToken(context.Background(), domain.TokenPrefix+strings.Repeat("0", 64))
	if err == nil || errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() error = %v, want wrapped store error", err)
	}
}

func TestCreateToken_Success(t *testing.T) {
	store := newMockTokenStore()
	svc := NewTokenService(store, nil)

	plaintext, token, err := svc.CreateToken(context.Background(), "app-1", "Production")
	if err != nil {
		t.Fatalf("CreateToken() returned unexpected error: %v", err)
	}

	if !domain.ValidateTokenFormat(plaintext) {
		t.Errorf("plaintext %q has an invalid format", plaintext)
	}
	if token.ID == "" || token.AppID != "app-1" || token.Name != "Production" {
		t.Errorf("token = %+v", token)
	}
	if token.TokenHash != domain.HashToken(plaintext) {
		t.Error("stored hash does not match plaintext")
	}
	if store.createCalls != 1 {
		t.Errorf("store.Create() called %d times, want 1", store.createCalls)
	}
}

func TestCreateToken_EmptyAppID(t *testing.T) {
	svc := NewTokenService(newMockTokenStore(), nil)

	_, _, err := svc.CreateToken(context.Background(), "  ", "web")
	if !errors.Is(err, ErrEmptyAppID) {
		t.Errorf("CreateToken() error = %v, want ErrEmptyAppID", err)
	}
}

func TestCreateToken_StoreError(t *testing.T) {
	store := newMockTokenStore()
	store.createErr = errors.New("failed to insert")
	svc := NewTokenService(store, nil)

	if _, _, err := svc.CreateToken(context.Background(), "app-1", "web"); err == nil {
		t.Error("CreateToken() should return error when store fails")
	}
}

func TestRevokeToken_NotFound(t *testing.T) {
	svc := NewTokenService(newMockTokenStore(), nil)

	err := svc.RevokeToken(context.Background(), "missing")
	if !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("RevokeToken() error = %v, want ErrTokenNotFound", err)
	}
}

func TestListTokens(t *testing.T) {
	store := newMockTokenStore()
	svc := NewTokenService(store, nil)

	_, _, _ = svc.CreateToken(context.Background(), "app-1", "a")
	_, _, _ = svc.CreateToken(context.Background(), "app-1", "b")
	_, _, _ = svc.CreateToken(context.Background(), "app-2", "c")

	tokens, err := svc.ListTokens(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("ListTokens() error = %v", err)
	}
	if len(tokens) != 2 {
		t.Errorf("ListTokens() returned %d tokens, want 2", len(tokens))
	}

	if _, err := svc.ListTokens(context.Background(), ""); !errors.Is(err, ErrEmptyAppID) {
		t.Errorf("ListTokens(\"\") error = %v, want ErrEmptyAppID", err)
	}

	store.listErr = errors.New("boom")
	if _, err := svc.ListTokens(context.Background(), "app-1"); err == nil {
		t.Error("ListTokens() should return error when store fails")
	}
}
