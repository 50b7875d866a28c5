package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Ошибки проверки identity.
var (
	// ErrUnauthorized — токен отсутствует, просрочен или не распознан.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIdentityUnavailable — identity-сервис недоступен.
	ErrIdentityUnavailable = errors.New("identity service unavailable")
)

// Identity — проверенная личность вызывающего.
type Identity struct {
	// UserID — идентификатор пользователя.
	UserID string `json:"user_id"`

	// Admin — роль admin: нескоупленный доступ к чужим задачам.
	Admin bool `json:"admin"`
}

// Verifier проверяет bearer-токен и возвращает личность.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Client — HTTP-клиент identity-сервиса.
//
// Токен непрозрачен для оркестратора: одна синхронная проверка
// на запрос, без локального разбора и кеширования.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient создаёт клиент identity-сервиса.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify отправляет токен на проверку.
func (c *Client) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/verify", nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var id Identity
		if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
			return nil, fmt.Errorf("decode identity: %w", err)
		}
		if id.UserID == "" {
			return nil, ErrUnauthorized
		}
		return &id, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("%w: status %d", ErrIdentityUnavailable, resp.StatusCode)
	}
}

// StaticVerifier — Verifier для локальной разработки и тестов:
// токен принимается как есть и становится UserID.
type StaticVerifier struct {
	// AdminTokens — токены, получающие роль admin.
	AdminTokens map[string]bool
}

// Verify принимает любой непустой токен.
func (s *StaticVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	return &Identity{UserID: token, Admin: s.AdminTokens[token]}, nil
}
