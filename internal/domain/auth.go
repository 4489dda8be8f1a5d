package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "admin": true или "workspace:<id>": true
	jwt.RegisteredClaims
}

// WorkspaceScope строит ключ scope для конкретного workspace.
func WorkspaceScope(workspaceID string) string {
	return "workspace:" + workspaceID
}

// AllowsWorkspace проверяет доступ пользователя к тенанту.
func (c *CustomClaims) AllowsWorkspace(workspaceID string) bool {
	if c.Scopes["admin"] {
		return true
	}
	return c.Scopes[WorkspaceScope(workspaceID)]
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Role         string          `json:"role"`
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
