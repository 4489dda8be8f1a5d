package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс, который реализуют и консоль, и воркер
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Типы для ключей контекста (избегаем коллизий со строковыми ключами)
type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyClaims ctxKey = "claims"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			ctx = context.WithValue(ctx, ctxKeyUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID безопасно достает ID авторизованного пользователя из контекста.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return id
	}
	return ""
}

// Claims возвращает полные claims запроса (nil, если запрос не авторизован).
func Claims(ctx context.Context) *domain.CustomClaims {
	if c, ok := ctx.Value(ctxKeyClaims).(*domain.CustomClaims); ok {
		return c
	}
	return nil
}

// WithClaims кладет claims в контекст напрямую. Используется в тестах хендлеров.
func WithClaims(ctx context.Context, claims *domain.CustomClaims) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClaims, claims)
	return context.WithValue(ctx, ctxKeyUserID, claims.UserID)
}
