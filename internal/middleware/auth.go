// Package middleware содержит HTTP middleware магазина игровых кодов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

type contextKey string

const principalKey contextKey = "principal"

const (
	authCookieName = "auth_token"
	authTokenTTL   = 30 * 24 * time.Hour
)

// PrincipalResolver загружает роль пользователя по идентификатору из токена.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, accountID string) (model.Principal, error)
}

// AuthMiddleware проверяет подписанный токен и кладёт Principal в контекст запроса.
type AuthMiddleware struct {
	secretKey []byte
	resolver  PrincipalResolver
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthMiddleware создаёт AuthMiddleware. При пустом секрете генерируется случайный ключ,
// и токены перестают быть действительными после перезапуска.
func NewAuthMiddleware(secret string, resolver PrincipalResolver, logger *zap.Logger) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("generate auth key: " + err.Error())
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		resolver:  resolver,
		logger:    logger,
		now:       time.Now,
	}
}

// Middleware принимает токен из cookie auth_token либо из заголовка Authorization: Bearer.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		accountID, ok := a.parseToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		p, err := a.resolver.ResolvePrincipal(r.Context(), accountID)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrAccountNotFound):
			writeError(w, http.StatusUnauthorized, "account not found")
			return
		case errors.Is(err, model.ErrAccountBanned):
			writeError(w, http.StatusForbidden, "account is banned")
			return
		default:
			a.logger.Error("resolve principal", zap.String("account_id", accountID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin пропускает только администраторов. Используется после Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !p.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IssueToken выпускает токен для accountID, ставит его в cookie и возвращает.
func (a *AuthMiddleware) IssueToken(w http.ResponseWriter, accountID string) string {
	expires := a.now().Add(authTokenTTL)
	token := a.sign(accountID, expires.Unix())

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Authorization", "Bearer "+token)

	return token
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(authCookieName); err == nil {
		return c.Value
	}
	return ""
}

// Формат токена: <accountID>.<unix expiry>.<hex hmac>.
func (a *AuthMiddleware) sign(accountID string, expires int64) string {
	payload := accountID + "." + strconv.FormatInt(expires, 10)
	return payload + "." + hex.EncodeToString(a.mac(payload))
}

func (a *AuthMiddleware) mac(payload string) []byte {
	m := hmac.New(sha256.New, a.secretKey)
	m.Write([]byte(payload))
	return m.Sum(nil)
}

func (a *AuthMiddleware) parseToken(token string) (string, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", false
	}

	signature, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", false
	}
	if !hmac.Equal(signature, a.mac(parts[0]+"."+parts[1])) {
		return "", false
	}

	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || a.now().Unix() >= expires {
		return "", false
	}

	return parts[0], true
}

// GetPrincipalFromContext извлекает аутентифицированного пользователя из контекста запроса.
func GetPrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok
}

// WithPrincipal кладёт пользователя в контекст. Нужен для тестов обработчиков.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
