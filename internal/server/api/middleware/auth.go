package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// SessionCookie carries the JWT for browser clients that cannot set an
// Authorization header, including the WebSocket handshake.
const SessionCookie = "cs_session"

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
)

func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func GetUserRole(ctx context.Context) string {
	v, _ := ctx.Value(UserRoleKey).(string)
	return v
}

// GenerateJWT mints an HS256 token carrying the user id and role.
func GenerateJWT(userID, role, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(expiry).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates an HS256 token and returns its subject and role.
func ParseToken(tokenStr, secret string) (userID, role string, err error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", errors.New("invalid claims")
	}
	userID, _ = claims["sub"].(string)
	role, _ = claims["role"].(string)
	if userID == "" {
		return "", "", errors.New("missing subject")
	}
	return userID, role, nil
}

// Auth authenticates API requests with a JWT, from the Authorization header
// or the session cookie, and stores the identity on the request context.
func Auth(jwtSecret string) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		echoCtx := humaecho.Unwrap(ctx)

		setCtx := func(userID, role string) {
			r := echoCtx.Request()
			newCtx := context.WithValue(r.Context(), UserIDKey, userID)
			newCtx = context.WithValue(newCtx, UserRoleKey, role)
			echoCtx.SetRequest(r.WithContext(newCtx))
		}

		if auth := ctx.Header("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			userID, role, err := ParseToken(strings.TrimPrefix(auth, "Bearer "), jwtSecret)
			if err != nil {
				writeUnauthorized(ctx, "invalid token")
				return
			}
			setCtx(userID, role)
			next(ctx)
			return
		}

		if cookie, err := echoCtx.Cookie(SessionCookie); err == nil && cookie.Value != "" {
			userID, role, err := ParseToken(cookie.Value, jwtSecret)
			if err == nil {
				setCtx(userID, role)
				next(ctx)
				return
			}
			log.Debug().Err(err).Msg("session cookie rejected")
		}

		writeUnauthorized(ctx, "authentication required")
	}
}

// AdminOnly restricts an operation to admin users. Runs after Auth.
func AdminOnly() func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		echoCtx := humaecho.Unwrap(ctx)
		if GetUserRole(echoCtx.Request().Context()) != "admin" {
			writeForbidden(ctx, "admin access required")
			return
		}
		next(ctx)
	}
}

func writeUnauthorized(ctx huma.Context, msg string) {
	ctx.SetStatus(http.StatusUnauthorized)
	ctx.SetHeader("Content-Type", "application/json")
	_ = json.NewEncoder(ctx.BodyWriter()).Encode(huma.ErrorModel{
		Title:  http.StatusText(http.StatusUnauthorized),
		Status: http.StatusUnauthorized,
		Detail: msg,
	})
}

func writeForbidden(ctx huma.Context, msg string) {
	ctx.SetStatus(http.StatusForbidden)
	ctx.SetHeader("Content-Type", "application/json")
	_ = json.NewEncoder(ctx.BodyWriter()).Encode(huma.ErrorModel{
		Title:  http.StatusText(http.StatusForbidden),
		Status: http.StatusForbidden,
		Detail: msg,
	})
}
