package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

type contextKey string

const (
	// UserIDKey carries the authenticated subject identifier (sub).
	UserIDKey contextKey = "userID"
	// RolesKey carries the role claims resolved at the auth boundary.
	RolesKey contextKey = "roles"
)

// AuthMiddleware resolves the bearer token to a subject and role set once,
// before any core operation runs. Handlers never re-derive roles from the
// token.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		sub, roles, err := validateToken(parts[1])
		if err != nil || sub == "" {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, sub)
		ctx = context.WithValue(ctx, RolesKey, roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireManager gates manager-scoped routes. It must run after
// AuthMiddleware.
func RequireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsManager(r.Context()) {
			http.Error(w, "Manager role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserID returns the authenticated subject from the request context.
func UserID(ctx context.Context) string {
	sub, _ := ctx.Value(UserIDKey).(string)
	return sub
}

// IsManager reports whether the manager role claim was present on the token.
func IsManager(ctx context.Context) bool {
	roles, _ := ctx.Value(RolesKey).([]string)
	for _, role := range roles {
		if role == "careerforge:manager" {
			return true
		}
	}
	return false
}

// InternalKeyMiddleware protects machine-to-machine webhook routes with a
// shared secret header instead of a bearer token.
func InternalKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := viper.GetString("payments.internal_key")
		if expected == "" || r.Header.Get("X-Internal-Key") != expected {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validateToken(tokenString string) (string, []string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		return "", nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, fmt.Errorf("unexpected claims type")
	}

	var sub string
	if raw, ok := claims["sub"]; ok && raw != nil {
		sub = fmt.Sprintf("%v", raw)
	}

	var roles []string
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			roles = append(roles, fmt.Sprintf("%v", r))
		}
	}

	return sub, roles, nil
}
