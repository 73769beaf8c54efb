package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/resolvent-dev/resolvent/internal/authz"
)

// PrincipalMiddleware decodes a bearer token's claims into the
// operation principal. Requests without a token proceed anonymously;
// requests with an invalid token are refused. Token issuance lives
// outside this system entirely.
func PrincipalMiddleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == header {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			principal, err := principalFromToken(tokenString, secret)
			if err != nil {
				logger.Debug("rejected bearer token", zap.Error(err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(authz.WithPrincipal(r.Context(), principal)))
		})
	}
}

func principalFromToken(tokenString, secret string) (authz.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verify exact signing method to prevent algorithm confusion
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return authz.Principal{}, err
	}
	if !token.Valid {
		return authz.Principal{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return authz.Principal{}, fmt.Errorf("invalid token claims")
	}

	principal := authz.Principal{Claims: claims}
	if sub, ok := claims["sub"].(string); ok {
		principal.ID = sub
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				principal.Roles = append(principal.Roles, role)
			}
		}
	}
	return principal, nil
}
