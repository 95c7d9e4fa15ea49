package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

type actorKey struct{}

// Authenticator turns an HS256 bearer token into a domain.Actor. The subject
// claim is the user id; a "role" of "admin" or a true "is_admin" claim grants
// admin rights.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

var errUnauthenticated = errors.New("missing or invalid bearer token")

func (a *Authenticator) Actor(header string) (domain.Actor, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return domain.Actor{}, errUnauthenticated
	}

	claims := jwt.MapClaims{}
	token, err := a.parser.ParseWithClaims(parts[1], claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Actor{}, errUnauthenticated
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errUnauthenticated
	}

	admin := false
	if role, ok := claims["role"].(string); ok && strings.EqualFold(role, "admin") {
		admin = true
	}
	if flag, ok := claims["is_admin"].(bool); ok && flag {
		admin = true
	}
	return domain.Actor{ID: sub, Admin: admin}, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.Actor(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResp{Error: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(domain.Actor)
	return actor
}
