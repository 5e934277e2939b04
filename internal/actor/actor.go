// Package actor resolves the authenticated caller of a write operation.
package actor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/tracechain/internal/config"
	"go.uber.org/fx"
)

// Actor is an authenticated user. It is never persisted by the pipeline.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// RoleString joins the roles for log and context fields.
func (a Actor) RoleString() string {
	return strings.Join(a.Roles, ",")
}

var (
	ErrMissingToken = errors.New("missing_token")
	ErrInvalidToken = errors.New("invalid_token")
)

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && a.ID != ""
}

// Claims is the bearer token payload.
type Claims struct {
	jwt.RegisteredClaims

	Roles []string `json:"roles"`
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var Module = fx.Module("actor",
	fx.Provide(NewAuthenticator),
)

func NewAuthenticator(cfg config.Config) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("AUTH_JWT_SECRET is required in production")
		}
		secret = "tracechain-dev-secret"
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.AuthJWTIssuer),
		now:    time.Now,
	}, nil
}

// AuthenticateBearer parses token and returns the actor it names. Roles are
// lower cased and deduplicated.
func (a *Authenticator) AuthenticateBearer(token string) (Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Actor{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || strings.TrimSpace(claims.Subject) == "" {
		return Actor{}, ErrInvalidToken
	}

	return Actor{ID: strings.TrimSpace(claims.Subject), Roles: NormalizeRoles(claims.Roles)}, nil
}

// Issue signs a token for actor. It backs the development token command and tests.
func (a *Authenticator) Issue(actor Actor, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: actor.Roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
