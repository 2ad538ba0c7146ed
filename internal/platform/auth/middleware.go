package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims is the identity provider's token. Older tokens carry a single
// "role"; newer ones carry "roles".
type Claims struct {
	jwt.RegisteredClaims
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// AllRoles merges the single and multi role claims without duplicates.
func (c *Claims) AllRoles() []string {
	seen := make(map[string]bool, len(c.Roles)+1)
	var out []string
	for _, r := range append([]string{c.Role}, c.Roles...) {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey enables HS256 verification for development and tests.
	SigningKey []byte
}

// JWTMiddleware verifies the bearer token and stores the resolved Principal
// on the request context. Requests without a token pass through anonymous;
// handlers decide whether an identity is required. JWKSURL must already be
// resolved (see DiscoverJWKSURL) unless SigningKey is set.
func JWTMiddleware(cfg JWTConfig, resolver *CapabilityResolver) echo.MiddlewareFunc {
	var keys *KeySet
	if len(cfg.SigningKey) == 0 {
		keys = NewKeySet(cfg.JWKSURL, defaultJWKSCacheTTL)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			ctx := c.Request().Context()
			claims := &Claims{}
			var keyfunc jwt.Keyfunc
			if keys != nil {
				keyfunc = keys.Keyfunc(ctx)
			} else {
				keyfunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
			}
			parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, keyfunc, opts...)
			if err != nil || !parsed.Valid || claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			p, err := resolver.Resolve(claims.Subject, claims.AllRoles())
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "resolve capabilities").SetInternal(err)
			}
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}

const (
	DevUserHeader  = "X-Dev-User"
	DevRolesHeader = "X-Dev-Roles"
)

// DevAuthMiddleware gives unauthenticated requests a local principal. The
// X-Dev-User and X-Dev-Roles headers pick the identity so several actors
// can be exercised against one server. Requests that carry a bearer token
// are left to the JWT middleware.
func DevAuthMiddleware(resolver *CapabilityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Header.Get(echo.HeaderAuthorization) != "" || PrincipalFromContext(req.Context()) != nil {
				return next(c)
			}

			id := strings.TrimSpace(req.Header.Get(DevUserHeader))
			if id == "" {
				id = "dev-user"
			}
			roles := []string{"admin"}
			if raw := req.Header.Get(DevRolesHeader); raw != "" {
				roles = roles[:0]
				for _, r := range strings.Split(raw, ",") {
					if r = strings.TrimSpace(r); r != "" {
						roles = append(roles, r)
					}
				}
			}

			p, err := resolver.Resolve(id, roles)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "resolve capabilities").SetInternal(err)
			}
			c.SetRequest(req.WithContext(WithPrincipal(req.Context(), p)))
			return next(c)
		}
	}
}
