package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func testResolver(t *testing.T) *CapabilityResolver {
	t.Helper()
	r, err := NewCapabilityResolver(DefaultPolicies())
	if err != nil {
		t.Fatalf("NewCapabilityResolver: %v", err)
	}
	return r
}

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: roles,
	}
}

// runJWT executes the middleware and returns the principal seen by the handler.
func runJWT(t *testing.T, header string) (*Principal, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Principal
	handler := func(c echo.Context) error {
		seen = PrincipalFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}
	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey}, testResolver(t))(handler)(c)
	return seen, err
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", want)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != want {
		t.Errorf("expected %d, got %d", want, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeaderIsAnonymous(t *testing.T) {
	p, err := runJWT(t, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected no principal, got %+v", p)
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runJWT(t, tt.header)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("user-123", "user"), testSigningKey)

	p, err := runJWT(t, "Bearer "+tokenStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.ID != "user-123" {
		t.Fatalf("expected principal user-123, got %+v", p)
	}
	if !p.Has(CanSubmit) {
		t.Error("user role should grant submit")
	}
	if p.Has(CanReview) || p.Has(CanViewQueue) {
		t.Error("user role should not grant review capabilities")
	}
}

func TestJWTMiddleware_SingleRoleClaim(t *testing.T) {
	claims := validClaims("admin-1")
	claims.Role = "admin"
	tokenStr := createTestToken(t, claims, testSigningKey)

	p, err := runJWT(t, "Bearer "+tokenStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range AllCapabilities {
		if !p.Has(c) {
			t.Errorf("admin should hold %s", c)
		}
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims("user-123", "user")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	tokenStr := createTestToken(t, claims, testSigningKey)

	_, err := runJWT(t, "Bearer "+tokenStr)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("user-123", "user"), []byte("another-key"))

	_, err := runJWT(t, "Bearer "+tokenStr)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MissingSubject(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("", "user"), testSigningKey)

	_, err := runJWT(t, "Bearer "+tokenStr)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestClaims_AllRoles(t *testing.T) {
	c := Claims{Role: "Admin", Roles: []string{"admin", " reviewer ", ""}}
	got := c.AllRoles()
	if len(got) != 2 || got[0] != "admin" || got[1] != "reviewer" {
		t.Errorf("AllRoles() = %v", got)
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		roles      string
		wantID     string
		wantReview bool
	}{
		{"defaults to admin", "", "", "dev-user", true},
		{"header override", "patient-7", "user", "patient-7", false},
		{"reviewer list", "mod-1", "reviewer, user", "mod-1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != "" {
				req.Header.Set(DevUserHeader, tt.user)
			}
			if tt.roles != "" {
				req.Header.Set(DevRolesHeader, tt.roles)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			var seen *Principal
			h := DevAuthMiddleware(testResolver(t))(func(c echo.Context) error {
				seen = PrincipalFromContext(c.Request().Context())
				return nil
			})
			if err := h(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen == nil || seen.ID != tt.wantID {
				t.Fatalf("expected principal %s, got %+v", tt.wantID, seen)
			}
			if seen.Has(CanReview) != tt.wantReview {
				t.Errorf("CanReview = %v, want %v", seen.Has(CanReview), tt.wantReview)
			}
		})
	}
}

func TestDevAuthMiddleware_LeavesBearerAlone(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	c := e.NewContext(req, httptest.NewRecorder())

	h := DevAuthMiddleware(testResolver(t))(func(c echo.Context) error {
		if p := PrincipalFromContext(c.Request().Context()); p != nil {
			t.Errorf("expected no dev principal, got %+v", p)
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKeySet_FetchAndCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"keys":[{"kty":"RSA","kid":"k1","n":"AQAB","e":"AQAB"},{"kty":"EC","kid":"k2"}]}`))
	}))
	defer srv.Close()

	ks := NewKeySet(srv.URL, time.Minute)
	ctx := t.Context()
	if _, err := ks.Key(ctx, "k1"); err != nil {
		t.Fatalf("Key(k1): %v", err)
	}
	if _, err := ks.Key(ctx, "k1"); err != nil {
		t.Fatalf("Key(k1) cached: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected 1 fetch, got %d", hits)
	}
	if _, err := ks.Key(ctx, "k2"); err == nil {
		t.Error("expected error for non-RSA key")
	}
	if hits != 2 {
		t.Errorf("expected refresh on unknown kid, got %d fetches", hits)
	}
}

func TestDiscoverJWKSURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"issuer":"x","jwks_uri":"https://idp.example.com/keys"}`))
	}))
	defer srv.Close()

	got, err := DiscoverJWKSURL(t.Context(), srv.URL+"/")
	if err != nil {
		t.Fatalf("DiscoverJWKSURL: %v", err)
	}
	if got != "https://idp.example.com/keys" {
		t.Errorf("got %q", got)
	}
}
