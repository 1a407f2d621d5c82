package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/domain"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokenManager("secret", 15)

	token, expiresAt, err := tokens.GenerateToken("t1", "agent-1", domain.RoleAgent)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := tokens.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{TenantID: "t1", UserID: "agent-1", Role: domain.RoleAgent}, claims.Actor())
}

func TestParseTokenRejectsBadClaims(t *testing.T) {
	tokens := NewTokenManager("secret", 15)
	sign := func(claims *Claims, method jwt.SigningMethod, key any) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]string{
		"unknown role": sign(&Claims{TenantID: "t1", Role: "ROOT", RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: future}}, jwt.SigningMethodHS256, []byte("secret")),
		"no tenant":    sign(&Claims{Role: domain.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: future}}, jwt.SigningMethodHS256, []byte("secret")),
		"no subject":   sign(&Claims{TenantID: "t1", Role: domain.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}, jwt.SigningMethodHS256, []byte("secret")),
		"expired":      sign(&Claims{TenantID: "t1", Role: domain.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}, jwt.SigningMethodHS256, []byte("secret")),
		"other method": sign(&Claims{TenantID: "t1", Role: domain.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: future}}, jwt.SigningMethodHS512, []byte("secret")),
		"other secret": sign(&Claims{TenantID: "t1", Role: domain.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: future}}, jwt.SigningMethodHS256, []byte("nope")),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.ParseToken(token)
			assert.Error(t, err)
		})
	}
}

func newAuthApp(tokens *TokenManager, allowed ...domain.Role) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var domainErr *apperrors.DomainError
			if errors.As(err, &domainErr) {
				return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
			}
			return fiber.DefaultErrorHandler(c, err)
		},
	})
	app.Get("/me", NewAuthMiddleware(tokens).Handle, RequireRole(allowed...), func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.JSON(fiber.Map{"user": actor.UserID, "tenant": c.Locals(TenantKey)})
	})
	return app
}

func get(t *testing.T, app *fiber.App, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestAuthMiddlewareAndRoles(t *testing.T) {
	tokens := NewTokenManager("secret", 15)
	agent, _, err := tokens.GenerateToken("t1", "agent-1", domain.RoleAgent)
	require.NoError(t, err)
	kiosk, _, err := tokens.GenerateToken("t1", "kiosk-1", domain.RoleKiosk)
	require.NoError(t, err)

	staffOnly := newAuthApp(tokens, domain.RoleAgent, domain.RoleAdmin)
	assert.Equal(t, http.StatusOK, get(t, staffOnly, "Bearer "+agent))
	assert.Equal(t, http.StatusOK, get(t, staffOnly, "bearer "+agent))
	assert.Equal(t, http.StatusForbidden, get(t, staffOnly, "Bearer "+kiosk))
	assert.Equal(t, http.StatusUnauthorized, get(t, staffOnly, ""))
	assert.Equal(t, http.StatusUnauthorized, get(t, staffOnly, "Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, get(t, staffOnly, "Bearer garbage"))

	anyone := newAuthApp(tokens)
	assert.Equal(t, http.StatusOK, get(t, anyone, "Bearer "+kiosk))
}

func TestRequireRoleWithoutActor(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperrors.ToDomainError(err).HTTPStatus).SendString("")
		},
	})
	app.Get("/open", RequireRole(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/open", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
