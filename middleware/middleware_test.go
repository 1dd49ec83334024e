package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("secret"))
	secured := app.Group("/s", UserContextMiddleware())
	secured.Get("/me", func(c *fiber.Ctx) error { return c.SendString(c.Locals("user_id").(string)) })
	secured.Get("/admin", RequireRole("admin"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	return app
}

func status(t *testing.T, app *fiber.App, path string, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestGatewayToken(t *testing.T) {
	app := newApp()
	tests := []struct {
		name  string
		auth  string
		wants int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong", "Bearer nope", fiber.StatusUnauthorized},
		{"bearer", "Bearer secret", fiber.StatusOK},
		{"raw", "secret", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{"X-User-ID": "u1"}
			if tt.auth != "" {
				headers["Authorization"] = tt.auth
			}
			if got := status(t, app, "/s/me", headers); got != tt.wants {
				t.Errorf("status = %d, want %d", got, tt.wants)
			}
		})
	}
}

func TestUserContextAndRoles(t *testing.T) {
	app := newApp()
	auth := "Bearer secret"

	if got := status(t, app, "/s/me", map[string]string{"Authorization": auth}); got != fiber.StatusUnauthorized {
		t.Errorf("missing user id status = %d", got)
	}
	if got := status(t, app, "/s/admin", map[string]string{"Authorization": auth, "X-User-ID": "u1", "X-User-Roles": "user"}); got != fiber.StatusForbidden {
		t.Errorf("non-admin status = %d", got)
	}
	if got := status(t, app, "/s/admin", map[string]string{"Authorization": auth, "X-User-ID": "u1", "X-User-Roles": "user, Admin"}); got != fiber.StatusNoContent {
		t.Errorf("admin status = %d", got)
	}
}
