package session_test

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/session"
	"github.com/gridworks/gridcore/pkg/iam/session/sessioninfra"
	"github.com/gridworks/gridcore/pkg/iam/user"
)

func newTestApp(t *testing.T) (*fiber.App, *session.JWTService) {
	t.Helper()
	svc := session.NewJWTService(testSecret, time.Hour, "",
		sessioninfra.NewLRURevocationList(128, time.Hour))
	mw := session.NewMiddleware(svc)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *errx.Error
			if errors.As(err, &appErr) {
				return c.Status(appErr.HTTPStatus).JSON(appErr)
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	app.Get("/me", mw.Authenticate(), func(c *fiber.Ctx) error {
		return c.JSON(session.AuthFromCtx(c))
	})
	app.Get("/admin", mw.Authenticate(), mw.RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/trading", mw.Authenticate(), mw.RequireService("trading"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app, svc
}

func issueFor(t *testing.T, svc *session.JWTService, role user.Role, services []string) string {
	t.Helper()
	u, o := testSubjects()
	u.Role = role
	token, _, err := svc.Issue(u, o, services)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestAuthenticate(t *testing.T) {
	app, svc := newTestApp(t)
	token := issueFor(t, svc, user.RoleDeveloper, nil)

	if code := get(t, app, "/me", token); code != fiber.StatusOK {
		t.Fatalf("authenticated request = %d", code)
	}
	if code := get(t, app, "/me", ""); code != fiber.StatusUnauthorized {
		t.Fatalf("missing token = %d, want 401", code)
	}
	if code := get(t, app, "/me", "garbage"); code != fiber.StatusUnauthorized {
		t.Fatalf("garbage token = %d, want 401", code)
	}
}

func TestRequireAdmin(t *testing.T) {
	app, svc := newTestApp(t)

	if code := get(t, app, "/admin", issueFor(t, svc, user.RoleAdmin, nil)); code != fiber.StatusOK {
		t.Fatalf("admin = %d", code)
	}
	if code := get(t, app, "/admin", issueFor(t, svc, user.RoleDeveloper, nil)); code != fiber.StatusForbidden {
		t.Fatalf("developer on admin route = %d, want 403", code)
	}
}

func TestRequireService(t *testing.T) {
	app, svc := newTestApp(t)

	if code := get(t, app, "/trading", issueFor(t, svc, user.RoleDeveloper, []string{"trading"})); code != fiber.StatusOK {
		t.Fatalf("entitled caller = %d", code)
	}
	if code := get(t, app, "/trading", issueFor(t, svc, user.RoleDeveloper, []string{"banking"})); code != fiber.StatusForbidden {
		t.Fatalf("unentitled caller = %d, want 403", code)
	}
}
