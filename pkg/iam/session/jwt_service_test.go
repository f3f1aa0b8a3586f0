package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/iam/session"
	"github.com/gridworks/gridcore/pkg/iam/session/sessioninfra"
	"github.com/gridworks/gridcore/pkg/iam/user"
	"github.com/gridworks/gridcore/pkg/kernel"
)

const testSecret = "test-secret-key-for-sessions"

func testService(ttl time.Duration) *session.JWTService {
	revoked := sessioninfra.NewLRURevocationList(128, time.Hour)
	return session.NewJWTService(testSecret, ttl, "", revoked)
}

func testSubjects() (*user.User, *org.Organization) {
	u := &user.User{
		ID:    kernel.NewUserID("user-1"),
		OrgID: kernel.NewOrgID("org-1"),
		Email: "alice@test.example",
		Role:  user.RoleAdmin,
	}
	o := &org.Organization{
		ID:     kernel.NewOrgID("org-1"),
		Domain: "test.example",
	}
	return u, o
}

func TestIssueAndValidate(t *testing.T) {
	svc := testService(time.Hour)
	u, o := testSubjects()

	token, issued, err := svc.Issue(u, o, []string{"portfolio-analytics"})
	if err != nil {
		t.Fatal(err)
	}
	if token == "" || issued.TokenID == "" {
		t.Fatal("issued token missing token string or id")
	}

	claims, err := svc.Validate(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != u.ID || claims.OrgID != o.ID || claims.Email != u.Email {
		t.Fatalf("claims do not round-trip: %+v", claims)
	}
	if claims.Role != user.RoleAdmin {
		t.Fatalf("role = %q, want admin", claims.Role)
	}
	if len(claims.Services) != 1 || claims.Services[0] != "portfolio-analytics" {
		t.Fatalf("services claim = %v", claims.Services)
	}
}

func TestValidate_Expired(t *testing.T) {
	svc := testService(-time.Minute)
	u, o := testSubjects()

	token, _, err := svc.Issue(u, o, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Validate(context.Background(), token)
	if err == nil {
		t.Fatal("expected expiry error")
	}
	var appErr *errx.Error
	if !errors.As(err, &appErr) || appErr.Code != session.ErrCodeTokenExpired.Code {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}
}

func TestValidate_Tampered(t *testing.T) {
	svc := testService(time.Hour)
	u, o := testSubjects()

	token, _, err := svc.Issue(u, o, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Signed with a different key.
	other := session.NewJWTService("a-different-secret", time.Hour, "", nil)
	if _, err := other.Validate(context.Background(), token); err == nil {
		t.Fatal("expected invalid-token error for wrong key")
	}

	if _, err := svc.Validate(context.Background(), "not.a.token"); err == nil {
		t.Fatal("expected invalid-token error for garbage")
	}
}

func TestRevoke(t *testing.T) {
	svc := testService(time.Hour)
	u, o := testSubjects()

	token, _, err := svc.Issue(u, o, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Validate(context.Background(), token); err != nil {
		t.Fatalf("token invalid before revocation: %v", err)
	}

	if err := svc.Revoke(context.Background(), token); err != nil {
		t.Fatal(err)
	}

	_, err = svc.Validate(context.Background(), token)
	if err == nil {
		t.Fatal("revoked token still validates")
	}
	var appErr *errx.Error
	if !errors.As(err, &appErr) || appErr.Code != session.ErrCodeTokenRevoked.Code {
		t.Fatalf("expected TOKEN_REVOKED, got %v", err)
	}
}

func TestRevoke_ExpiredIsNoop(t *testing.T) {
	svc := testService(-time.Minute)
	u, o := testSubjects()

	token, _, err := svc.Issue(u, o, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Revoke(context.Background(), token); err != nil {
		t.Fatalf("revoking an expired token should succeed, got %v", err)
	}
}

func TestRevoke_DoesNotAffectOtherSessions(t *testing.T) {
	svc := testService(time.Hour)
	u, o := testSubjects()

	token1, _, _ := svc.Issue(u, o, nil)
	token2, _, _ := svc.Issue(u, o, nil)

	if err := svc.Revoke(context.Background(), token1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(context.Background(), token2); err != nil {
		t.Fatalf("revocation leaked to a sibling session: %v", err)
	}
}
