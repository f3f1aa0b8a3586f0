package iamsrv

import (
	"context"

	"github.com/gridworks/gridcore/pkg/asyncx"
	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/iam/org/orgsrv"
	"github.com/gridworks/gridcore/pkg/iam/policy"
	"github.com/gridworks/gridcore/pkg/iam/session"
	"github.com/gridworks/gridcore/pkg/iam/user"
	"github.com/gridworks/gridcore/pkg/logx"
	"github.com/gridworks/gridcore/pkg/subscription"
)

// SignInService drives the full sign-in flow: organization resolution from
// the email domain, policy enforcement, and session issuance.
type SignInService struct {
	resolver *orgsrv.Resolver
	userRepo user.Repository
	enforcer *policy.Enforcer
	sessions *session.JWTService
	subRepo  subscription.Repository
}

func NewSignInService(
	resolver *orgsrv.Resolver,
	userRepo user.Repository,
	enforcer *policy.Enforcer,
	sessions *session.JWTService,
	subRepo subscription.Repository,
) *SignInService {
	return &SignInService{
		resolver: resolver,
		userRepo: userRepo,
		enforcer: enforcer,
		sessions: sessions,
		subRepo:  subRepo,
	}
}

// SignInResult is a successful sign-in: the signed session token plus the
// decoded claims for the response body.
type SignInResult struct {
	Token  string          `json:"token"`
	Claims *session.Claims `json:"claims"`
}

// SignIn authenticates a user. The attempted provider is what the caller's
// IdP flow used; the organization's policy decides whether it is acceptable.
func (s *SignInService) SignIn(
	ctx context.Context,
	email string,
	attempted iam.Provider,
	clientIP string,
	mfa *policy.MFAAssertion,
) (*SignInResult, error) {
	o, err := s.resolver.ResolveOrganization(ctx, email)
	if err != nil {
		return nil, err
	}

	// The subscription lookup only feeds the services claim, so it can
	// overlap the user lookup.
	subFut := asyncx.Run(func() (*subscription.Subscription, error) {
		return s.subRepo.FindByOrg(ctx, o.ID)
	})

	u, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.OrgID != o.ID {
		return nil, user.ErrUserNotFound()
	}

	decision := s.enforcer.AuthorizeSignIn(ctx, u, o, attempted, clientIP, mfa)
	if !decision.Allowed {
		return nil, policy.ErrPolicyDenied(decision.Reason)
	}

	var services []string
	if sub, err := subFut.Await(); err == nil && sub.Status == subscription.StatusActive {
		services = sub.ServiceIDs
	}

	token, claims, err := s.sessions.Issue(u, o, services)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.TouchLastLogin(ctx, u.ID); err != nil {
		logx.WithError(err).WithField("user_id", u.ID).Debug("Failed to update last login")
	}

	logx.WithFields(logx.Fields{
		"user_id": u.ID,
		"org_id":  o.ID,
	}).Info("✅ User signed in")

	return &SignInResult{Token: token, Claims: claims}, nil
}

// SignOut revokes the presented session token.
func (s *SignInService) SignOut(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// Verify validates a session token and returns its claims.
func (s *SignInService) Verify(ctx context.Context, token string) (*session.Claims, error) {
	return s.sessions.Validate(ctx, token)
}

// Whoami returns the user and organization behind a set of claims.
func (s *SignInService) Whoami(ctx context.Context, claims *session.Claims) (*user.User, *org.Organization, error) {
	o, err := s.resolver.OrgByID(ctx, claims.OrgID)
	if err != nil {
		return nil, nil, err
	}
	u, err := s.userRepo.FindByID(ctx, claims.UserID, claims.OrgID)
	if err != nil {
		return nil, nil, err
	}
	return u, o, nil
}
