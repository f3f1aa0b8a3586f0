package iam

import (
	"net/http"

	"github.com/gridworks/gridcore/pkg/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthorized = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized")
	CodeInvalidToken = ErrRegistry.Register("INVALID_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired token")
	CodeAccessDenied = ErrRegistry.Register("ACCESS_DENIED", errx.TypeAuthorization, http.StatusForbidden, "Access denied")
)

func ErrUnauthorized() *errx.Error {
	return ErrRegistry.New(CodeUnauthorized)
}

func ErrInvalidToken() *errx.Error {
	return ErrRegistry.New(CodeInvalidToken)
}

func ErrAccessDenied() *errx.Error {
	return ErrRegistry.New(CodeAccessDenied)
}

// ============================================================================
// Sign-in Providers
// ============================================================================

// Provider is the closed set of supported sign-in providers. Policy checks
// switch over it exhaustively; it is never compared as a free-form string.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
	ProviderOkta      Provider = "okta"
	ProviderSAML      Provider = "saml"
)

// IsValid reports whether p is a supported provider.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGoogle, ProviderMicrosoft, ProviderOkta, ProviderSAML:
		return true
	default:
		return false
	}
}

// DisplayName returns the human-readable provider name.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderGoogle:
		return "Google Workspace"
	case ProviderMicrosoft:
		return "Microsoft Entra"
	case ProviderOkta:
		return "Okta"
	case ProviderSAML:
		return "SAML SSO"
	default:
		return "Unknown"
	}
}

// ParseProvider parses a provider identifier.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(s)
	return p, p.IsValid()
}
