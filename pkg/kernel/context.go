package kernel

// AuthContext is the request-scoped authentication context injected by the
// transport layer. It replaces any ambient session state: every operation
// that needs the caller's identity receives it explicitly.
type AuthContext struct {
	UserID   *UserID  `json:"user_id"`
	OrgID    OrgID    `json:"org_id"`
	Email    string   `json:"email"`
	Role     string   `json:"role"`
	Services []string `json:"services"`
	IsAPIKey bool     `json:"is_api_key"`
}

// IsValid reports whether the context identifies a caller.
func (ac *AuthContext) IsValid() bool {
	if ac.IsAPIKey {
		return !ac.OrgID.IsEmpty()
	}
	return ac.UserID != nil && !ac.UserID.IsEmpty() && !ac.OrgID.IsEmpty()
}

// IsAdmin reports whether the caller holds the admin role.
func (ac *AuthContext) IsAdmin() bool {
	return !ac.IsAPIKey && ac.Role == "admin"
}

// HasService reports whether the caller is entitled to a catalog service.
// User sessions carry the full organization entitlement; API keys carry the
// subset granted at issuance.
func (ac *AuthContext) HasService(serviceID string) bool {
	for _, s := range ac.Services {
		if s == serviceID {
			return true
		}
	}
	return false
}

// ContextKey is the type for values stored in context.Context and fiber locals.
type ContextKey string

const (
	// AuthContextKey stores the *AuthContext of the request
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey stores the request correlation ID
	RequestIDKey ContextKey = "request_id"
)
