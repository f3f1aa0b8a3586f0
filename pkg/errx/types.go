package errx

// Type categorizes an error for transport mapping and logging.
type Type string

const (
	// TypeInternal represents unexpected internal failures
	TypeInternal Type = "INTERNAL"

	// TypeValidation represents malformed or rejected input
	TypeValidation Type = "VALIDATION"

	// TypeAuthorization represents authentication/authorization failures
	TypeAuthorization Type = "AUTHORIZATION"

	// TypeNotFound represents missing resources
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict represents state conflicts (duplicates, bad transitions)
	TypeConflict Type = "CONFLICT"

	// TypeBusiness represents domain rule violations
	TypeBusiness Type = "BUSINESS"

	// TypeRateLimited represents exhausted quotas or rate limits
	TypeRateLimited Type = "RATE_LIMITED"

	// TypeExternal represents failures in external collaborators
	TypeExternal Type = "EXTERNAL"
)

// String returns the string representation of the error type.
func (t Type) String() string {
	return string(t)
}

// httpStatus maps an error type to a default HTTP status code.
func httpStatus(t Type) int {
	switch t {
	case TypeValidation:
		return 400
	case TypeAuthorization:
		return 401
	case TypeNotFound:
		return 404
	case TypeConflict:
		return 409
	case TypeBusiness:
		return 422
	case TypeRateLimited:
		return 429
	case TypeExternal:
		return 502
	default:
		return 500
	}
}
