package errx

// Common constructors for one-off errors outside a module registry.

// Internal creates an internal server error.
func Internal(message string) *Error {
	return New(message, TypeInternal)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(message, TypeValidation)
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(message, TypeNotFound)
}

// Unauthorized creates an authorization error.
func Unauthorized(message string) *Error {
	return New(message, TypeAuthorization)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(message, TypeConflict)
}

// Business creates a business rule error.
func Business(message string) *Error {
	return New(message, TypeBusiness)
}

// RateLimited creates a quota/rate-limit error.
func RateLimited(message string) *Error {
	return New(message, TypeRateLimited)
}

// External creates an external collaborator error.
func External(message string) *Error {
	return New(message, TypeExternal)
}
