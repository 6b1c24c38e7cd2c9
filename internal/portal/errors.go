package portal

// AuthError represents an authentication failure: rejected credentials, a
// redirect back to the login page, or a session that could not be activated.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// APIError represents a transport failure that exhausted retries or a
// recognized portal error page.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}
