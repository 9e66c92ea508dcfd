package token

import "errors"

var (
	// ErrRecordNotFound indicates no token record exists for the given jti
	ErrRecordNotFound = errors.New("token record not found")

	// ErrTokenExpired indicates the token's signature verified but its
	// expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenMalformed indicates the token could not be parsed or its
	// signature did not verify.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenRevoked indicates the token's record was revoked or inactive
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenTypeMismatch indicates a refresh token was presented where an
	// access token was expected, or the reverse.
	ErrTokenTypeMismatch = errors.New("token type mismatch")

	// ErrSecretRequired indicates the manager was constructed without a
	// signing secret.
	ErrSecretRequired = errors.New("signing secret is required")

	// ErrUnsupportedAlgorithm indicates the configured signing algorithm is
	// not one of HS256, HS384, or HS512.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)
