package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed     = fmt.Errorf("authentication failed")
	ErrAuthExpired    = fmt.Errorf("catalog credential expired")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// Catalog errors
	ErrUpstreamUnavailable = fmt.Errorf("catalog unavailable")
	ErrNotFound            = fmt.Errorf("catalog resource not found")

	// Store errors
	ErrStoreConflict  = fmt.Errorf("store write conflict")
	ErrUserNotFound   = fmt.Errorf("user not found")
	ErrArtistNotFound = fmt.Errorf("artist not found")

	// Pipeline errors
	ErrSyncInProgress = fmt.Errorf("library sync already running")
	ErrScanInProgress = fmt.Errorf("release scan already running")
	ErrMailFailed     = fmt.Errorf("mail delivery failed")

	// Input validation errors
	ErrValidation          = fmt.Errorf("validation failed")
	ErrConfirmCodeMismatch = fmt.Errorf("confirmation code does not match")
	ErrNoEmail             = fmt.Errorf("user has no email address")
	ErrMissingArgument     = fmt.Errorf("missing required argument")
)
