package security

import "errors"

var (
	ErrPermissionDenied = errors.New("security: permission denied")
	ErrRateLimited      = errors.New("security: rate limit exceeded")
	ErrIPBlocked        = errors.New("security: origin ip is blocked")
	ErrSessionNotFound  = errors.New("security: session not found")
	ErrSessionExpired   = errors.New("security: session expired")
)
