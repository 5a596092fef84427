package service

import "errors"

// Sentinel errors returned by the service layer. Handlers map these to
// HTTP status codes with errors.Is, so wrap them rather than replacing
// them when adding context.
var (
	// 400
	ErrInvalidUser        = errors.New("invalid user")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRequest     = errors.New("invalid request")

	// 401
	ErrAccountInactive  = errors.New("account is inactive")
	ErrAccountSuspended = errors.New("account is suspended")
	ErrAccountDeleted   = errors.New("account is scheduled for deletion")
	ErrInvalidSession   = errors.New("invalid or expired session")

	// 403
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidOTP             = errors.New("invalid otp or token")
	ErrTwoFactorNotConfigured = errors.New("two-factor method not configured")
	ErrContactNotLinked       = errors.New("contact is not linked to this account")
	ErrContactConflict        = errors.New("contact already in use")
	ErrTotpAlreadyConfigured  = errors.New("authenticator app already configured")

	// 404
	ErrNotFound = errors.New("not found")

	// 406
	ErrSameAsOld = errors.New("new password must differ from the old one")
)
