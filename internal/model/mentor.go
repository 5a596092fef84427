package model

import "time"

// TwoFactorMethod is the second factor configured on a mentor account.
type TwoFactorMethod string

const (
	TwoFactorNone  TwoFactorMethod = "NONE"
	TwoFactorTOTP  TwoFactorMethod = "TOTP"
	TwoFactorSMS   TwoFactorMethod = "SMS"
	TwoFactorEmail TwoFactorMethod = "EMAIL"
)

// ValidTwoFactorMethod reports whether m is one of the known methods.
func ValidTwoFactorMethod(m TwoFactorMethod) bool {
	switch m {
	case TwoFactorNone, TwoFactorTOTP, TwoFactorSMS, TwoFactorEmail:
		return true
	}
	return false
}

// Mentor is a platform account. EmailAddress is denormalized from the
// primary verified email contact; legacy accounts may carry an address
// without a matching contact record. The json tags exist for the cache
// round-trip; API responses go through Profile instead.
type Mentor struct {
	ID           string          `json:"id"`
	Bucket       int             `json:"bucket"`
	Username     string          `json:"username"`
	Name         string          `json:"name"`
	EmailAddress string          `json:"emailAddress"`
	PasswordHash string          `json:"passwordHash"`
	TOTPKey      string          `json:"totpKey"`
	TwoFactor    TwoFactorMethod `json:"twoFactor"`
	IsActive     bool            `json:"isActive"`
	Suspended    bool            `json:"suspended"`
	ToBeDeleted  bool            `json:"toBeDeleted"`
	IsAdmin      bool            `json:"isAdmin"`
	AllowedIPs   []string        `json:"allowedIps,omitempty"`
	DeniedIPs    []string        `json:"deniedIps,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// MentorProfile is the client-facing shape of an account. Credentials,
// moderation flags and IP lists never leave the service.
type MentorProfile struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	Name         string          `json:"name"`
	EmailAddress string          `json:"emailAddress"`
	TwoFactor    TwoFactorMethod `json:"twoFactor"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Profile strips the sensitive fields for API responses.
func (m *Mentor) Profile() *MentorProfile {
	return &MentorProfile{
		ID:           m.ID,
		Username:     m.Username,
		Name:         m.Name,
		EmailAddress: m.EmailAddress,
		TwoFactor:    m.TwoFactor,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ContactKind distinguishes the two contact channels.
type ContactKind string

const (
	ContactPhone ContactKind = "phone"
	ContactEmail ContactKind = "email"
)

// Contact is a phone number or email address attached to a mentor.
// Value holds the email address, or the national phone number with
// CountryPrefix set for phones.
type Contact struct {
	ID            string      `json:"id"`
	MentorID      string      `json:"-"`
	Kind          ContactKind `json:"-"`
	Value         string      `json:"value"`
	CountryPrefix string      `json:"countryPrefix,omitempty"`
	Verified      bool        `json:"verified"`
	Primary       bool        `json:"primary"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// SecurityEvent is an audit record appended to the analytics store.
type SecurityEvent struct {
	MentorID  string
	Event     string
	Outcome   string
	IP        string
	Detail    string
	CreatedAt time.Time
}

const (
	EventLogin          = "login"
	EventLogout         = "logout"
	EventOTPIssued      = "otp_issued"
	EventOTPVerified    = "otp_verified"
	EventPasswordChange = "password_change"
	EventTwoFactor      = "two_factor_change"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
