package service

import (
	"context"
	"time"

	"github.com/VaibhavPrasad23/PayRs/internal/model"
)

// AccountCache is the slice of the Redis user cache the services need.
type AccountCache interface {
	SetAccount(mentor *model.Mentor, ttl time.Duration) error
	GetAccount(mentorID string) (*model.Mentor, error)
	Invalidate(mentorID string) error
}

// TokenDenylist records consumed one-time token signatures.
type TokenDenylist interface {
	MarkTokenUsed(signature string, ttl time.Duration) (bool, error)
}

// OTPDispatcher delivers one-time codes to the delivery workers.
type OTPDispatcher interface {
	SendSMSOTP(ctx context.Context, countryPrefix, phoneNumber, otp string) error
	SendEmailOTP(ctx context.Context, emailAddress, otp string) error
}

// EventRecorder accepts security events for asynchronous persistence.
type EventRecorder interface {
	Record(event model.SecurityEvent)
}
