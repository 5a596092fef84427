package scylla

import (
	"context"

	"github.com/VaibhavPrasad23/PayRs/internal/model"
)

// AccountRepository is the persistence surface for mentor accounts.
// Services depend on this interface so storage can be substituted in tests.
type AccountRepository interface {
	GetByID(ctx context.Context, mentorID string) (*model.Mentor, error)
	GetByEmail(ctx context.Context, emailAddress string) (*model.Mentor, error)
	Create(ctx context.Context, mentor *model.Mentor) error
	UpdatePassword(ctx context.Context, mentor *model.Mentor, encodedHash string) error
	UpdateTwoFactor(ctx context.Context, mentor *model.Mentor, totpKey string, method model.TwoFactorMethod) error
	UpdateEmailAddress(ctx context.Context, mentor *model.Mentor, emailAddress string) error
}

// ContactRepository is the persistence surface for phone and email
// contact records.
type ContactRepository interface {
	ListByMentor(ctx context.Context, mentor *model.Mentor, kind model.ContactKind) ([]*model.Contact, error)
	GetByID(ctx context.Context, mentor *model.Mentor, kind model.ContactKind, contactID string) (*model.Contact, error)
	VerifiedPrimary(ctx context.Context, mentor *model.Mentor, kind model.ContactKind) (*model.Contact, error)
	OwnerOfVerifiedValue(ctx context.Context, kind model.ContactKind, value, countryPrefix string) (string, error)
	CreateVerified(ctx context.Context, mentor *model.Mentor, contact *model.Contact) error
	SetPrimary(ctx context.Context, mentor *model.Mentor, target *model.Contact, current []*model.Contact) error
	Delete(ctx context.Context, mentor *model.Mentor, contact *model.Contact) error
}
