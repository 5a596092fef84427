package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/repository/scylla"
	"github.com/VaibhavPrasad23/PayRs/internal/token"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

// AddContactResult carries the verification token and the masked
// delivery notice for a contact being added.
type AddContactResult struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// ContactService manages the verified phone and email records hanging
// off a mentor account.
type ContactService struct {
	accounts scylla.AccountRepository
	contacts scylla.ContactRepository
	otps     *token.OTPCodec
	cache    AccountCache
	denylist TokenDenylist
	dispatch OTPDispatcher
	events   EventRecorder
	cfg      *config.Config
}

func NewContactService(
	accounts scylla.AccountRepository,
	contacts scylla.ContactRepository,
	otps *token.OTPCodec,
	cache AccountCache,
	denylist TokenDenylist,
	dispatch OTPDispatcher,
	events EventRecorder,
	cfg *config.Config,
) *ContactService {
	return &ContactService{
		accounts: accounts,
		contacts: contacts,
		otps:     otps,
		cache:    cache,
		denylist: denylist,
		dispatch: dispatch,
		events:   events,
		cfg:      cfg,
	}
}

// List returns the account's contacts of one kind.
func (s *ContactService) List(ctx context.Context, account *model.Mentor, kind model.ContactKind) ([]*model.Contact, error) {
	contacts, err := s.contacts.ListByMentor(ctx, account, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

// RequestAdd starts verification of a new contact. A value already
// verified by any account, this one included, is a conflict.
func (s *ContactService) RequestAdd(ctx context.Context, account *model.Mentor, kind model.ContactKind, value, countryPrefix string) (*AddContactResult, error) {
	value = strings.TrimSpace(value)
	if err := validateContactValue(kind, value); err != nil {
		return nil, err
	}
	if kind == model.ContactPhone && countryPrefix == "" {
		return nil, ErrInvalidRequest
	}

	if _, err := s.contacts.OwnerOfVerifiedValue(ctx, kind, value, countryPrefix); err == nil {
		return nil, ErrContactConflict
	} else if !errors.Is(err, scylla.ErrNotFound) {
		return nil, fmt.Errorf("failed to check contact ownership: %w", err)
	}

	otp, signed, err := s.otps.Mint(map[string]string{
		"user":   account.ID,
		"kind":   string(kind),
		"value":  value,
		"prefix": countryPrefix,
	}, s.cfg.Auth.OTPTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to mint otp: %w", err)
	}

	var message string
	switch kind {
	case model.ContactPhone:
		if err := s.dispatch.SendSMSOTP(ctx, countryPrefix, value, otp); err != nil {
			return nil, fmt.Errorf("failed to dispatch otp: %w", err)
		}
		message = fmt.Sprintf("An OTP has been sent to %s", util.MaskPhone(countryPrefix, value))
	case model.ContactEmail:
		if err := s.dispatch.SendEmailOTP(ctx, value, otp); err != nil {
			return nil, fmt.Errorf("failed to dispatch otp: %w", err)
		}
		message = fmt.Sprintf("An OTP has been sent to %s", util.MaskEmail(value))
	}

	s.events.Record(model.SecurityEvent{
		MentorID: account.ID,
		Event:    model.EventOTPIssued,
		Outcome:  model.OutcomeSuccess,
		Detail:   "contact_add_" + string(kind),
	})
	return &AddContactResult{Token: signed, Message: message}, nil
}

// ConfirmAdd settles the verification OTP and persists the contact.
// The first verified contact of a kind becomes primary; a primary
// email is mirrored onto the account's login address.
func (s *ContactService) ConfirmAdd(ctx context.Context, account *model.Mentor, otp, signed string) (*model.Contact, error) {
	data, err := s.otps.Verify(otp, signed, func(data map[string]string) bool {
		kind := model.ContactKind(data["kind"])
		return data["user"] == account.ID && data["value"] != "" &&
			(kind == model.ContactPhone || kind == model.ContactEmail)
	})
	if err != nil {
		return nil, ErrInvalidOTP
	}

	fresh, err := s.denylist.MarkTokenUsed(token.Signature(signed), s.cfg.Auth.OTPTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to check token reuse: %w", err)
	}
	if !fresh {
		return nil, ErrInvalidOTP
	}

	kind := model.ContactKind(data["kind"])
	value := data["value"]

	// The value may have been claimed between request and confirm.
	if _, err := s.contacts.OwnerOfVerifiedValue(ctx, kind, value, data["prefix"]); err == nil {
		return nil, ErrContactConflict
	} else if !errors.Is(err, scylla.ErrNotFound) {
		return nil, fmt.Errorf("failed to check contact ownership: %w", err)
	}

	primary := false
	if _, err := s.contacts.VerifiedPrimary(ctx, account, kind); err != nil {
		if !errors.Is(err, scylla.ErrNotFound) {
			return nil, fmt.Errorf("failed to load primary contact: %w", err)
		}
		primary = true
	}

	contact := &model.Contact{
		Kind:          kind,
		Value:         value,
		CountryPrefix: data["prefix"],
		Primary:       primary,
	}
	if err := s.contacts.CreateVerified(ctx, account, contact); err != nil {
		return nil, fmt.Errorf("failed to store contact: %w", err)
	}

	if primary && kind == model.ContactEmail {
		if err := s.accounts.UpdateEmailAddress(ctx, account, value); err != nil {
			return nil, fmt.Errorf("failed to update login email: %w", err)
		}
	}

	if err := s.cache.Invalidate(account.ID); err != nil {
		util.Warn("Failed to invalidate account cache", zap.Error(err))
	}

	s.events.Record(model.SecurityEvent{
		MentorID: account.ID,
		Event:    model.EventOTPVerified,
		Outcome:  model.OutcomeSuccess,
		Detail:   "contact_add_" + string(kind),
	})
	util.Info("Contact verified",
		zap.String("mentor_id", account.ID),
		zap.String("kind", string(kind)),
		zap.Bool("primary", primary))
	return contact, nil
}

// MakePrimary promotes a verified, non-primary contact owned by the
// account. The previous primary is demoted in the same batch.
func (s *ContactService) MakePrimary(ctx context.Context, account *model.Mentor, kind model.ContactKind, contactID string) (*model.Contact, error) {
	target, err := s.contacts.GetByID(ctx, account, kind, contactID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrContactNotLinked
		}
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	if !target.Verified {
		return nil, ErrForbidden
	}
	if target.Primary {
		return nil, ErrInvalidRequest
	}

	current, err := s.contacts.ListByMentor(ctx, account, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	if err := s.contacts.SetPrimary(ctx, account, target, current); err != nil {
		return nil, fmt.Errorf("failed to set primary contact: %w", err)
	}

	if kind == model.ContactEmail {
		if err := s.accounts.UpdateEmailAddress(ctx, account, target.Value); err != nil {
			return nil, fmt.Errorf("failed to update login email: %w", err)
		}
	}

	if err := s.cache.Invalidate(account.ID); err != nil {
		util.Warn("Failed to invalidate account cache", zap.Error(err))
	}
	util.Info("Primary contact changed",
		zap.String("mentor_id", account.ID),
		zap.String("kind", string(kind)))
	return target, nil
}

// Remove deletes a non-primary contact owned by the account.
func (s *ContactService) Remove(ctx context.Context, account *model.Mentor, kind model.ContactKind, contactID string) error {
	contact, err := s.contacts.GetByID(ctx, account, kind, contactID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrContactNotLinked
		}
		return fmt.Errorf("failed to load contact: %w", err)
	}
	if contact.Primary {
		return ErrForbidden
	}

	if err := s.contacts.Delete(ctx, account, contact); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if err := s.cache.Invalidate(account.ID); err != nil {
		util.Warn("Failed to invalidate account cache", zap.Error(err))
	}
	return nil
}

func validateContactValue(kind model.ContactKind, value string) error {
	switch kind {
	case model.ContactPhone:
		if len(value) < 4 || len(value) > 15 {
			return ErrInvalidRequest
		}
		for _, r := range value {
			if r < '0' || r > '9' {
				return ErrInvalidRequest
			}
		}
	case model.ContactEmail:
		at := strings.Index(value, "@")
		if at < 1 || at == len(value)-1 || !strings.Contains(value[at:], ".") {
			return ErrInvalidRequest
		}
	default:
		return ErrInvalidRequest
	}
	return nil
}
