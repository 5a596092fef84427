package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/hashing"
	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/repository/scylla"
	"github.com/VaibhavPrasad23/PayRs/internal/token"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

const (
	purposePasswordReset         = "password_reset"
	purposePasswordResetVerified = "password_reset_verified"

	resetVerifiedTTL = 10 * time.Minute
)

// LoginResult is what a successful password check hands back. When the
// account has a two-factor method the session token carries a pending
// flag and only the two-factor routes will accept it.
type LoginResult struct {
	Token      string                `json:"token"`
	Pending2FA bool                  `json:"pending2fa"`
	Method     model.TwoFactorMethod `json:"method,omitempty"`
}

// ChangePasswordParams covers both ways into a password change: a
// reset token from the forgot-password flow, or an authenticated
// session plus the old password.
type ChangePasswordParams struct {
	ResetToken  string
	Account     *model.Mentor
	OldPassword string
	NewPassword string
}

// AuthService implements credential checks, password recovery and
// session lifecycle.
type AuthService struct {
	accounts scylla.AccountRepository
	contacts scylla.ContactRepository
	hasher   *hashing.Hasher
	otps     *token.OTPCodec
	sessions *token.SessionCodec
	cache    AccountCache
	denylist TokenDenylist
	dispatch OTPDispatcher
	events   EventRecorder
	cfg      *config.Config
}

func NewAuthService(
	accounts scylla.AccountRepository,
	contacts scylla.ContactRepository,
	hasher *hashing.Hasher,
	otps *token.OTPCodec,
	sessions *token.SessionCodec,
	cache AccountCache,
	denylist TokenDenylist,
	dispatch OTPDispatcher,
	events EventRecorder,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		contacts: contacts,
		hasher:   hasher,
		otps:     otps,
		sessions: sessions,
		cache:    cache,
		denylist: denylist,
		dispatch: dispatch,
		events:   events,
		cfg:      cfg,
	}
}

// LoginWithPassword checks credentials and issues a session token.
// Accounts flagged for deletion, suspended or deactivated are rejected
// in that order, so the strongest state wins.
func (s *AuthService) LoginWithPassword(ctx context.Context, emailAddress, password, ip string) (*LoginResult, error) {
	account, _, err := s.lookupByEmail(ctx, emailAddress)
	if err != nil {
		return nil, err
	}

	ok, err := s.verifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.events.Record(model.SecurityEvent{
			MentorID: account.ID,
			Event:    model.EventLogin,
			Outcome:  model.OutcomeFailure,
			IP:       ip,
			Detail:   "wrong password",
		})
		return nil, ErrInvalidCredentials
	}

	switch {
	case account.ToBeDeleted:
		return nil, ErrAccountDeleted
	case account.Suspended:
		return nil, ErrAccountSuspended
	case !account.IsActive:
		return nil, ErrAccountInactive
	}

	pending := account.TwoFactor != model.TwoFactorNone
	signed, err := s.sessions.Issue(account.ID, pending, account.TwoFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	if err := s.cache.SetAccount(account, 0); err != nil {
		util.Warn("Failed to cache account after login", zap.Error(err))
	}

	s.events.Record(model.SecurityEvent{
		MentorID: account.ID,
		Event:    model.EventLogin,
		Outcome:  model.OutcomeSuccess,
		IP:       ip,
		Detail:   string(account.TwoFactor),
	})

	util.Info("Mentor logged in",
		zap.String("mentor_id", account.ID),
		zap.Bool("pending_2fa", pending))

	return &LoginResult{
		Token:      signed,
		Pending2FA: pending,
		Method:     account.TwoFactor,
	}, nil
}

// RecoveryIdentifier names the account starting password recovery:
// either an email address, or a phone number with its country prefix.
// Exactly one of the two must be given.
type RecoveryIdentifier struct {
	EmailAddress  string
	PhoneNumber   string
	CountryPrefix string
}

// ForgotPassword starts the password recovery flow. The response masks
// the destination so the endpoint does not confirm which addresses
// exist in full, and any failure to resolve an active account reads
// the same as an unknown one.
func (s *AuthService) ForgotPassword(ctx context.Context, id RecoveryIdentifier) (signed, message string, err error) {
	byEmail := id.EmailAddress != ""
	byPhone := id.PhoneNumber != ""
	if byEmail == byPhone || (byPhone && id.CountryPrefix == "") {
		return "", "", ErrInvalidRequest
	}

	var account *model.Mentor
	if byEmail {
		account, err = s.resolveByEmail(ctx, id.EmailAddress)
	} else {
		account, err = s.resolveByPhone(ctx, id.PhoneNumber, id.CountryPrefix)
	}
	if err != nil {
		return "", "", err
	}
	if account.ToBeDeleted || account.Suspended || !account.IsActive {
		return "", "", ErrInvalidUser
	}

	otp, signed, err := s.otps.Mint(map[string]string{
		"emailAddress": account.EmailAddress,
		"purpose":      purposePasswordReset,
	}, s.cfg.Auth.ResetTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to mint otp: %w", err)
	}

	if byEmail {
		if err := s.dispatch.SendEmailOTP(ctx, account.EmailAddress, otp); err != nil {
			return "", "", fmt.Errorf("failed to dispatch otp: %w", err)
		}
		message = fmt.Sprintf("An OTP has been sent to %s", util.MaskEmail(account.EmailAddress))
	} else {
		if err := s.dispatch.SendSMSOTP(ctx, id.CountryPrefix, id.PhoneNumber, otp); err != nil {
			return "", "", fmt.Errorf("failed to dispatch otp: %w", err)
		}
		message = fmt.Sprintf("An OTP has been sent to %s", util.MaskPhone(id.CountryPrefix, id.PhoneNumber))
	}

	s.events.Record(model.SecurityEvent{
		MentorID: account.ID,
		Event:    model.EventOTPIssued,
		Outcome:  model.OutcomeSuccess,
		Detail:   purposePasswordReset,
	})
	return signed, message, nil
}

// lookupByEmail resolves an account from an email address. The verified
// contact record is authoritative, so secondary addresses resolve too;
// the denormalized login address only matches accounts predating
// contact records. linked reports whether a contact row exists.
func (s *AuthService) lookupByEmail(ctx context.Context, emailAddress string) (account *model.Mentor, linked bool, err error) {
	var (
		owner    string
		denormed *model.Mentor
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, gerr := s.contacts.OwnerOfVerifiedValue(gctx, model.ContactEmail, emailAddress, "")
		if gerr != nil && !errors.Is(gerr, scylla.ErrNotFound) {
			return gerr
		}
		owner = id
		return nil
	})
	g.Go(func() error {
		m, gerr := s.accounts.GetByEmail(gctx, emailAddress)
		if gerr != nil && !errors.Is(gerr, scylla.ErrNotFound) {
			return gerr
		}
		denormed = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, fmt.Errorf("failed to resolve account: %w", err)
	}

	switch {
	case owner != "":
		if denormed != nil && denormed.ID == owner {
			return denormed, true, nil
		}
		account, err := s.accounts.GetByID(ctx, owner)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return nil, false, ErrInvalidUser
			}
			return nil, false, fmt.Errorf("failed to load account: %w", err)
		}
		return account, true, nil
	case denormed != nil:
		return denormed, false, nil
	default:
		return nil, false, ErrInvalidUser
	}
}

func (s *AuthService) resolveByEmail(ctx context.Context, emailAddress string) (*model.Mentor, error) {
	account, linked, err := s.lookupByEmail(ctx, emailAddress)
	if err != nil {
		return nil, err
	}

	// Accounts created before contact records existed have a login
	// email but no contact row. Backfill one so later flows see it.
	if !linked {
		contact := &model.Contact{
			Kind:    model.ContactEmail,
			Value:   account.EmailAddress,
			Primary: true,
		}
		if err := s.contacts.CreateVerified(ctx, account, contact); err != nil {
			util.Warn("Failed to backfill email contact",
				zap.String("mentor_id", account.ID), zap.Error(err))
		}
	}
	return account, nil
}

func (s *AuthService) resolveByPhone(ctx context.Context, phoneNumber, countryPrefix string) (*model.Mentor, error) {
	owner, err := s.contacts.OwnerOfVerifiedValue(ctx, model.ContactPhone, phoneNumber, countryPrefix)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrInvalidUser
		}
		return nil, fmt.Errorf("failed to resolve phone owner: %w", err)
	}

	account, err := s.accounts.GetByID(ctx, owner)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrInvalidUser
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

// VerifyForgotPasswordOTP consumes the recovery OTP and trades it for
// a short-lived reset token the password change endpoint accepts.
func (s *AuthService) VerifyForgotPasswordOTP(ctx context.Context, otp, signed string) (string, error) {
	data, err := s.otps.Verify(otp, signed, func(data map[string]string) bool {
		return data["purpose"] == purposePasswordReset && data["emailAddress"] != ""
	})
	if err != nil {
		return "", ErrInvalidOTP
	}

	fresh, err := s.denylist.MarkTokenUsed(token.Signature(signed), s.cfg.Auth.ResetTokenTTL)
	if err != nil {
		return "", fmt.Errorf("failed to check token reuse: %w", err)
	}
	if !fresh {
		return "", ErrInvalidOTP
	}

	reset, err := s.otps.Sign(map[string]string{
		"emailAddress": data["emailAddress"],
		"purpose":      purposePasswordResetVerified,
	}, resetVerifiedTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}

	s.events.Record(model.SecurityEvent{
		Event:   model.EventOTPVerified,
		Outcome: model.OutcomeSuccess,
		Detail:  purposePasswordReset,
	})
	return reset, nil
}

// ChangePassword updates the stored hash. Exactly one of ResetToken or
// Account must be set; the authenticated path additionally proves the
// old password.
func (s *AuthService) ChangePassword(ctx context.Context, params *ChangePasswordParams) error {
	if params.NewPassword == "" {
		return ErrInvalidRequest
	}

	account := params.Account
	switch {
	case params.ResetToken != "":
		data, err := s.otps.Decode(params.ResetToken, func(data map[string]string) bool {
			return data["purpose"] == purposePasswordResetVerified && data["emailAddress"] != ""
		})
		if err != nil {
			return ErrInvalidOTP
		}
		fresh, err := s.denylist.MarkTokenUsed(token.Signature(params.ResetToken), resetVerifiedTTL)
		if err != nil {
			return fmt.Errorf("failed to check token reuse: %w", err)
		}
		if !fresh {
			return ErrInvalidOTP
		}
		account, err = s.accounts.GetByEmail(ctx, data["emailAddress"])
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load account: %w", err)
		}

	case account != nil:
		ok, err := s.verifyPassword(params.OldPassword, account.PasswordHash)
		if err != nil {
			return fmt.Errorf("failed to verify password: %w", err)
		}
		if !ok {
			return ErrForbidden
		}

	default:
		return ErrInvalidRequest
	}

	same, err := s.verifyPassword(params.NewPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to compare passwords: %w", err)
	}
	if same {
		return ErrSameAsOld
	}

	result, err := s.hasher.Hash(params.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, account, result.Encode()); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.cache.Invalidate(account.ID); err != nil {
		util.Warn("Failed to invalidate account cache", zap.Error(err))
	}

	s.events.Record(model.SecurityEvent{
		MentorID: account.ID,
		Event:    model.EventPasswordChange,
		Outcome:  model.OutcomeSuccess,
	})
	util.Info("Password changed", zap.String("mentor_id", account.ID))
	return nil
}

// Logout drops the cached account and session state. The session token
// stays valid until expiry; the guard just reloads a cold account on
// the next request.
func (s *AuthService) Logout(ctx context.Context, account *model.Mentor) error {
	if err := s.cache.Invalidate(account.ID); err != nil {
		return fmt.Errorf("failed to clear session state: %w", err)
	}
	s.events.Record(model.SecurityEvent{
		MentorID: account.ID,
		Event:    model.EventLogout,
		Outcome:  model.OutcomeSuccess,
	})
	return nil
}

// RefreshSession re-issues a session token once it is past the refresh
// threshold, otherwise hands the same token back.
func (s *AuthService) RefreshSession(signed string) (string, bool, error) {
	fresh, rotated, err := s.sessions.Refresh(signed)
	if err != nil {
		return "", false, ErrInvalidSession
	}
	return fresh, rotated, nil
}

func (s *AuthService) verifyPassword(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}
	stored, err := hashing.ParseEncoded(encoded)
	if err != nil {
		return false, fmt.Errorf("corrupt password hash: %w", err)
	}
	return s.hasher.Verify(password, stored)
}
