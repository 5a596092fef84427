package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/repository/scylla"
	"github.com/VaibhavPrasad23/PayRs/internal/token"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

// ChallengeResult describes a started two-factor challenge. Token is
// empty for TOTP since the authenticator app holds the secret.
type ChallengeResult struct {
	Method  model.TwoFactorMethod `json:"method"`
	Token   string                `json:"token,omitempty"`
	Message string                `json:"message"`
}

// TotpProvision is handed to the client during authenticator setup.
// The token binds the generated secret to the mentor until confirmed.
type TotpProvision struct {
	Secret  string `json:"secret"`
	URL     string `json:"url"`
	QRImage string `json:"qrImage"`
	Token   string `json:"token"`
}

// TwoFactorService drives challenge issue/verify and method
// enrollment for TOTP, SMS and email.
type TwoFactorService struct {
	accounts scylla.AccountRepository
	contacts scylla.ContactRepository
	otps     *token.OTPCodec
	sessions *token.SessionCodec
	cache    AccountCache
	denylist TokenDenylist
	dispatch OTPDispatcher
	events   EventRecorder
	cfg      *config.Config
}

func NewTwoFactorService(
	accounts scylla.AccountRepository,
	contacts scylla.ContactRepository,
	otps *token.OTPCodec,
	sessions *token.SessionCodec,
	cache AccountCache,
	denylist TokenDenylist,
	dispatch OTPDispatcher,
	events EventRecorder,
	cfg *config.Config,
) *TwoFactorService {
	return &TwoFactorService{
		accounts: accounts,
		contacts: contacts,
		otps:     otps,
		sessions: sessions,
		cache:    cache,
		denylist: denylist,
		dispatch: dispatch,
		events:   events,
		cfg:      cfg,
	}
}

// RequestChallenge starts a challenge over method, defaulting to the
// account's configured one. SMS and email deliver a code to the
// verified primary contact, or to an explicitly chosen verified
// contact of the matching kind; TOTP needs no delivery.
func (s *TwoFactorService) RequestChallenge(ctx context.Context, account *model.Mentor, method model.TwoFactorMethod, contactID string) (*ChallengeResult, error) {
	if method == "" {
		method = account.TwoFactor
	}
	if !model.ValidTwoFactorMethod(method) {
		return nil, ErrInvalidRequest
	}

	switch method {
	case model.TwoFactorTOTP:
		if account.TOTPKey == "" {
			return nil, ErrTwoFactorNotConfigured
		}
		return &ChallengeResult{
			Method:  model.TwoFactorTOTP,
			Message: "Enter the code from your authenticator app",
		}, nil

	case model.TwoFactorSMS:
		contact, err := s.challengeContact(ctx, account, model.ContactPhone, contactID)
		if err != nil {
			return nil, err
		}
		otp, signed, err := s.mintChallenge(map[string]string{
			"user":          account.ID,
			"phoneNumber":   contact.Value,
			"countryPrefix": contact.CountryPrefix,
		})
		if err != nil {
			return nil, err
		}
		if err := s.dispatch.SendSMSOTP(ctx, contact.CountryPrefix, contact.Value, otp); err != nil {
			return nil, fmt.Errorf("failed to dispatch otp: %w", err)
		}
		s.recordIssued(account.ID, string(model.TwoFactorSMS))
		return &ChallengeResult{
			Method:  model.TwoFactorSMS,
			Token:   signed,
			Message: fmt.Sprintf("An OTP has been sent to %s", util.MaskPhone(contact.CountryPrefix, contact.Value)),
		}, nil

	case model.TwoFactorEmail:
		var emailAddress string
		if contactID != "" {
			contact, err := s.challengeContact(ctx, account, model.ContactEmail, contactID)
			if err != nil {
				return nil, err
			}
			emailAddress = contact.Value
		} else if contact, err := s.contacts.VerifiedPrimary(ctx, account, model.ContactEmail); err == nil {
			emailAddress = contact.Value
		} else if errors.Is(err, scylla.ErrNotFound) {
			// Accounts predating contact records challenge against the
			// registered login address.
			emailAddress = account.EmailAddress
		} else {
			return nil, fmt.Errorf("failed to load primary email: %w", err)
		}
		if emailAddress == "" {
			return nil, ErrContactNotLinked
		}
		otp, signed, err := s.mintChallenge(map[string]string{
			"user":         account.ID,
			"emailAddress": emailAddress,
		})
		if err != nil {
			return nil, err
		}
		if err := s.dispatch.SendEmailOTP(ctx, emailAddress, otp); err != nil {
			return nil, fmt.Errorf("failed to dispatch otp: %w", err)
		}
		s.recordIssued(account.ID, string(model.TwoFactorEmail))
		return &ChallengeResult{
			Method:  model.TwoFactorEmail,
			Token:   signed,
			Message: fmt.Sprintf("An OTP has been sent to %s", util.MaskEmail(emailAddress)),
		}, nil

	default:
		return nil, ErrTwoFactorNotConfigured
	}
}

// VerifyChallenge settles a pending challenge and issues a full
// session token. TOTP codes check against the stored secret; SMS and
// email codes check against the challenge token, which is consumed on
// success.
func (s *TwoFactorService) VerifyChallenge(ctx context.Context, account *model.Mentor, code, signed string) (string, error) {
	switch {
	case account.TwoFactor == model.TwoFactorTOTP:
		if account.TOTPKey == "" {
			return "", ErrTwoFactorNotConfigured
		}
		if !totp.Validate(code, account.TOTPKey) {
			s.recordVerify(account.ID, model.OutcomeFailure)
			return "", ErrInvalidOTP
		}

	case signed != "":
		_, err := s.otps.Verify(code, signed, func(data map[string]string) bool {
			return data["user"] == account.ID
		})
		if err != nil {
			s.recordVerify(account.ID, model.OutcomeFailure)
			return "", ErrInvalidOTP
		}
		fresh, err := s.denylist.MarkTokenUsed(token.Signature(signed), s.cfg.Auth.OTPTTL)
		if err != nil {
			return "", fmt.Errorf("failed to check token reuse: %w", err)
		}
		if !fresh {
			return "", ErrInvalidOTP
		}

	default:
		return "", ErrInvalidRequest
	}

	session, err := s.sessions.Issue(account.ID, false, account.TwoFactor)
	if err != nil {
		return "", fmt.Errorf("failed to issue session: %w", err)
	}

	s.recordVerify(account.ID, model.OutcomeSuccess)
	util.Info("Two-factor challenge verified",
		zap.String("mentor_id", account.ID),
		zap.String("method", string(account.TwoFactor)))
	return session, nil
}

// Enable switches the account to the given method. SMS and email need
// a verified primary contact of the matching kind; TOTP needs a
// confirmed authenticator secret.
func (s *TwoFactorService) Enable(ctx context.Context, account *model.Mentor, method model.TwoFactorMethod) error {
	if !model.ValidTwoFactorMethod(method) || method == model.TwoFactorNone {
		return ErrInvalidRequest
	}

	switch method {
	case model.TwoFactorTOTP:
		if account.TOTPKey == "" {
			return ErrTwoFactorNotConfigured
		}
	case model.TwoFactorSMS:
		if _, err := s.contacts.VerifiedPrimary(ctx, account, model.ContactPhone); err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return ErrTwoFactorNotConfigured
			}
			return fmt.Errorf("failed to load primary phone: %w", err)
		}
	case model.TwoFactorEmail:
		if _, err := s.contacts.VerifiedPrimary(ctx, account, model.ContactEmail); err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return ErrTwoFactorNotConfigured
			}
			return fmt.Errorf("failed to load primary email: %w", err)
		}
	}

	if err := s.accounts.UpdateTwoFactor(ctx, account, account.TOTPKey, method); err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}
	s.afterMethodChange(account, string(method))
	return nil
}

// Disable turns two-factor off and discards the authenticator secret,
// so TOTP needs a fresh setup to come back.
func (s *TwoFactorService) Disable(ctx context.Context, account *model.Mentor) error {
	if account.TwoFactor == model.TwoFactorNone {
		return ErrTwoFactorNotConfigured
	}
	if err := s.accounts.UpdateTwoFactor(ctx, account, "", model.TwoFactorNone); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}
	s.afterMethodChange(account, "disabled")
	return nil
}

// ProvisionTotpSecret generates an authenticator secret and the QR
// code to scan. Nothing is stored until ConfirmTotpSecret proves the
// client has the secret.
func (s *TwoFactorService) ProvisionTotpSecret(ctx context.Context, account *model.Mentor) (*TotpProvision, error) {
	if account.TOTPKey != "" {
		return nil, ErrTotpAlreadyConfigured
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Auth.TOTPIssuer,
		AccountName: account.EmailAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	signed, err := s.otps.Sign(map[string]string{
		"user":   account.ID,
		"secret": key.Secret(),
	}, s.cfg.Auth.TOTPSetupTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign setup token: %w", err)
	}

	return &TotpProvision{
		Secret:  key.Secret(),
		URL:     key.URL(),
		QRImage: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Token:   signed,
	}, nil
}

// ConfirmTotpSecret stores the provisioned secret after the client
// proves it with a live code, and flips the account to TOTP. When a
// secret is already persisted the code checks against it instead, and
// a settled session token is returned so a pending login completes
// here.
func (s *TwoFactorService) ConfirmTotpSecret(ctx context.Context, account *model.Mentor, code, signed string) (string, error) {
	if account.TOTPKey != "" {
		if !totp.Validate(code, account.TOTPKey) {
			s.recordVerify(account.ID, model.OutcomeFailure)
			return "", ErrInvalidOTP
		}
		session, err := s.sessions.Issue(account.ID, false, account.TwoFactor)
		if err != nil {
			return "", fmt.Errorf("failed to issue session: %w", err)
		}
		s.recordVerify(account.ID, model.OutcomeSuccess)
		return session, nil
	}

	if signed == "" {
		return "", ErrTwoFactorNotConfigured
	}
	data, err := s.otps.Decode(signed, func(data map[string]string) bool {
		return data["user"] == account.ID && data["secret"] != ""
	})
	if err != nil {
		return "", ErrInvalidOTP
	}
	if !totp.Validate(code, data["secret"]) {
		return "", ErrInvalidOTP
	}

	fresh, err := s.denylist.MarkTokenUsed(token.Signature(signed), s.cfg.Auth.TOTPSetupTTL)
	if err != nil {
		return "", fmt.Errorf("failed to check token reuse: %w", err)
	}
	if !fresh {
		return "", ErrInvalidOTP
	}

	if err := s.accounts.UpdateTwoFactor(ctx, account, data["secret"], model.TwoFactorTOTP); err != nil {
		return "", fmt.Errorf("failed to store totp secret: %w", err)
	}
	s.afterMethodChange(account, string(model.TwoFactorTOTP))
	return "", nil
}

// RevokeTotpSecret discards the authenticator secret. If a verified
// primary email exists the account falls back to email challenges,
// otherwise two-factor is switched off.
func (s *TwoFactorService) RevokeTotpSecret(ctx context.Context, account *model.Mentor) (model.TwoFactorMethod, error) {
	if account.TOTPKey == "" {
		return "", ErrTwoFactorNotConfigured
	}

	fallback := model.TwoFactorNone
	if account.TwoFactor == model.TwoFactorTOTP {
		if _, err := s.contacts.VerifiedPrimary(ctx, account, model.ContactEmail); err == nil {
			fallback = model.TwoFactorEmail
		} else if !errors.Is(err, scylla.ErrNotFound) {
			return "", fmt.Errorf("failed to load primary email: %w", err)
		}
	} else {
		fallback = account.TwoFactor
	}

	if err := s.accounts.UpdateTwoFactor(ctx, account, "", fallback); err != nil {
		return "", fmt.Errorf("failed to revoke totp secret: %w", err)
	}
	s.afterMethodChange(account, "totp_revoked")
	return fallback, nil
}

// challengeContact picks the delivery contact for a challenge: the
// explicitly named record when contactID is set, the verified primary
// otherwise. Unverified and foreign records read as not linked.
func (s *TwoFactorService) challengeContact(ctx context.Context, account *model.Mentor, kind model.ContactKind, contactID string) (*model.Contact, error) {
	if contactID != "" {
		contact, err := s.contacts.GetByID(ctx, account, kind, contactID)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return nil, ErrContactNotLinked
			}
			return nil, fmt.Errorf("failed to load contact: %w", err)
		}
		if !contact.Verified {
			return nil, ErrContactNotLinked
		}
		return contact, nil
	}

	contact, err := s.contacts.VerifiedPrimary(ctx, account, kind)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrContactNotLinked
		}
		return nil, fmt.Errorf("failed to load primary contact: %w", err)
	}
	return contact, nil
}

func (s *TwoFactorService) mintChallenge(data map[string]string) (otp, signed string, err error) {
	otp, signed, err = s.otps.Mint(data, s.cfg.Auth.OTPTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to mint otp: %w", err)
	}
	return otp, signed, nil
}

func (s *TwoFactorService) afterMethodChange(account *model.Mentor, detail string) {
	if err := s.cache.Invalidate(account.ID); err != nil {
		util.Warn("Failed to invalidate account cache", zap.Error(err))
	}
	s.events.Record(model.SecurityEvent{
		MentorID: account.ID,
		Event:    model.EventTwoFactor,
		Outcome:  model.OutcomeSuccess,
		Detail:   detail,
	})
}

func (s *TwoFactorService) recordIssued(mentorID, method string) {
	s.events.Record(model.SecurityEvent{
		MentorID: mentorID,
		Event:    model.EventOTPIssued,
		Outcome:  model.OutcomeSuccess,
		Detail:   method,
	})
}

func (s *TwoFactorService) recordVerify(mentorID, outcome string) {
	s.events.Record(model.SecurityEvent{
		MentorID: mentorID,
		Event:    model.EventOTPVerified,
		Outcome:  outcome,
	})
}
