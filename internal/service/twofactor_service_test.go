package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/VaibhavPrasad23/PayRs/internal/model"
)

func TestRequestChallengeSMS(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorSMS
	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c1", MentorID: "mentor-1", Kind: model.ContactPhone,
		Value: "5551234567", CountryPrefix: "+1", Verified: true, Primary: true,
	})

	result, err := env.twoFactorService().RequestChallenge(context.Background(), mentor, "", "")
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	if result.Method != model.TwoFactorSMS {
		t.Errorf("method = %q, want SMS", result.Method)
	}
	if result.Token == "" {
		t.Error("expected a challenge token")
	}
	if strings.Contains(result.Message, "5551234567") {
		t.Errorf("message leaks the full number: %q", result.Message)
	}
	if len(env.dispatch.sent) != 1 || env.dispatch.sent[0].channel != "sms" {
		t.Fatalf("expected one sms dispatch, got %+v", env.dispatch.sent)
	}
}

func TestRequestChallengeSMSWithoutPhone(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorSMS

	if _, err := env.twoFactorService().RequestChallenge(context.Background(), mentor, "", ""); !errors.Is(err, ErrContactNotLinked) {
		t.Fatalf("err = %v, want ErrContactNotLinked", err)
	}
}

func TestRequestChallengeEmailFallsBackToLoginAddress(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "augusta@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorEmail

	result, err := env.twoFactorService().RequestChallenge(context.Background(), mentor, "", "")
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	if len(env.dispatch.sent) != 1 || env.dispatch.sent[0].target != "augusta@example.com" {
		t.Fatalf("expected dispatch to the login address, got %+v", env.dispatch.sent)
	}
	if strings.Contains(result.Message, "augusta@example.com") {
		t.Errorf("message leaks the full address: %q", result.Message)
	}
}

func TestRequestChallengeTOTPNeedsNoDelivery(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorTOTP
	mentor.TOTPKey = "SECRET"

	result, err := env.twoFactorService().RequestChallenge(context.Background(), mentor, "", "")
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	if result.Token != "" {
		t.Error("totp challenges should not carry a token")
	}
	if len(env.dispatch.sent) != 0 {
		t.Error("totp challenges should not dispatch anything")
	}
}

func TestRequestChallengeWithoutMethod(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")

	if _, err := env.twoFactorService().RequestChallenge(context.Background(), mentor, "", ""); !errors.Is(err, ErrTwoFactorNotConfigured) {
		t.Fatalf("err = %v, want ErrTwoFactorNotConfigured", err)
	}
}

func TestVerifyChallengeWithToken(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorEmail
	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c1", MentorID: "mentor-1", Kind: model.ContactEmail,
		Value: "ada@example.com", Verified: true, Primary: true,
	})
	svc := env.twoFactorService()

	challenge, err := svc.RequestChallenge(context.Background(), mentor, "", "")
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	otp := env.dispatch.lastOTP()

	if _, err := svc.VerifyChallenge(context.Background(), mentor, "000000", challenge.Token); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("wrong code err = %v, want ErrInvalidOTP", err)
	}

	session, err := svc.VerifyChallenge(context.Background(), mentor, otp, challenge.Token)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	claims, err := env.sessions.Decode(session)
	if err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if claims.Pending2FA {
		t.Error("settled session should not be pending")
	}

	// Consumed tokens cannot be replayed.
	if _, err := svc.VerifyChallenge(context.Background(), mentor, otp, challenge.Token); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("replay err = %v, want ErrInvalidOTP", err)
	}
}

func TestVerifyChallengeRejectsForeignToken(t *testing.T) {
	env := newTestEnv()
	victim := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	victim.TwoFactor = model.TwoFactorEmail
	attacker := env.mentorWithPassword("mentor-2", "eve@example.com", "pw")
	attacker.TwoFactor = model.TwoFactorEmail
	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c1", MentorID: "mentor-1", Kind: model.ContactEmail,
		Value: "ada@example.com", Verified: true, Primary: true,
	})
	svc := env.twoFactorService()

	challenge, err := svc.RequestChallenge(context.Background(), victim, "", "")
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	otp := env.dispatch.lastOTP()

	if _, err := svc.VerifyChallenge(context.Background(), attacker, otp, challenge.Token); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("err = %v, want ErrInvalidOTP for a token minted for another account", err)
	}
}

func TestVerifyChallengeTOTP(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "PayRs", AccountName: "ada@example.com"})
	if err != nil {
		t.Fatalf("failed to generate totp key: %v", err)
	}
	mentor.TwoFactor = model.TwoFactorTOTP
	mentor.TOTPKey = key.Secret()

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatalf("failed to compute code: %v", err)
	}

	session, err := env.twoFactorService().VerifyChallenge(context.Background(), mentor, code, "")
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if session == "" {
		t.Error("expected a session token")
	}
}

func TestVerifyChallengeWithoutTokenOrTOTP(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorSMS

	if _, err := env.twoFactorService().VerifyChallenge(context.Background(), mentor, "123456", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestProvisionAndConfirmTotp(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	svc := env.twoFactorService()

	provision, err := svc.ProvisionTotpSecret(context.Background(), mentor)
	if err != nil {
		t.Fatalf("ProvisionTotpSecret failed: %v", err)
	}
	if provision.Secret == "" || provision.Token == "" || provision.QRImage == "" {
		t.Fatalf("incomplete provision: %+v", provision)
	}
	if mentor.TOTPKey != "" {
		t.Error("secret must not be stored before confirmation")
	}

	code, err := totp.GenerateCode(provision.Secret, time.Now())
	if err != nil {
		t.Fatalf("failed to compute code: %v", err)
	}

	if _, err := svc.ConfirmTotpSecret(context.Background(), mentor, "000000", provision.Token); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("wrong code err = %v, want ErrInvalidOTP", err)
	}
	if _, err := svc.ConfirmTotpSecret(context.Background(), mentor, code, provision.Token); err != nil {
		t.Fatalf("ConfirmTotpSecret failed: %v", err)
	}
	if mentor.TOTPKey != provision.Secret {
		t.Error("secret should be stored after confirmation")
	}
	if mentor.TwoFactor != model.TwoFactorTOTP {
		t.Errorf("method = %q, want TOTP", mentor.TwoFactor)
	}

	// A second provision attempt is rejected now.
	if _, err := svc.ProvisionTotpSecret(context.Background(), mentor); !errors.Is(err, ErrTotpAlreadyConfigured) {
		t.Fatalf("err = %v, want ErrTotpAlreadyConfigured", err)
	}
}

func TestRevokeTotpFallsBackToEmail(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorTOTP
	mentor.TOTPKey = "SECRET"
	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c1", MentorID: "mentor-1", Kind: model.ContactEmail,
		Value: "ada@example.com", Verified: true, Primary: true,
	})

	fallback, err := env.twoFactorService().RevokeTotpSecret(context.Background(), mentor)
	if err != nil {
		t.Fatalf("RevokeTotpSecret failed: %v", err)
	}
	if fallback != model.TwoFactorEmail {
		t.Errorf("fallback = %q, want EMAIL", fallback)
	}
	if mentor.TOTPKey != "" {
		t.Error("secret should be cleared")
	}
}

func TestRevokeTotpWithoutEmailDisables(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorTOTP
	mentor.TOTPKey = "SECRET"

	fallback, err := env.twoFactorService().RevokeTotpSecret(context.Background(), mentor)
	if err != nil {
		t.Fatalf("RevokeTotpSecret failed: %v", err)
	}
	if fallback != model.TwoFactorNone {
		t.Errorf("fallback = %q, want NONE", fallback)
	}
}

func TestEnableRequiresVerifiedContact(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	svc := env.twoFactorService()

	if err := svc.Enable(context.Background(), mentor, model.TwoFactorSMS); !errors.Is(err, ErrTwoFactorNotConfigured) {
		t.Fatalf("sms without phone err = %v, want ErrTwoFactorNotConfigured", err)
	}
	if err := svc.Enable(context.Background(), mentor, model.TwoFactorTOTP); !errors.Is(err, ErrTwoFactorNotConfigured) {
		t.Fatalf("totp without secret err = %v, want ErrTwoFactorNotConfigured", err)
	}
	if err := svc.Enable(context.Background(), mentor, "CARRIER_PIGEON"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("unknown method err = %v, want ErrInvalidRequest", err)
	}

	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c1", MentorID: "mentor-1", Kind: model.ContactPhone,
		Value: "5551234567", CountryPrefix: "+1", Verified: true, Primary: true,
	})
	if err := svc.Enable(context.Background(), mentor, model.TwoFactorSMS); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if mentor.TwoFactor != model.TwoFactorSMS {
		t.Errorf("method = %q, want SMS", mentor.TwoFactor)
	}
}

func TestDisableClearsTotpSecret(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorTOTP
	mentor.TOTPKey = "SECRET"

	if err := env.twoFactorService().Disable(context.Background(), mentor); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if mentor.TwoFactor != model.TwoFactorNone {
		t.Errorf("method = %q, want NONE", mentor.TwoFactor)
	}
	if mentor.TOTPKey != "" {
		t.Error("disable should clear the authenticator secret")
	}
}

func TestRequestChallengeMethodOverride(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "augusta@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorSMS
	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c1", MentorID: "mentor-1", Kind: model.ContactPhone,
		Value: "5551234567", CountryPrefix: "+1", Verified: true, Primary: true,
	})

	result, err := env.twoFactorService().RequestChallenge(context.Background(), mentor, model.TwoFactorEmail, "")
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	if result.Method != model.TwoFactorEmail {
		t.Errorf("method = %q, want EMAIL", result.Method)
	}
	if len(env.dispatch.sent) != 1 || env.dispatch.sent[0].channel != "email" {
		t.Fatalf("expected one email dispatch, got %+v", env.dispatch.sent)
	}

	if _, err := env.twoFactorService().RequestChallenge(context.Background(), mentor, "CARRIER_PIGEON", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("unknown method err = %v, want ErrInvalidRequest", err)
	}
}

func TestRequestChallengeExplicitContact(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorSMS
	env.contacts.contacts = append(env.contacts.contacts,
		&model.Contact{
			ID: "c1", MentorID: "mentor-1", Kind: model.ContactPhone,
			Value: "5551234567", CountryPrefix: "+1", Verified: true, Primary: true,
		},
		&model.Contact{
			ID: "c2", MentorID: "mentor-1", Kind: model.ContactPhone,
			Value: "5559876543", CountryPrefix: "+1", Verified: true,
		},
		&model.Contact{
			ID: "c3", MentorID: "mentor-1", Kind: model.ContactPhone,
			Value: "5550001111", CountryPrefix: "+1",
		})
	svc := env.twoFactorService()

	if _, err := svc.RequestChallenge(context.Background(), mentor, "", "c2"); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	if last := env.dispatch.sent[len(env.dispatch.sent)-1]; last.target != "+15559876543" {
		t.Errorf("dispatched to %q, want the chosen number", last.target)
	}

	if _, err := svc.RequestChallenge(context.Background(), mentor, "", "c3"); !errors.Is(err, ErrContactNotLinked) {
		t.Fatalf("unverified contact err = %v, want ErrContactNotLinked", err)
	}
	if _, err := svc.RequestChallenge(context.Background(), mentor, "", "someone-elses"); !errors.Is(err, ErrContactNotLinked) {
		t.Fatalf("unknown contact err = %v, want ErrContactNotLinked", err)
	}
}

func TestRequestChallengeExplicitEmailSkipsFallback(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "augusta@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorEmail

	// The login-address fallback only applies when no record was named.
	if _, err := env.twoFactorService().RequestChallenge(context.Background(), mentor, "", "c-missing"); !errors.Is(err, ErrContactNotLinked) {
		t.Fatalf("err = %v, want ErrContactNotLinked", err)
	}
	if len(env.dispatch.sent) != 0 {
		t.Error("nothing should be dispatched for an unknown contact")
	}
}

func TestRequestChallengeTOTPWithoutSecret(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	mentor.TwoFactor = model.TwoFactorTOTP

	if _, err := env.twoFactorService().RequestChallenge(context.Background(), mentor, "", ""); !errors.Is(err, ErrTwoFactorNotConfigured) {
		t.Fatalf("err = %v, want ErrTwoFactorNotConfigured", err)
	}
}

func TestConfirmTotpReVerifyCompletesLogin(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "PayRs", AccountName: "ada@example.com"})
	if err != nil {
		t.Fatalf("failed to generate totp key: %v", err)
	}
	mentor.TwoFactor = model.TwoFactorTOTP
	mentor.TOTPKey = key.Secret()
	svc := env.twoFactorService()

	if _, err := svc.ConfirmTotpSecret(context.Background(), mentor, "000000", ""); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("wrong code err = %v, want ErrInvalidOTP", err)
	}

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatalf("failed to compute code: %v", err)
	}
	session, err := svc.ConfirmTotpSecret(context.Background(), mentor, code, "")
	if err != nil {
		t.Fatalf("ConfirmTotpSecret failed: %v", err)
	}
	if session == "" {
		t.Fatal("expected a session token on the re-verify path")
	}
	claims, err := env.sessions.Decode(session)
	if err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if claims.Pending2FA {
		t.Error("session should not be pending after re-verify")
	}
	if mentor.TOTPKey != key.Secret() {
		t.Error("re-verify must not rewrite the stored secret")
	}
}
