package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/VaibhavPrasad23/PayRs/internal/model"
)

func TestAddPhoneFlow(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	svc := env.contactService()

	result, err := svc.RequestAdd(context.Background(), mentor, model.ContactPhone, "5551234567", "+1")
	if err != nil {
		t.Fatalf("RequestAdd failed: %v", err)
	}
	if strings.Contains(result.Message, "5551234567") {
		t.Errorf("message leaks the full number: %q", result.Message)
	}
	if len(env.dispatch.sent) != 1 || env.dispatch.sent[0].channel != "sms" {
		t.Fatalf("expected one sms dispatch, got %+v", env.dispatch.sent)
	}

	otp := env.dispatch.lastOTP()
	contact, err := svc.ConfirmAdd(context.Background(), mentor, otp, result.Token)
	if err != nil {
		t.Fatalf("ConfirmAdd failed: %v", err)
	}
	if !contact.Verified {
		t.Error("contact should be verified")
	}
	if !contact.Primary {
		t.Error("first contact of a kind should become primary")
	}
	if contact.CountryPrefix != "+1" {
		t.Errorf("prefix = %q, want +1", contact.CountryPrefix)
	}

	// Token is single use.
	if _, err := svc.ConfirmAdd(context.Background(), mentor, otp, result.Token); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("replay err = %v, want ErrInvalidOTP", err)
	}
}

func TestSecondContactIsNotPrimary(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c1", MentorID: "mentor-1", Kind: model.ContactPhone,
		Value: "5550000000", CountryPrefix: "+1", Verified: true, Primary: true,
	})
	svc := env.contactService()

	result, err := svc.RequestAdd(context.Background(), mentor, model.ContactPhone, "5551234567", "+1")
	if err != nil {
		t.Fatalf("RequestAdd failed: %v", err)
	}
	contact, err := svc.ConfirmAdd(context.Background(), mentor, env.dispatch.lastOTP(), result.Token)
	if err != nil {
		t.Fatalf("ConfirmAdd failed: %v", err)
	}
	if contact.Primary {
		t.Error("second contact should not be primary")
	}
}

func TestRequestAddConflict(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c1", MentorID: "mentor-2", Kind: model.ContactPhone,
		Value: "5551234567", CountryPrefix: "+1", Verified: true, Primary: true,
	})

	_, err := env.contactService().RequestAdd(context.Background(), mentor, model.ContactPhone, "5551234567", "+1")
	if !errors.Is(err, ErrContactConflict) {
		t.Fatalf("err = %v, want ErrContactConflict", err)
	}
}

func TestRequestAddSameNumberDifferentPrefix(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c1", MentorID: "mentor-2", Kind: model.ContactPhone,
		Value: "5551234567", CountryPrefix: "+1", Verified: true, Primary: true,
	})

	// A number is only taken within its own country prefix.
	result, err := env.contactService().RequestAdd(context.Background(), mentor, model.ContactPhone, "5551234567", "+44")
	if err != nil {
		t.Fatalf("RequestAdd failed: %v", err)
	}
	if result.Token == "" {
		t.Error("expected a verification token")
	}
}

func TestConfirmAddConflictAfterRequest(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	svc := env.contactService()

	result, err := svc.RequestAdd(context.Background(), mentor, model.ContactPhone, "5551234567", "+1")
	if err != nil {
		t.Fatalf("RequestAdd failed: %v", err)
	}

	// Someone else verifies the same number before we confirm.
	env.contacts.contacts = append(env.contacts.contacts, &model.Contact{
		ID: "c9", MentorID: "mentor-2", Kind: model.ContactPhone,
		Value: "5551234567", CountryPrefix: "+1", Verified: true, Primary: true,
	})

	if _, err := svc.ConfirmAdd(context.Background(), mentor, env.dispatch.lastOTP(), result.Token); !errors.Is(err, ErrContactConflict) {
		t.Fatalf("err = %v, want ErrContactConflict", err)
	}
}

func TestConfirmEmailMirrorsLoginAddress(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "old@example.com", "pw")
	svc := env.contactService()

	result, err := svc.RequestAdd(context.Background(), mentor, model.ContactEmail, "new@example.com", "")
	if err != nil {
		t.Fatalf("RequestAdd failed: %v", err)
	}
	if _, err := svc.ConfirmAdd(context.Background(), mentor, env.dispatch.lastOTP(), result.Token); err != nil {
		t.Fatalf("ConfirmAdd failed: %v", err)
	}
	if mentor.EmailAddress != "new@example.com" {
		t.Errorf("login address = %q, want new@example.com", mentor.EmailAddress)
	}
}

func TestMakePrimary(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	first := &model.Contact{
		ID: "c1", MentorID: "mentor-1", Kind: model.ContactPhone,
		Value: "5550000000", CountryPrefix: "+1", Verified: true, Primary: true,
	}
	second := &model.Contact{
		ID: "c2", MentorID: "mentor-1", Kind: model.ContactPhone,
		Value: "5551234567", CountryPrefix: "+1", Verified: true,
	}
	env.contacts.contacts = append(env.contacts.contacts, first, second)
	svc := env.contactService()

	promoted, err := svc.MakePrimary(context.Background(), mentor, model.ContactPhone, "c2")
	if err != nil {
		t.Fatalf("MakePrimary failed: %v", err)
	}
	if !promoted.Primary {
		t.Error("target should be primary")
	}
	if first.Primary {
		t.Error("previous primary should be demoted")
	}

	// Promoting the current primary is a no-op request.
	if _, err := svc.MakePrimary(context.Background(), mentor, model.ContactPhone, "c2"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.MakePrimary(context.Background(), mentor, model.ContactPhone, "missing"); !errors.Is(err, ErrContactNotLinked) {
		t.Fatalf("err = %v, want ErrContactNotLinked", err)
	}
}

func TestMakePrimaryEmailMirrorsLoginAddress(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "old@example.com", "pw")
	env.contacts.contacts = append(env.contacts.contacts,
		&model.Contact{ID: "c1", MentorID: "mentor-1", Kind: model.ContactEmail,
			Value: "old@example.com", Verified: true, Primary: true},
		&model.Contact{ID: "c2", MentorID: "mentor-1", Kind: model.ContactEmail,
			Value: "new@example.com", Verified: true},
	)

	if _, err := env.contactService().MakePrimary(context.Background(), mentor, model.ContactEmail, "c2"); err != nil {
		t.Fatalf("MakePrimary failed: %v", err)
	}
	if mentor.EmailAddress != "new@example.com" {
		t.Errorf("login address = %q, want new@example.com", mentor.EmailAddress)
	}
}

func TestRemoveContact(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	env.contacts.contacts = append(env.contacts.contacts,
		&model.Contact{ID: "c1", MentorID: "mentor-1", Kind: model.ContactPhone,
			Value: "5550000000", CountryPrefix: "+1", Verified: true, Primary: true},
		&model.Contact{ID: "c2", MentorID: "mentor-1", Kind: model.ContactPhone,
			Value: "5551234567", CountryPrefix: "+1", Verified: true},
	)
	svc := env.contactService()

	if err := svc.Remove(context.Background(), mentor, model.ContactPhone, "c1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("removing primary err = %v, want ErrForbidden", err)
	}
	if err := svc.Remove(context.Background(), mentor, model.ContactPhone, "c2"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := svc.Remove(context.Background(), mentor, model.ContactPhone, "c2"); !errors.Is(err, ErrContactNotLinked) {
		t.Fatalf("removing twice err = %v, want ErrContactNotLinked", err)
	}
}

func TestRequestAddValidation(t *testing.T) {
	env := newTestEnv()
	mentor := env.mentorWithPassword("mentor-1", "ada@example.com", "pw")
	svc := env.contactService()

	tests := []struct {
		name   string
		kind   model.ContactKind
		value  string
		prefix string
	}{
		{"phone with letters", model.ContactPhone, "55x1234567", "+1"},
		{"phone too short", model.ContactPhone, "555", "+1"},
		{"phone without prefix", model.ContactPhone, "5551234567", ""},
		{"email without at", model.ContactEmail, "ada.example.com", ""},
		{"email without domain dot", model.ContactEmail, "ada@example", ""},
		{"unknown kind", model.ContactKind("fax"), "5551234567", "+1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.RequestAdd(context.Background(), mentor, tt.kind, tt.value, tt.prefix); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}
