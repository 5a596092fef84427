package service

import (
	"context"
	"fmt"
	"time"

	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/hashing"
	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/repository/scylla"
	"github.com/VaibhavPrasad23/PayRs/internal/token"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			JWTSecret:        "test-signing-key",
			OTPDigits:        6,
			OTPTTL:           5 * time.Minute,
			ResetTokenTTL:    10 * time.Minute,
			TOTPSetupTTL:     5 * time.Minute,
			LoginValidity:    24 * time.Hour,
			RefreshThreshold: 12 * time.Hour,
			TOTPIssuer:       "PayRs",
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	}
}

type fakeAccountRepo struct {
	accounts map[string]*model.Mentor
	failNext error
}

func newFakeAccountRepo(mentors ...*model.Mentor) *fakeAccountRepo {
	repo := &fakeAccountRepo{accounts: make(map[string]*model.Mentor)}
	for _, m := range mentors {
		repo.accounts[m.ID] = m
	}
	return repo
}

func (r *fakeAccountRepo) GetByID(_ context.Context, mentorID string) (*model.Mentor, error) {
	if account, ok := r.accounts[mentorID]; ok {
		return account, nil
	}
	return nil, scylla.ErrNotFound
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, emailAddress string) (*model.Mentor, error) {
	for _, account := range r.accounts {
		if account.EmailAddress == emailAddress {
			return account, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (r *fakeAccountRepo) Create(_ context.Context, mentor *model.Mentor) error {
	r.accounts[mentor.ID] = mentor
	return nil
}

func (r *fakeAccountRepo) UpdatePassword(_ context.Context, mentor *model.Mentor, encodedHash string) error {
	if r.failNext != nil {
		return r.failNext
	}
	mentor.PasswordHash = encodedHash
	return nil
}

func (r *fakeAccountRepo) UpdateTwoFactor(_ context.Context, mentor *model.Mentor, totpKey string, method model.TwoFactorMethod) error {
	mentor.TOTPKey = totpKey
	mentor.TwoFactor = method
	return nil
}

func (r *fakeAccountRepo) UpdateEmailAddress(_ context.Context, mentor *model.Mentor, emailAddress string) error {
	mentor.EmailAddress = emailAddress
	return nil
}

type fakeContactRepo struct {
	contacts []*model.Contact
	nextID   int
}

func (r *fakeContactRepo) ListByMentor(_ context.Context, mentor *model.Mentor, kind model.ContactKind) ([]*model.Contact, error) {
	var out []*model.Contact
	for _, c := range r.contacts {
		if c.MentorID == mentor.ID && c.Kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeContactRepo) GetByID(_ context.Context, mentor *model.Mentor, kind model.ContactKind, contactID string) (*model.Contact, error) {
	for _, c := range r.contacts {
		if c.MentorID == mentor.ID && c.Kind == kind && c.ID == contactID {
			return c, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (r *fakeContactRepo) VerifiedPrimary(_ context.Context, mentor *model.Mentor, kind model.ContactKind) (*model.Contact, error) {
	for _, c := range r.contacts {
		if c.MentorID == mentor.ID && c.Kind == kind && c.Verified && c.Primary {
			return c, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (r *fakeContactRepo) OwnerOfVerifiedValue(_ context.Context, kind model.ContactKind, value, countryPrefix string) (string, error) {
	for _, c := range r.contacts {
		if c.Kind == kind && c.Value == value && c.CountryPrefix == countryPrefix && c.Verified {
			return c.MentorID, nil
		}
	}
	return "", scylla.ErrNotFound
}

func (r *fakeContactRepo) CreateVerified(_ context.Context, mentor *model.Mentor, contact *model.Contact) error {
	r.nextID++
	contact.ID = fmt.Sprintf("contact-%d", r.nextID)
	contact.MentorID = mentor.ID
	contact.Verified = true
	r.contacts = append(r.contacts, contact)
	return nil
}

func (r *fakeContactRepo) SetPrimary(_ context.Context, mentor *model.Mentor, target *model.Contact, current []*model.Contact) error {
	for _, c := range current {
		if c.Primary {
			c.Primary = false
		}
	}
	target.Primary = true
	return nil
}

func (r *fakeContactRepo) Delete(_ context.Context, mentor *model.Mentor, contact *model.Contact) error {
	for i, c := range r.contacts {
		if c.ID == contact.ID {
			r.contacts = append(r.contacts[:i], r.contacts[i+1:]...)
			return nil
		}
	}
	return scylla.ErrNotFound
}

type fakeCache struct {
	accounts    map[string]*model.Mentor
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{accounts: make(map[string]*model.Mentor)}
}

func (c *fakeCache) SetAccount(mentor *model.Mentor, _ time.Duration) error {
	c.accounts[mentor.ID] = mentor
	return nil
}

func (c *fakeCache) GetAccount(mentorID string) (*model.Mentor, error) {
	if account, ok := c.accounts[mentorID]; ok {
		return account, nil
	}
	return nil, fmt.Errorf("account not cached: %s", mentorID)
}

func (c *fakeCache) Invalidate(mentorID string) error {
	delete(c.accounts, mentorID)
	c.invalidated = append(c.invalidated, mentorID)
	return nil
}

type fakeDenylist struct {
	used map[string]bool
}

func newFakeDenylist() *fakeDenylist {
	return &fakeDenylist{used: make(map[string]bool)}
}

func (d *fakeDenylist) MarkTokenUsed(signature string, _ time.Duration) (bool, error) {
	if d.used[signature] {
		return false, nil
	}
	d.used[signature] = true
	return true, nil
}

type sentOTP struct {
	channel string
	target  string
	otp     string
}

type fakeDispatcher struct {
	sent []sentOTP
}

func (d *fakeDispatcher) SendSMSOTP(_ context.Context, countryPrefix, phoneNumber, otp string) error {
	d.sent = append(d.sent, sentOTP{channel: "sms", target: countryPrefix + phoneNumber, otp: otp})
	return nil
}

func (d *fakeDispatcher) SendEmailOTP(_ context.Context, emailAddress, otp string) error {
	d.sent = append(d.sent, sentOTP{channel: "email", target: emailAddress, otp: otp})
	return nil
}

func (d *fakeDispatcher) lastOTP() string {
	if len(d.sent) == 0 {
		return ""
	}
	return d.sent[len(d.sent)-1].otp
}

type fakeRecorder struct {
	events []model.SecurityEvent
}

func (r *fakeRecorder) Record(event model.SecurityEvent) {
	r.events = append(r.events, event)
}

// testEnv bundles the fakes every service test needs.
type testEnv struct {
	cfg      *config.Config
	hasher   *hashing.Hasher
	otps     *token.OTPCodec
	sessions *token.SessionCodec
	accounts *fakeAccountRepo
	contacts *fakeContactRepo
	cache    *fakeCache
	denylist *fakeDenylist
	dispatch *fakeDispatcher
	events   *fakeRecorder
}

func newTestEnv(mentors ...*model.Mentor) *testEnv {
	cfg := testConfig()
	hasher := hashing.NewHasher(cfg)
	return &testEnv{
		cfg:      cfg,
		hasher:   hasher,
		otps:     token.NewOTPCodec(cfg.Auth.JWTSecret, hasher, cfg.Auth.OTPDigits, cfg.Auth.OTPTTL),
		sessions: token.NewSessionCodec(cfg.Auth.JWTSecret, cfg.Auth.LoginValidity, cfg.Auth.RefreshThreshold),
		accounts: newFakeAccountRepo(mentors...),
		contacts: &fakeContactRepo{},
		cache:    newFakeCache(),
		denylist: newFakeDenylist(),
		dispatch: &fakeDispatcher{},
		events:   &fakeRecorder{},
	}
}

func (e *testEnv) authService() *AuthService {
	return NewAuthService(e.accounts, e.contacts, e.hasher, e.otps, e.sessions,
		e.cache, e.denylist, e.dispatch, e.events, e.cfg)
}

func (e *testEnv) twoFactorService() *TwoFactorService {
	return NewTwoFactorService(e.accounts, e.contacts, e.otps, e.sessions,
		e.cache, e.denylist, e.dispatch, e.events, e.cfg)
}

func (e *testEnv) contactService() *ContactService {
	return NewContactService(e.accounts, e.contacts, e.otps,
		e.cache, e.denylist, e.dispatch, e.events, e.cfg)
}

func (e *testEnv) mentorWithPassword(id, email, password string) *model.Mentor {
	result, err := e.hasher.Hash(password)
	if err != nil {
		panic(err)
	}
	mentor := &model.Mentor{
		ID:           id,
		Username:     id,
		EmailAddress: email,
		PasswordHash: result.Encode(),
		TwoFactor:    model.TwoFactorNone,
		IsActive:     true,
	}
	e.accounts.accounts[id] = mentor
	return mentor
}
