package service

import (
	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/hashing"
	"github.com/VaibhavPrasad23/PayRs/internal/repository/scylla"
	"github.com/VaibhavPrasad23/PayRs/internal/token"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
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

	authService      *AuthService
	twoFactorService *TwoFactorService
	contactService   *ContactService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
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
) *ServiceFactory {
	return &ServiceFactory{
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

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.accounts, f.contacts, f.hasher, f.otps, f.sessions,
			f.cache, f.denylist, f.dispatch, f.events, f.cfg,
		)
	}
	return f.authService
}

// TwoFactorService returns the two-factor service instance (singleton)
func (f *ServiceFactory) TwoFactorService() *TwoFactorService {
	if f.twoFactorService == nil {
		f.twoFactorService = NewTwoFactorService(
			f.accounts, f.contacts, f.otps, f.sessions,
			f.cache, f.denylist, f.dispatch, f.events, f.cfg,
		)
	}
	return f.twoFactorService
}

// ContactService returns the contact service instance (singleton)
func (f *ServiceFactory) ContactService() *ContactService {
	if f.contactService == nil {
		f.contactService = NewContactService(
			f.accounts, f.contacts, f.otps,
			f.cache, f.denylist, f.dispatch, f.events, f.cfg,
		)
	}
	return f.contactService
}
