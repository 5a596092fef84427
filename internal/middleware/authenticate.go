package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/repository/scylla"
	"github.com/VaibhavPrasad23/PayRs/internal/token"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

type contextKey string

const (
	accountContextKey contextKey = "mentor_account"
	claimsContextKey  contextKey = "session_claims"
)

// AccountLoader resolves a mentor account, cache first.
type AccountLoader interface {
	Load(ctx context.Context, mentorID string) (*model.Mentor, error)
}

// GuardOptions tune the access guard per route group.
type GuardOptions struct {
	// NoReject attaches the account when the token is good but lets
	// the request through anonymously otherwise.
	NoReject bool
	// AllowInactive admits deactivated (but not suspended or
	// to-be-deleted) accounts.
	AllowInactive bool
	// AllowWithout2FA admits sessions still pending two-factor
	// verification. The two-factor routes themselves need this.
	AllowWithout2FA bool
	// AdminOnly additionally requires the admin flag.
	AdminOnly bool
}

// Guard authenticates requests with a bearer session token and loads
// the backing account onto the request context.
type Guard struct {
	sessions *token.SessionCodec
	accounts AccountLoader
}

func NewGuard(sessions *token.SessionCodec, accounts AccountLoader) *Guard {
	return &Guard{sessions: sessions, accounts: accounts}
}

// Authenticate returns the middleware for the given options.
func (g *Guard) Authenticate(opts GuardOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signed := BearerToken(r)
			if signed == "" {
				g.reject(w, r, next, opts, http.StatusUnauthorized, "missing session token")
				return
			}

			claims, err := g.sessions.Decode(signed)
			if err != nil {
				g.reject(w, r, next, opts, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			if claims.Pending2FA && !opts.AllowWithout2FA {
				g.reject(w, r, next, opts, http.StatusUnauthorized, "two-factor verification required")
				return
			}

			account, err := g.accounts.Load(r.Context(), claims.MentorID())
			if err != nil {
				util.Warn("Failed to load account for session",
					zap.String("mentor_id", claims.MentorID()), zap.Error(err))
				g.reject(w, r, next, opts, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			switch {
			case account.ToBeDeleted:
				g.reject(w, r, next, opts, http.StatusUnauthorized, "account is scheduled for deletion")
				return
			case account.Suspended:
				g.reject(w, r, next, opts, http.StatusUnauthorized, "account is suspended")
				return
			case !account.IsActive && !opts.AllowInactive:
				g.reject(w, r, next, opts, http.StatusUnauthorized, "account is inactive")
				return
			}

			ip := ClientIP(r)
			if !ipAllowed(account, ip) {
				g.reject(w, r, next, opts, http.StatusForbidden, "access from this address is not allowed")
				return
			}
			if opts.AdminOnly && !account.IsAdmin {
				g.reject(w, r, next, opts, http.StatusForbidden, "admin access required")
				return
			}

			ctx := context.WithValue(r.Context(), accountContextKey, account)
			ctx = context.WithValue(ctx, claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, next http.Handler, opts GuardOptions, status int, message string) {
	if opts.NoReject {
		next.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// AccountFromContext returns the authenticated account, if any.
func AccountFromContext(ctx context.Context) (*model.Mentor, bool) {
	account, ok := ctx.Value(accountContextKey).(*model.Mentor)
	return account, ok
}

// ClaimsFromContext returns the decoded session claims, if any.
func ClaimsFromContext(ctx context.Context) (*token.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.SessionClaims)
	return claims, ok
}

// ClientIP extracts the caller address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BearerToken pulls the session token out of the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("bearer "):])
}

// ipAllowed checks the per-account allow and deny lists. An empty
// allow list admits everything; the deny list always wins.
func ipAllowed(account *model.Mentor, ip string) bool {
	for _, denied := range account.DeniedIPs {
		if denied == ip {
			return false
		}
	}
	if len(account.AllowedIPs) == 0 {
		return true
	}
	for _, allowed := range account.AllowedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}

// CachedAccountLoader reads through the Redis user cache into Scylla.
type CachedAccountLoader struct {
	Cache    AccountCache
	Accounts scylla.AccountRepository
}

// AccountCache is the cache slice the loader needs.
type AccountCache interface {
	GetAccount(mentorID string) (*model.Mentor, error)
	SetAccount(mentor *model.Mentor, ttl time.Duration) error
}

func (l *CachedAccountLoader) Load(ctx context.Context, mentorID string) (*model.Mentor, error) {
	if account, err := l.Cache.GetAccount(mentorID); err == nil {
		return account, nil
	}
	account, err := l.Accounts.GetByID(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	if err := l.Cache.SetAccount(account, 0); err != nil {
		util.Debug("Failed to cache account", zap.Error(err))
	}
	return account, nil
}
