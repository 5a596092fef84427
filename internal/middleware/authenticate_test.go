package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/token"
)

type fakeLoader struct {
	accounts map[string]*model.Mentor
}

func (l *fakeLoader) Load(_ context.Context, mentorID string) (*model.Mentor, error) {
	if account, ok := l.accounts[mentorID]; ok {
		return account, nil
	}
	return nil, fmt.Errorf("no account: %s", mentorID)
}

func testGuard(accounts ...*model.Mentor) (*Guard, *token.SessionCodec) {
	codec := token.NewSessionCodec("test-key", time.Hour, 30*time.Minute)
	loader := &fakeLoader{accounts: make(map[string]*model.Mentor)}
	for _, a := range accounts {
		loader.accounts[a.ID] = a
	}
	return NewGuard(codec, loader), codec
}

func runGuard(t *testing.T, guard *Guard, opts GuardOptions, authorization string) (*httptest.ResponseRecorder, *model.Mentor) {
	t.Helper()
	var seen *model.Mentor
	handler := guard.Authenticate(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AccountFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestGuardRejectsMissingToken(t *testing.T) {
	guard, _ := testGuard()
	rec, _ := runGuard(t, guard, GuardOptions{}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardRejectsGarbageToken(t *testing.T) {
	guard, _ := testGuard()
	rec, _ := runGuard(t, guard, GuardOptions{}, "Bearer not-a-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardAttachesAccount(t *testing.T) {
	account := &model.Mentor{ID: "mentor-1", IsActive: true}
	guard, codec := testGuard(account)
	signed, err := codec.Issue("mentor-1", false, model.TwoFactorNone)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	rec, seen := runGuard(t, guard, GuardOptions{}, "Bearer "+signed)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen == nil || seen.ID != "mentor-1" {
		t.Fatalf("account on context = %+v, want mentor-1", seen)
	}
}

func TestGuardPendingSession(t *testing.T) {
	account := &model.Mentor{ID: "mentor-1", IsActive: true, TwoFactor: model.TwoFactorSMS}
	guard, codec := testGuard(account)
	signed, err := codec.Issue("mentor-1", true, model.TwoFactorSMS)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	rec, _ := runGuard(t, guard, GuardOptions{}, "Bearer "+signed)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("pending session status = %d, want 401", rec.Code)
	}

	rec, seen := runGuard(t, guard, GuardOptions{AllowWithout2FA: true}, "Bearer "+signed)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowWithout2FA status = %d, want 200", rec.Code)
	}
	if seen == nil {
		t.Fatal("account should be on context")
	}
}

func TestGuardAccountStates(t *testing.T) {
	tests := []struct {
		name     string
		account  *model.Mentor
		opts     GuardOptions
		wantCode int
	}{
		{
			name:     "to be deleted",
			account:  &model.Mentor{ID: "m", IsActive: true, ToBeDeleted: true},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "suspended",
			account:  &model.Mentor{ID: "m", IsActive: true, Suspended: true},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "inactive",
			account:  &model.Mentor{ID: "m"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "inactive allowed",
			account:  &model.Mentor{ID: "m"},
			opts:     GuardOptions{AllowInactive: true},
			wantCode: http.StatusOK,
		},
		{
			name:     "suspended stays out even when inactive allowed",
			account:  &model.Mentor{ID: "m", Suspended: true},
			opts:     GuardOptions{AllowInactive: true},
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard, codec := testGuard(tt.account)
			signed, err := codec.Issue(tt.account.ID, false, model.TwoFactorNone)
			if err != nil {
				t.Fatalf("failed to issue token: %v", err)
			}
			rec, _ := runGuard(t, guard, tt.opts, "Bearer "+signed)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestGuardDeniedIP(t *testing.T) {
	account := &model.Mentor{ID: "mentor-1", IsActive: true, DeniedIPs: []string{"192.0.2.1"}}
	guard, codec := testGuard(account)
	signed, _ := codec.Issue("mentor-1", false, model.TwoFactorNone)

	handler := guard.Authenticate(GuardOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("X-Forwarded-For", "192.0.2.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGuardAllowList(t *testing.T) {
	account := &model.Mentor{ID: "mentor-1", IsActive: true, AllowedIPs: []string{"192.0.2.7"}}
	guard, codec := testGuard(account)
	signed, _ := codec.Issue("mentor-1", false, model.TwoFactorNone)

	handler := guard.Authenticate(GuardOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("X-Forwarded-For", "192.0.2.9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("off-list address status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("X-Forwarded-For", "192.0.2.7")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("listed address status = %d, want 200", rec.Code)
	}
}

func TestGuardAdminOnly(t *testing.T) {
	account := &model.Mentor{ID: "mentor-1", IsActive: true}
	guard, codec := testGuard(account)
	signed, _ := codec.Issue("mentor-1", false, model.TwoFactorNone)

	rec, _ := runGuard(t, guard, GuardOptions{AdminOnly: true}, "Bearer "+signed)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	account.IsAdmin = true
	rec, _ = runGuard(t, guard, GuardOptions{AdminOnly: true}, "Bearer "+signed)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}
}

func TestGuardNoReject(t *testing.T) {
	guard, _ := testGuard()
	rec, seen := runGuard(t, guard, GuardOptions{NoReject: true}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen != nil {
		t.Error("anonymous request should carry no account")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc.def.ghi", "abc.def.ghi"},
		{"Basic dXNlcg==", ""},
		{"abc.def.ghi", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := BearerToken(req); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
