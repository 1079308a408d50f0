// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arcadia-commerce/sentinel/internal/authz"
	"github.com/arcadia-commerce/sentinel/internal/event"
	"github.com/arcadia-commerce/sentinel/internal/incident"
	"github.com/arcadia-commerce/sentinel/internal/ratelimit"
	"github.com/arcadia-commerce/sentinel/internal/threat"
)

type mockProvider struct {
	session     *Session
	signInErr   error
	settings    *UserSettings
	settingsErr error
	totpOK      bool
	totpErr     error
	profile     *Profile
	profileErr  error
	magicErr    error

	signOutCalls int
	magicCalls   int
}

func (p *mockProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	return p.session, nil
}

func (p *mockProvider) SignOut(ctx context.Context, userID string) error {
	p.signOutCalls++
	return nil
}

func (p *mockProvider) VerifyTOTP(ctx context.Context, userID, token string) (bool, error) {
	return p.totpOK, p.totpErr
}

func (p *mockProvider) GenerateMagicLink(ctx context.Context, email string) error {
	p.magicCalls++
	return p.magicErr
}

func (p *mockProvider) UserSettings(ctx context.Context, userID string) (*UserSettings, error) {
	if p.settingsErr != nil {
		return nil, p.settingsErr
	}
	if p.settings != nil {
		return p.settings, nil
	}
	return &UserSettings{}, nil
}

func (p *mockProvider) Profile(ctx context.Context, userID string) (*Profile, error) {
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	return p.profile, nil
}

type recordingLogger struct {
	events []event.Event
}

func (l *recordingLogger) Log(ctx context.Context, e event.Event) {
	l.events = append(l.events, e)
}

func (l *recordingLogger) countByType(t event.Type) int {
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, provider *mockProvider) (*Manager, *recordingLogger) {
	t.Helper()

	logger := &recordingLogger{}
	enforcer, err := authz.NewEnforcer(authz.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(enforcer.Close)

	incidents := incident.NewManager(incident.DefaultConfig(), incident.NewMemoryStore(), nil)

	m := NewManager(provider, ratelimit.NewAuthLimiter(), logger, threat.NewEngine(logger), incidents, enforcer)
	return m, logger
}

func TestSecureLoginSuccess(t *testing.T) {
	provider := &mockProvider{
		session: &Session{UserID: "u-1", Email: "shopper@example.com", AccessToken: "tok"},
	}
	m, logger := newTestManager(t, provider)

	result, err := m.SecureLogin(context.Background(), "Shopper@Example.com", "hunter2", "203.0.113.9")
	if err != nil {
		t.Fatalf("SecureLogin: %v", err)
	}
	if !result.Success || result.Session == nil {
		t.Fatalf("result = %+v, want success with session", result)
	}
	if logger.countByType(event.TypeLoginSuccess) != 1 {
		t.Errorf("logged %d login_success events, want 1", logger.countByType(event.TypeLoginSuccess))
	}
}

func TestSecureLoginInvalidEmail(t *testing.T) {
	m, logger := newTestManager(t, &mockProvider{})

	_, err := m.SecureLogin(context.Background(), "not-an-email", "pw", "203.0.113.9")
	if !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("err = %v, want ErrInvalidEmail", err)
	}
	if logger.countByType(event.TypeLoginFailure) != 1 {
		t.Errorf("logged %d login_failure events, want 1", logger.countByType(event.TypeLoginFailure))
	}
}

func TestSecureLoginLockoutAfterMaxAttempts(t *testing.T) {
	provider := &mockProvider{signInErr: ErrInvalidCredentials}
	m, logger := newTestManager(t, provider)
	ctx := context.Background()

	// Five failed attempts consume the window.
	for i := 0; i < 5; i++ {
		_, err := m.SecureLogin(ctx, "victim@example.com", "wrong", "203.0.113.9")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	// The sixth is rejected by the limiter with remaining block time.
	result, err := m.SecureLogin(ctx, "victim@example.com", "wrong", "203.0.113.9")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("sixth attempt: err = %v, want ErrRateLimited", err)
	}
	if result.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", result.RetryAfter)
	}

	// All six attempts left a login_failure trail, including the
	// rate-limited one.
	if got := logger.countByType(event.TypeLoginFailure); got != 6 {
		t.Errorf("logged %d login_failure events, want 6", got)
	}
}

func TestSecureLoginEmailNotConfirmed(t *testing.T) {
	provider := &mockProvider{signInErr: ErrEmailNotConfirmed}
	m, _ := newTestManager(t, provider)

	_, err := m.SecureLogin(context.Background(), "new@example.com", "pw", "203.0.113.9")
	if !errors.Is(err, ErrEmailNotConfirmed) {
		t.Fatalf("err = %v, want ErrEmailNotConfirmed", err)
	}
}

func TestSecureLoginProviderOutage(t *testing.T) {
	provider := &mockProvider{signInErr: errors.New("connection refused")}
	m, _ := newTestManager(t, provider)

	_, err := m.SecureLogin(context.Background(), "shopper@example.com", "pw", "203.0.113.9")
	if !errors.Is(err, ErrSystem) {
		t.Fatalf("err = %v, want ErrSystem for provider outage", err)
	}
}

func TestSecureLoginRequires2FA(t *testing.T) {
	provider := &mockProvider{
		session:  &Session{UserID: "u-1", Email: "shopper@example.com"},
		settings: &UserSettings{TwoFactorEnabled: true},
	}
	m, logger := newTestManager(t, provider)

	result, err := m.SecureLogin(context.Background(), "shopper@example.com", "pw", "203.0.113.9")
	if err != nil {
		t.Fatalf("SecureLogin: %v", err)
	}
	if !result.Requires2FA || result.Success || result.Session != nil {
		t.Fatalf("result = %+v, want requires_2fa without session", result)
	}
	if provider.signOutCalls != 1 {
		t.Errorf("signOutCalls = %d, want 1 (session must not survive the password step)", provider.signOutCalls)
	}
	if logger.countByType(event.TypeLoginSuccess) != 0 {
		t.Error("login_success must not be logged before 2FA completes")
	}
}

func TestVerify2FALoginSuccess(t *testing.T) {
	provider := &mockProvider{
		totpOK:  true,
		profile: &Profile{UserID: "u-1", Email: "shopper@example.com", Role: "customer"},
	}
	m, logger := newTestManager(t, provider)

	if err := m.Verify2FALogin(context.Background(), "u-1", "123456"); err != nil {
		t.Fatalf("Verify2FALogin: %v", err)
	}
	if provider.magicCalls != 1 {
		t.Errorf("magicCalls = %d, want 1", provider.magicCalls)
	}
	if logger.countByType(event.TypeLoginSuccess) != 1 {
		t.Errorf("logged %d login_success events, want 1", logger.countByType(event.TypeLoginSuccess))
	}
}

func TestVerify2FALoginInvalidToken(t *testing.T) {
	provider := &mockProvider{totpOK: false}
	m, logger := newTestManager(t, provider)

	err := m.Verify2FALogin(context.Background(), "u-1", "000000")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if logger.countByType(event.TypeSuspiciousActivity) != 1 {
		t.Errorf("logged %d suspicious_activity events, want 1", logger.countByType(event.TypeSuspiciousActivity))
	}
	if provider.magicCalls != 0 {
		t.Error("magic link must not be sent on failed 2FA")
	}
}

func TestValidateAdminAction(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		object string
		action string
		want   bool
	}{
		{"admin reads incidents", "admin", authz.ObjectIncidents, authz.ActionRead, true},
		{"customer denied incidents", "customer", authz.ObjectIncidents, authz.ActionRead, false},
		{"admin denied config", "admin", authz.ObjectConfig, authz.ActionWrite, false},
		{"legacy superadmin spelling", "superadmin", authz.ObjectConfig, authz.ActionWrite, true},
		{"empty role defaults to customer", "", authz.ObjectIncidents, authz.ActionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{profile: &Profile{UserID: "u-1", Role: tt.role}}
			m, logger := newTestManager(t, provider)

			allowed, err := m.ValidateAdminAction(context.Background(), "u-1", tt.object, tt.action)
			if err != nil {
				t.Fatalf("ValidateAdminAction: %v", err)
			}
			if allowed != tt.want {
				t.Errorf("allowed = %v, want %v", allowed, tt.want)
			}
			if logger.countByType(event.TypeAdminAccess) != 1 {
				t.Errorf("logged %d admin_access events, want 1", logger.countByType(event.TypeAdminAccess))
			}
		})
	}
}

func TestAuditUserAction(t *testing.T) {
	m, logger := newTestManager(t, &mockProvider{})

	m.AuditUserAction(context.Background(), "u-1", "export", "orders")
	if logger.countByType(event.TypeAdminAccess) != 1 {
		t.Fatalf("logged %d admin_access events, want 1", logger.countByType(event.TypeAdminAccess))
	}
	if logger.events[0].Details["resource"] != "orders" {
		t.Errorf("resource detail = %v, want orders", logger.events[0].Details["resource"])
	}
}

func TestParseSessionClaims(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &SessionClaims{
		Email: "shopper@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	claims, err := ParseSessionClaims(signed)
	if err != nil {
		t.Fatalf("ParseSessionClaims: %v", err)
	}
	if claims.Subject != "u-1" || claims.Email != "shopper@example.com" {
		t.Errorf("claims = %+v", claims)
	}

	// Backfill only fills missing fields.
	s := &Session{AccessToken: signed}
	fillFromToken(s)
	if s.UserID != "u-1" || s.Email != "shopper@example.com" {
		t.Errorf("backfilled session = %+v", s)
	}
}
