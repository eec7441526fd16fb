package meterclient

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"meter-reader/internal/meterrpc"
)

type stubTokenSource struct {
	calls    int
	resp     *meterrpc.TokenResponse
	err      error
	lastUser string
	lastPass string
}

func (s *stubTokenSource) CreateToken(_ context.Context, in *meterrpc.TokenRequest, _ ...grpc.CallOption) (*meterrpc.TokenResponse, error) {
	s.calls++
	s.lastUser = in.Username
	s.lastPass = in.Password
	return s.resp, s.err
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newCache(t *testing.T, source TokenSource, clock *fakeClock) *TokenCache {
	t.Helper()
	cache, err := NewTokenCache(source, "meter@example.com", "P@ssw0rd!",
		WithCacheClock(clock.Now), WithCacheLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new token cache: %v", err)
	}
	return cache
}

func TestEnsureAuthenticated_CachesUntilExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC)}
	source := &stubTokenSource{resp: &meterrpc.TokenResponse{
		Success:    true,
		Token:      "tok-1",
		Expiration: clock.now.Add(20 * time.Minute),
	}}
	cache := newCache(t, source, clock)

	if !cache.EnsureAuthenticated(context.Background()) {
		t.Fatalf("expected first call to authenticate")
	}
	if !cache.EnsureAuthenticated(context.Background()) {
		t.Fatalf("expected cached token")
	}
	if source.calls != 1 {
		t.Fatalf("expected 1 token request, got %d", source.calls)
	}
	if source.lastUser != "meter@example.com" || source.lastPass != "P@ssw0rd!" {
		t.Fatalf("unexpected credentials %s/%s", source.lastUser, source.lastPass)
	}
}

func TestEnsureAuthenticated_RefreshesAfterExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC)}
	source := &stubTokenSource{resp: &meterrpc.TokenResponse{
		Success:    true,
		Token:      "tok-1",
		Expiration: clock.now.Add(time.Minute),
	}}
	cache := newCache(t, source, clock)
	if !cache.EnsureAuthenticated(context.Background()) {
		t.Fatalf("expected authentication")
	}

	// Expiration equal to now is already expired.
	clock.now = clock.now.Add(time.Minute)
	newExp := clock.now.Add(time.Hour)
	source.resp = &meterrpc.TokenResponse{Success: true, Token: "tok-2", Expiration: newExp}
	if !cache.EnsureAuthenticated(context.Background()) {
		t.Fatalf("expected re-authentication")
	}
	if source.calls != 2 {
		t.Fatalf("expected 2 token requests, got %d", source.calls)
	}
	if !cache.Expiration().Equal(newExp) {
		t.Fatalf("expected expiration replaced, got %s", cache.Expiration())
	}
	md, ok := metadata.FromOutgoingContext(cache.Context(context.Background()))
	if !ok {
		t.Fatalf("expected outgoing metadata")
	}
	if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer tok-2" {
		t.Fatalf("expected replaced bearer header, got %v", got)
	}
}

func TestEnsureAuthenticated_FailureLeavesCacheUnchanged(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC)}
	source := &stubTokenSource{resp: &meterrpc.TokenResponse{Success: false}}
	cache := newCache(t, source, clock)

	if cache.EnsureAuthenticated(context.Background()) {
		t.Fatalf("expected failure on rejected credentials")
	}
	if !cache.Expiration().IsZero() {
		t.Fatalf("expected zero expiration, got %s", cache.Expiration())
	}
	if _, ok := metadata.FromOutgoingContext(cache.Context(context.Background())); ok {
		t.Fatalf("expected no bearer header before first success")
	}

	source.resp = nil
	source.err = errors.New("connection refused")
	if cache.EnsureAuthenticated(context.Background()) {
		t.Fatalf("expected failure on transport error")
	}
	if source.calls != 2 {
		t.Fatalf("expected a retry per call, got %d", source.calls)
	}
}

func TestEnsureAuthenticated_FailedRefreshKeepsOldToken(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC)}
	oldExp := clock.now.Add(time.Minute)
	source := &stubTokenSource{resp: &meterrpc.TokenResponse{Success: true, Token: "tok-1", Expiration: oldExp}}
	cache := newCache(t, source, clock)
	_ = cache.EnsureAuthenticated(context.Background())

	clock.now = clock.now.Add(2 * time.Minute)
	source.resp = &meterrpc.TokenResponse{Success: false}
	if cache.EnsureAuthenticated(context.Background()) {
		t.Fatalf("expected failure")
	}
	if !cache.Expiration().Equal(oldExp) {
		t.Fatalf("expected old expiration kept, got %s", cache.Expiration())
	}
}

func TestNewTokenCache_Validation(t *testing.T) {
	if _, err := NewTokenCache(nil, "u", "p"); err == nil {
		t.Fatalf("expected error for nil source")
	}
	if _, err := NewTokenCache(&stubTokenSource{}, "", "p"); err == nil {
		t.Fatalf("expected error for empty username")
	}
}
