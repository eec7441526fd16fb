package meterclient

import (
	"context"
	"errors"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"meter-reader/internal/meterrpc"
	"meter-reader/internal/observability/metrics"
)

// TokenSource issues bearer tokens.
type TokenSource interface {
	CreateToken(ctx context.Context, in *meterrpc.TokenRequest, opts ...grpc.CallOption) (*meterrpc.TokenResponse, error)
}

// TokenCache holds the current bearer token and decides when to
// re-authenticate. It has a single owner and is not safe for concurrent use.
type TokenCache struct {
	source   TokenSource
	username string
	password string
	now      func() time.Time
	logger   *log.Logger

	token      string
	expiration time.Time
	header     metadata.MD
}

// CacheOption configures the token cache.
type CacheOption func(*TokenCache)

// WithCacheClock overrides the wall clock used for expiry checks.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *TokenCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheLogger sets the cache logger.
func WithCacheLogger(logger *log.Logger) CacheOption {
	return func(c *TokenCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTokenCache constructs an empty cache.
func NewTokenCache(source TokenSource, username, password string, opts ...CacheOption) (*TokenCache, error) {
	if source == nil {
		return nil, errors.New("token cache: nil token source")
	}
	if username == "" {
		return nil, errors.New("token cache: empty username")
	}
	c := &TokenCache{
		source:   source,
		username: username,
		password: password,
		now:      time.Now,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EnsureAuthenticated reports whether a live token is available, requesting
// a new one when the cached token is missing or expired. Failures leave the
// cache untouched.
func (c *TokenCache) EnsureAuthenticated(ctx context.Context) bool {
	if c.token != "" && c.expiration.After(c.now()) {
		return true
	}

	resp, err := c.source.CreateToken(ctx, &meterrpc.TokenRequest{
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		c.logger.Printf("token cache: create token error: %v", err)
		metrics.IncClientAuth(metrics.ResultError)
		return false
	}
	if resp == nil || !resp.Success || resp.Token == "" {
		c.logger.Printf("token cache: credentials rejected for %s", c.username)
		metrics.IncClientAuth(metrics.ResultFailure)
		return false
	}

	c.token = resp.Token
	c.expiration = resp.Expiration
	c.header = meterrpc.BearerMetadata(resp.Token)
	metrics.IncClientAuth(metrics.ResultSuccess)
	return true
}

// Context attaches the bearer header to an outgoing call context.
func (c *TokenCache) Context(ctx context.Context) context.Context {
	if c.header == nil {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, c.header)
}

// Expiration returns the cached token expiry; zero before the first success.
func (c *TokenCache) Expiration() time.Time {
	return c.expiration
}
