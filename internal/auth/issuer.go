package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"meter-reader/internal/observability/metrics"
)

const defaultTokenTTL = time.Hour

// TokenResult is the outcome of a token request.
type TokenResult struct {
	Success    bool
	Token      string
	Expiration time.Time
}

// Issuer verifies credentials and signs bearer tokens.
type Issuer struct {
	secret []byte
	users  map[string]string
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

// IssuerOption configures the issuer.
type IssuerOption func(*Issuer)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock overrides the issuing clock.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithLogger sets the issuer logger.
func WithLogger(logger *log.Logger) IssuerOption {
	return func(i *Issuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewIssuer constructs an issuer. users maps usernames to bcrypt hashes.
func NewIssuer(secret []byte, users map[string]string, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if len(users) == 0 {
		return nil, errors.New("auth: no users configured")
	}
	copied := make(map[string]string, len(users))
	for name, hash := range users {
		copied[name] = hash
	}
	issuer := &Issuer{
		secret: secret,
		users:  copied,
		ttl:    defaultTokenTTL,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// CreateToken validates a username/password pair. Bad credentials yield
// Success=false and no error.
func (i *Issuer) CreateToken(ctx context.Context, username, password string) (TokenResult, error) {
	if err := ctx.Err(); err != nil {
		return TokenResult{}, err
	}
	hash, ok := i.users[username]
	if !ok || username == "" {
		i.logger.Printf("auth: token denied: unknown user %q", username)
		metrics.IncTokenRequest(metrics.ResultFailure)
		return TokenResult{}, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		i.logger.Printf("auth: token denied: bad password for %q", username)
		metrics.IncTokenRequest(metrics.ResultFailure)
		return TokenResult{}, nil
	}

	issuedAt := i.now().UTC()
	expiration := issuedAt.Add(i.ttl).Truncate(time.Second)
	token, err := SignJWT(username, RoleMeter, issuedAt, expiration, i.secret)
	if err != nil {
		metrics.IncTokenRequest(metrics.ResultError)
		return TokenResult{}, err
	}
	metrics.IncTokenRequest(metrics.ResultSuccess)
	return TokenResult{Success: true, Token: token, Expiration: expiration}, nil
}
