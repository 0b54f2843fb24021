package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/event-auth/internal/domain"
)

// DefaultTokenTTL is used when neither the caller nor the configuration
// supplies a lifetime.
const DefaultTokenTTL = 7 * 24 * time.Hour

// TokenManager handles issuing and validating JWT tokens. It holds no
// mutable state and is safe for concurrent use.
//
// Tokens are self-contained: there is no server-side revocation, so a token
// stays valid until it expires or the secret is rotated.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// Option customizes a TokenManager.
type Option func(*TokenManager)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// WithIssuer stamps tokens with iss and requires it on verification.
func WithIssuer(issuer string) Option {
	return func(tm *TokenManager) {
		tm.issuer = issuer
	}
}

// NewTokenManager builds a new manager. A missing secret is a configuration
// error and the caller should refuse to start.
func NewTokenManager(secret string, ttl time.Duration, opts ...Option) (*TokenManager, error) {
	if secret == "" {
		return nil, newError(KindConfiguration, errors.New("signing secret is not configured"))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	tm := &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(tm)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		// The validator rejects now >= exp; one nanosecond makes exp itself valid.
		jwt.WithLeeway(time.Nanosecond),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(tm.issuer))
	}
	tm.parser = jwt.NewParser(parserOpts...)
	return tm, nil
}

// Claims describes JWT payload.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TTL returns the default token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue builds and signs a token for the subject. A non-positive ttl falls
// back to the configured default.
func (tm *TokenManager) Issue(subjectID string, role domain.Role, ttl time.Duration) (string, time.Time, error) {
	if tm == nil || len(tm.secret) == 0 {
		return "", time.Time{}, newError(KindConfiguration, errors.New("signing secret is not configured"))
	}
	if subjectID == "" {
		return "", time.Time{}, errors.New("auth: issue token: empty subject id")
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("auth: issue token: unknown role %q", role)
	}
	if ttl <= 0 {
		ttl = tm.ttl
	}

	// Claims carry whole seconds, so iat is truncated before exp is derived
	// and exp = iat + ttl holds exactly in the payload.
	issuedAt := tm.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, newError(KindConfiguration, err)
	}
	return tokenString, claims.ExpiresAt.Time, nil
}

// Verify checks the signature and expiry of raw and returns the embedded
// identity. It has no side effects.
func (tm *TokenManager) Verify(raw string) (Identity, error) {
	if tm == nil || len(tm.secret) == 0 {
		return Identity{}, newError(KindConfiguration, errors.New("signing secret is not configured"))
	}

	claims := &Claims{}
	if _, err := tm.parser.ParseWithClaims(raw, claims, tm.keyFunc); err != nil {
		return Identity{}, tm.classify(raw, err)
	}

	if claims.Subject == "" {
		return Identity{}, newError(KindMalformedToken, errors.New("token has no subject"))
	}
	if !claims.Role.Valid() {
		return Identity{}, newError(KindMalformedToken, fmt.Errorf("token carries unknown role %q", claims.Role))
	}
	return Identity{subjectID: claims.Subject, role: claims.Role}, nil
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method != jwt.SigningMethodHS256 {
		return nil, errors.New("unexpected signing method")
	}
	return tm.secret, nil
}

// classify maps parser failures onto the closed failure kinds. Signature
// checks run before claim validation, so a forged expired token reports an
// invalid signature.
func (tm *TokenManager) classify(raw string, err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newError(KindInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(KindExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		// Header and payload decode, so the corruption is in the signature.
		if _, _, uerr := tm.parser.ParseUnverified(raw, &Claims{}); uerr == nil {
			return newError(KindInvalidSignature, err)
		}
		return newError(KindMalformedToken, err)
	default:
		return newError(KindMalformedToken, err)
	}
}
