package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

const DefaultClockSkew = 30 * time.Second

// Reason classifies why a token was rejected. It is surfaced to the
// client in the error message of the INVALID_TOKEN response.
type Reason string

const (
	ReasonMissing   Reason = "missing"
	ReasonMalformed Reason = "malformed"
	ReasonSignature Reason = "signature"
	ReasonExpired   Reason = "expired"
	ReasonRevoked   Reason = "revoked"
)

// TokenError is returned by Validate for any rejected token.
type TokenError struct {
	Reason Reason
}

func (e *TokenError) Error() string {
	switch e.Reason {
	case ReasonMissing:
		return "missing bearer token"
	case ReasonSignature:
		return "JWT token signature verification failed"
	case ReasonExpired:
		return "JWT token has expired"
	case ReasonRevoked:
		return "JWT token has been revoked"
	default:
		return "malformed JWT token"
	}
}

// Claims is the expected claim set of the platform's access tokens.
type Claims struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity is the verified claim set of one request. It is created by
// Validate, consumed by the identity header injection and discarded
// with the request.
type Identity struct {
	SubjectID string
	Username  string
	Email     string
	Roles     []string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenHash string
}

// Options to initialize a Validator.
type Options struct {
	// Keys configures signature verification: a URL pointing to a
	// JWKS endpoint, an inline JWKS document, or otherwise a shared
	// HMAC secret.
	Keys string

	// ClockSkew is the accepted leeway when checking exp and iat.
	ClockSkew time.Duration

	// Revocations, when set, is consulted with the token's jti.
	Revocations RevocationStore
}

// Validator checks bearer tokens and extracts the identity claims.
type Validator struct {
	keys        jwt.Keyfunc
	parser      *jwt.Parser
	revocations RevocationStore
	close       func()
}

// NewValidator initializes a Validator from the options. Close must be
// called when a JWKS URL is configured to stop the background refresh.
func NewValidator(o Options) (*Validator, error) {
	if o.Keys == "" {
		return nil, errors.New("no token verification keys configured")
	}

	if o.ClockSkew == 0 {
		o.ClockSkew = DefaultClockSkew
	}

	v := &Validator{
		parser:      jwt.NewParser(jwt.WithLeeway(o.ClockSkew)),
		revocations: o.Revocations,
		close:       func() {},
	}

	switch {
	case strings.HasPrefix(o.Keys, "http://"), strings.HasPrefix(o.Keys, "https://"):
		jwks, err := keyfunc.Get(o.Keys, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.Errorf("failed to refresh JWKS: %v", err)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load JWKS from %s: %w", o.Keys, err)
		}

		v.keys = jwks.Keyfunc
		v.close = jwks.EndBackground
	case strings.HasPrefix(strings.TrimSpace(o.Keys), "{"):
		jwks, err := keyfunc.NewJSON([]byte(o.Keys))
		if err != nil {
			return nil, fmt.Errorf("failed to parse inline JWKS: %w", err)
		}

		v.keys = jwks.Keyfunc
	default:
		secret := []byte(o.Keys)
		v.keys = func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}

			return secret, nil
		}
	}

	return v, nil
}

// Close releases background resources of the validator.
func (v *Validator) Close() {
	v.close()
}

// Validate checks the Authorization header value and returns the
// verified identity. All rejections are reported as *TokenError.
func (v *Validator) Validate(ctx context.Context, authorization string) (*Identity, error) {
	if authorization == "" {
		return nil, &TokenError{Reason: ReasonMissing}
	}

	const prefix = "bearer "
	if len(authorization) <= len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return nil, &TokenError{Reason: ReasonMalformed}
	}

	raw := strings.TrimSpace(authorization[len(prefix):])

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, v.keys)
	if err != nil {
		return nil, &TokenError{Reason: rejectionReason(err)}
	}

	if claims.ExpiresAt == nil {
		return nil, &TokenError{Reason: ReasonMalformed}
	}

	if v.revocations != nil && claims.ID != "" {
		revoked, err := v.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			// the store guarantees are eventually consistent anyway,
			// prefer availability over a hard dependency on it
			log.Warnf("revocation check failed for jti %s: %v", claims.ID, err)
		} else if revoked {
			return nil, &TokenError{Reason: ReasonRevoked}
		}
	}

	hash := sha256.Sum256([]byte(raw))

	id := &Identity{
		SubjectID: claims.Subject,
		Username:  claims.Username,
		Email:     claims.Email,
		Roles:     claims.Roles,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenHash: hex.EncodeToString(hash[:]),
	}

	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}

	return id, nil
}

func rejectionReason(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignature
	default:
		return ReasonMalformed
	}
}
