package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrInvalidToken is returned when a token is malformed, badly signed or issued for another audience.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when an otherwise valid token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
)

// MagicLinkClaims are the claims carried by an emailed sign-in link. The jti makes each link single use.
type MagicLinkClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// TokenProvider issues and validates magic-link JWTs using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
	clock      clockwork.Clock
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		clock:      clockwork.NewRealClock(),
	}
}

// WithClock replaces the clock used for iat/exp and validation.
func (p *TokenProvider) WithClock(c clockwork.Clock) *TokenProvider {
	p.clock = c
	return p
}

// TTL is the lifetime of issued links.
func (p *TokenProvider) TTL() time.Duration { return p.ttl }

// IssueMagicLink signs a link token bound to email and redirectTo.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueMagicLink(email, redirectTo string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.clock.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := MagicLinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   email,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:      email,
		RedirectTo: redirectTo,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	method := jwt.GetSigningMethod(KeyAlg(p.privateKey.Public()))
	if method == nil {
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// ValidateMagicLink parses and validates a link token (signature, exp, iss, aud).
// Single use is not enforced here; callers check the jti.
func (p *TokenProvider) ValidateMagicLink(tokenString string) (*MagicLinkClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MagicLinkClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithTimeFunc(p.clock.Now), jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*MagicLinkClaims)
	if !ok || !token.Valid || claims.ID == "" || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
