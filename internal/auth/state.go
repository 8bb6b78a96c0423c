package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
)

const (
	defaultStateTTL      = 10 * time.Minute
	maxOutstandingStates = 4096
)

type stateClaims struct {
	Platform    string `json:"plt"`
	RedirectURI string `json:"rdr,omitempty"`
	jwt.RegisteredClaims
}

// StateIssuer signs OAuth state tokens and accepts each one once.
type StateIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	nonces *expirable.LRU[string, string]
}

// NewStateIssuer constructs an issuer signing with secret.
func NewStateIssuer(secret string, ttl time.Duration) *StateIssuer {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		nonces: expirable.NewLRU[string, string](maxOutstandingStates, nil, ttl),
	}
}

// Issue returns a signed state bound to platformID and redirectURI.
func (s *StateIssuer) Issue(platformID, redirectURI string) (string, error) {
	nonce, err := randomHex(16)
	if err != nil {
		return "", err
	}
	now := s.now()
	claims := stateClaims{
		Platform:    platformID,
		RedirectURI: redirectURI,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	s.nonces.Add(nonce, platformID)
	return signed, nil
}

// Verify checks signature, expiry and binding, then consumes the state.
// An empty redirectURI skips the redirect binding check.
func (s *StateIssuer) Verify(platformID, state, redirectURI string) error {
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}
	if claims.Platform != platformID {
		return fmt.Errorf("%w: issued for %s", domain.ErrInvalidState, claims.Platform)
	}
	if redirectURI != "" && claims.RedirectURI != redirectURI {
		return fmt.Errorf("%w: redirect uri mismatch", domain.ErrInvalidState)
	}
	if !s.nonces.Remove(claims.ID) {
		return fmt.Errorf("%w: already used or unknown", domain.ErrInvalidState)
	}
	return nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
