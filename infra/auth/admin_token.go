package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrInvalidClaims   = errors.New("invalid token claims")
	ErrMissingOperator = errors.New("operator missing in token")
	ErrNoSecret        = errors.New("admin secret not configured")
)

const (
	issuer = "paypal-proxy"
	scope  = "admin"

	// DefaultTokenExpiry is used when a token is minted without an expiry
	DefaultTokenExpiry = 12 * time.Hour
)

// AdminClaims are the claims of an operator token
type AdminClaims struct {
	Operator string `json:"operator"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// AdminTokens mints and checks short-lived operator tokens signed with the
// admin API key, so the key itself does not have to be handed out.
type AdminTokens struct {
	secretKey []byte
	now       func() time.Time
}

// NewAdminTokens creates a token service keyed by the admin API key
func NewAdminTokens(secret string) *AdminTokens {
	return &AdminTokens{secretKey: []byte(secret), now: time.Now}
}

// GenerateToken mints an HS256 token for operator valid for expiry
func (s *AdminTokens) GenerateToken(operator string, expiry time.Duration) (string, error) {
	if len(s.secretKey) == 0 {
		return "", ErrNoSecret
	}
	if operator == "" {
		return "", ErrMissingOperator
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}

	now := s.now()
	claims := AdminClaims{
		Operator: operator,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken validates an operator token and returns its claims
func (s *AdminTokens) ValidateToken(tokenString string) (*AdminClaims, error) {
	if len(s.secretKey) == 0 {
		return nil, ErrNoSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || claims.Scope != scope {
		return nil, ErrInvalidClaims
	}
	if claims.Operator == "" {
		return nil, ErrMissingOperator
	}
	return claims, nil
}
