package jwttoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "crvs/pkg/domain-errors"
	strs "crvs/pkg/platform/strings"
)

// Claims is the access token issued to registration staff and to the
// country configuration service. Scope is a space separated list of scope
// strings such as record.declare[event=birth].
type Claims struct {
	Scope           string `json:"scope"`
	Role            string `json:"role,omitempty"`
	PrimaryOfficeID string `json:"primaryOfficeId,omitempty"`
	jwt.RegisteredClaims
}

// Scopes splits the scope claim, dropping repeats.
func (c *Claims) Scopes() []string {
	return strs.Fields(c.Scope)
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
}

func NewJWTService(signingKey string, issuer string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// TokenRequest describes a token to issue.
type TokenRequest struct {
	Subject         string
	Role            string
	PrimaryOfficeID string
	Scopes          []string
	ExpiresIn       time.Duration
}

// IssueAccessToken signs a token for local development and tests. Production
// tokens come from the identity provider sharing the signing key.
func (s *JWTService) IssueAccessToken(req TokenRequest) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scope:           strings.Join(req.Scopes, " "),
		Role:            req.Role,
		PrimaryOfficeID: req.PrimaryOfficeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(req.ExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return claims, nil
}
