package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"caretrail/internal/platform/middleware"
	"caretrail/pkg/domerrors"
)

// Claims represents the JWT claims for access tokens issued by the auth
// collaborator. Actor identity travels in custom claims so the audit
// subsystem never needs a directory round-trip on the hot path.
type Claims struct {
	ActorID     int64  `json:"actor_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken mints an HS256 token for the given actor. Primarily
// used by tests and local tooling; production tokens come from the auth
// service with the same claim shape.
func (s *JWTService) GenerateAccessToken(actorID int64, role, displayName, sessionID string, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ActorID:     actorID,
		Role:        role,
		DisplayName: displayName,
		SessionID:   sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

// ValidateToken parses and verifies a token, returning middleware claims.
func (s *JWTService) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, domerrors.Wrap(domerrors.CodeUnauthorized, "invalid token", err)
	}
	if !token.Valid {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "invalid token")
	}
	if claims.Role == "" {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "token missing role claim")
	}

	return &middleware.JWTClaims{
		ActorID:     claims.ActorID,
		Role:        claims.Role,
		DisplayName: claims.DisplayName,
		FirstName:   claims.FirstName,
		LastName:    claims.LastName,
		SessionID:   claims.SessionID,
	}, nil
}
