package crypto

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAudienceMismatch is returned when a JWT validates but names none of
// the expected audiences.
var ErrAudienceMismatch = errors.New("crypto: token audience does not match expected audience")

// AudienceVerifier checks the optional JWT handshake token against a fixed
// HS256 secret and an expected audience set. This binds a handshake to a
// specific deployment without requiring the full OAuth dance the upstream
// MCP transport may otherwise demand.
type AudienceVerifier struct {
	secret           []byte
	expectedAudience []string
}

// NewAudienceVerifier builds a verifier for the given secret and the set
// of audiences this deployment accepts.
func NewAudienceVerifier(secret []byte, expectedAudience []string) *AudienceVerifier {
	return &AudienceVerifier{secret: secret, expectedAudience: expectedAudience}
}

// Verify parses and validates tokenString as an HS256 JWT, then checks
// that its "aud" claim intersects the configured expected audience. It
// returns the parsed claims on success.
func (v *AudienceVerifier) Verify(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing jwt: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("crypto: jwt failed validation")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("crypto: jwt claims are not a map")
	}

	if len(v.expectedAudience) == 0 {
		return claims, nil
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("crypto: reading jwt audience: %w", err)
	}
	for _, want := range v.expectedAudience {
		for _, got := range aud {
			if want == got {
				return claims, nil
			}
		}
	}
	return nil, ErrAudienceMismatch
}
