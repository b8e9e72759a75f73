// Package crypto provides the cryptographic primitives shared across the
// interceptor: HMAC-bound session identifiers, signed audit payloads, and
// JWT audience verification for the optional handshake-token binding.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// sessionIDVersion is the leading version tag of every session id this
// signer produces. A mismatched version is rejected outright.
const sessionIDVersion = "1"

// SecretKeyLength is the size, in bytes, of a freshly generated HMAC secret.
const SecretKeyLength = 32

var b64 = base64.URLEncoding.WithPadding(base64.NoPadding)

// SessionSigner generates and validates tamper-evident session ids of the
// form "{version}.{uuid_b64}.{hmac_b64}", where the HMAC covers the raw
// UUID bytes under a server-held secret. Possessing a valid session id
// proves the holder received it from this process; it carries no other
// authorization by itself.
type SessionSigner struct {
	secret []byte
}

// NewSessionSigner builds a signer around an explicit secret. The secret
// should be SecretKeyLength bytes or longer; HMAC tolerates shorter keys
// but callers should not rely on that.
func NewSessionSigner(secret []byte) *SessionSigner {
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return &SessionSigner{secret: cp}
}

// NewEphemeralSessionSigner generates a random secret with crypto/rand.
// Sessions signed by one process instance will not validate against
// another unless they share a configured secret.
func NewEphemeralSessionSigner() (*SessionSigner, error) {
	secret := make([]byte, SecretKeyLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("crypto: generating session secret: %w", err)
	}
	return &SessionSigner{secret: secret}, nil
}

// Generate returns a new HMAC-bound session id.
func (s *SessionSigner) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("crypto: generating session uuid: %w", err)
	}
	idBytes := id[:]

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(idBytes)
	sig := mac.Sum(nil)

	return fmt.Sprintf("%s.%s.%s", sessionIDVersion, b64.EncodeToString(idBytes), b64.EncodeToString(sig)), nil
}

// Validate reports whether sessionID was produced by this signer's secret
// and has not been altered. It uses a constant-time comparison on the
// signature to avoid leaking timing information about partial matches.
func (s *SessionSigner) Validate(sessionID string) bool {
	parts := strings.Split(sessionID, ".")
	if len(parts) != 3 {
		return false
	}
	if parts[0] != sessionIDVersion {
		return false
	}

	idBytes, err := b64.DecodeString(parts[1])
	if err != nil {
		return false
	}
	providedSig, err := b64.DecodeString(parts[2])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(idBytes)
	expectedSig := mac.Sum(nil)

	return hmac.Equal(expectedSig, providedSig)
}

// ErrInvalidSessionID is returned by callers that need a typed sentinel
// rather than a bare bool from Validate.
var ErrInvalidSessionID = errors.New("crypto: invalid session id")
