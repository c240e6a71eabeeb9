package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Session tokens are opaque: HMAC-SHA256 over "sessionID|issuedAt" under the
// gateway secret, base64url encoded. They are deliberately NOT interoperable
// with identity-provider JWTs; a bearer that fails HMAC validation falls
// through to JWT resolution instead.

// TokenSigner issues and validates opaque session tokens.
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner creates a TokenSigner from the gateway secret.
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret)}
}

// Generate returns an opaque token binding the session id to an issue time.
func (t *TokenSigner) Generate(sessionID string) string {
	return t.generateAt(sessionID, time.Now().UTC())
}

func (t *TokenSigner) generateAt(sessionID string, issuedAt time.Time) string {
	payload := sessionID + "|" + strconv.FormatInt(issuedAt.Unix(), 10)
	sig := t.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig
}

// Validate checks a token's signature in constant time and returns the
// session id it was issued for. The session's continued existence is the
// manager's concern; a removed session makes replay fail there.
func (t *TokenSigner) Validate(token string) (string, bool) {
	payloadEnc, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", false
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadEnc)
	if err != nil {
		return "", false
	}
	payload := string(payloadBytes)

	expected := t.sign(payload)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", false
	}

	sessionID, issuedAt, ok := strings.Cut(payload, "|")
	if !ok || sessionID == "" {
		return "", false
	}
	if _, err := strconv.ParseInt(issuedAt, 10, 64); err != nil {
		return "", false
	}

	return sessionID, true
}

// sign computes the base64url HMAC-SHA256 of the payload.
func (t *TokenSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, t.secret)
	fmt.Fprint(mac, payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
