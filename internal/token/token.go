// Package token signs and verifies self-contained unsubscribe tokens.
//
// A token is the base64url-encoded JSON payload {email, campaignId},
// followed by a dot and the base64url-encoded HMAC-SHA256 of the encoded
// payload. No server-side state is needed to validate one, and a token
// stays valid until the signing secret rotates: validity means "signature
// matches", never "not expired".
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Payload is the data carried inside an unsubscribe token.
type Payload struct {
	Email      string `json:"email"`
	CampaignID string `json:"campaignId"`
}

// Create builds a signed unsubscribe token for the given recipient and
// campaign. Equal inputs always yield equal tokens; there is no embedded
// randomness or expiry.
func Create(email, campaignID, secret string) string {
	payload, _ := json.Marshal(Payload{Email: email, CampaignID: campaignID})
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + sign(encoded, secret)
}

// Verify checks a token's signature and structure. It returns the decoded
// payload, or nil for any invalid input: missing separator, malformed
// base64, signature mismatch, bad JSON, or wrong field types. It never
// panics on garbage input.
func Verify(tok, secret string) *Payload {
	dot := strings.Index(tok, ".")
	if dot < 0 {
		return nil
	}
	encoded, sig := tok[:dot], tok[dot+1:]

	sigBytes, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil
	}
	expected, err := base64.RawURLEncoding.DecodeString(sign(encoded, secret))
	if err != nil {
		return nil
	}
	// Length mismatch short-circuits to invalid before the constant-time
	// compare; hmac.Equal itself is constant-time for equal lengths.
	if len(sigBytes) != len(expected) {
		return nil
	}
	if !hmac.Equal(sigBytes, expected) {
		return nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	// Decode into loose types first so a non-string email/campaignId is
	// rejected rather than silently coerced.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	var p Payload
	if err := json.Unmarshal(fields["email"], &p.Email); err != nil {
		return nil
	}
	if err := json.Unmarshal(fields["campaignId"], &p.CampaignID); err != nil {
		return nil
	}
	return &p
}

func sign(encodedPayload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encodedPayload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
