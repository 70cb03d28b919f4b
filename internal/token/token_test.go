package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func TestRoundTrip(t *testing.T) {
	tok := Create("user@example.com", "campaign-123", testSecret)

	p := Verify(tok, testSecret)
	require.NotNil(t, p)
	assert.Equal(t, "user@example.com", p.Email)
	assert.Equal(t, "campaign-123", p.CampaignID)
}

func TestRoundTripSpecialCharacters(t *testing.T) {
	emails := []string{
		"user+tag@example.com",
		"first.last@sub.example.co.uk",
		"o'brien@example.com",
		"user~!$%&@example.com",
	}
	for _, email := range emails {
		tok := Create(email, "c1", testSecret)
		p := Verify(tok, testSecret)
		require.NotNil(t, p, "email %q should round-trip", email)
		assert.Equal(t, email, p.Email)
	}
}

func TestDeterministic(t *testing.T) {
	a := Create("user@example.com", "c1", testSecret)
	b := Create("user@example.com", "c1", testSecret)
	assert.Equal(t, a, b)
}

func TestWrongSecret(t *testing.T) {
	tok := Create("user@example.com", "c1", testSecret)
	assert.Nil(t, Verify(tok, "a-different-secret"))
}

func TestTamperedSignature(t *testing.T) {
	tok := Create("user@example.com", "c1", testSecret)
	dot := strings.Index(tok, ".")
	sig := tok[dot+1:]

	// Flipping any character of the signature must invalidate the token.
	for i := 0; i < len(sig); i++ {
		flipped := []byte(sig)
		if flipped[i] == 'A' {
			flipped[i] = 'B'
		} else {
			flipped[i] = 'A'
		}
		assert.Nil(t, Verify(tok[:dot+1]+string(flipped), testSecret),
			"flipped signature byte %d should be invalid", i)
	}
}

func TestTamperedPayload(t *testing.T) {
	tok := Create("user@example.com", "c1", testSecret)
	other := Create("attacker@example.com", "c1", testSecret)

	// Payload from one token with signature from another.
	dot := strings.Index(tok, ".")
	otherDot := strings.Index(other, ".")
	spliced := other[:otherDot] + tok[dot:]
	assert.Nil(t, Verify(spliced, testSecret))
}

func TestGarbageInput(t *testing.T) {
	cases := []string{
		"",
		"no-separator",
		".",
		"..",
		"not!base64.not!base64",
		"aGVsbG8.d29ybGQ", // valid base64, wrong signature
		strings.Repeat("A", 10000),
	}
	for _, c := range cases {
		assert.Nil(t, Verify(c, testSecret), "input %q should be invalid", c)
	}
}

func TestNonStringFields(t *testing.T) {
	// A signed token whose payload has the right keys but wrong types must
	// still be rejected.
	encoded := "eyJlbWFpbCI6NDIsImNhbXBhaWduSWQiOnRydWV9" // {"email":42,"campaignId":true}
	tok := encoded + "." + sign(encoded, testSecret)
	assert.Nil(t, Verify(tok, testSecret))
}
