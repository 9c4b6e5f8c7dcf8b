// Package token implements the Token Verifier (spec §4.5): a stateless
// validator of HMAC-SHA256 playback tokens with a precise, fixed-order
// error taxonomy. The wire format (b64url(payload).b64url(hmac)) is a
// bit-exact custom construction, not JWT/JWS, so it is built directly on
// crypto/hmac rather than the teacher's golang-jwt/jwt library — see
// DESIGN.md for the full justification.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Error codes, in the fixed verification order spec §4.5 mandates.
const (
	ErrMissing          = "PLAYBACK_TOKEN_MISSING"
	ErrFormatInvalid    = "PLAYBACK_TOKEN_FORMAT_INVALID"
	ErrSignatureInvalid = "PLAYBACK_TOKEN_SIGNATURE_INVALID"
	ErrPayloadInvalid   = "PLAYBACK_TOKEN_PAYLOAD_INVALID"
	ErrExpired          = "PLAYBACK_TOKEN_EXPIRED"
)

// VerifyError wraps one of the Err* codes above.
type VerifyError struct {
	Code string
}

func (e *VerifyError) Error() string { return e.Code }

func fail(code string) error { return &VerifyError{Code: code} }

// Payload is the token's signed claim set, with exactly the keys spec §4.5
// requires.
type Payload struct {
	Sub string `json:"sub"`
	Tid string `json:"tid"`
	Cid string `json:"cid"`
	Sid string `json:"sid"`
	Exp int64  `json:"exp"`
	Iat int64  `json:"iat"`
	V   int    `json:"v"`
}

func (p Payload) valid() bool {
	return p.Sub != "" && p.Tid != "" && p.Cid != "" && p.Sid != "" && p.Exp > 0 && p.Iat > 0 && p.V == 1
}

// Verifier validates tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// New constructs a Verifier for the given shared secret.
func New(secret []byte) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// Verify runs the fixed-order checks from spec §4.5 and returns the decoded
// payload on success. The first failing check determines the returned
// error; later checks never run once an earlier one fails.
func (v *Verifier) Verify(raw string) (*Payload, error) {
	if raw == "" {
		return nil, fail(ErrMissing)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fail(ErrFormatInvalid)
	}
	encodedPayload, encodedSig := parts[0], parts[1]

	expectedSig := v.sign(encodedPayload)
	gotSig, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil || !constantTimeEqual(gotSig, expectedSig) {
		return nil, fail(ErrSignatureInvalid)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, fail(ErrPayloadInvalid)
	}
	var payload Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil || !payload.valid() {
		return nil, fail(ErrPayloadInvalid)
	}

	if payload.Exp <= v.now().Unix() {
		return nil, fail(ErrExpired)
	}

	return &payload, nil
}

// sign computes HMAC-SHA256(secret, encodedPayload) — the textual encoded
// form is signed, not the raw JSON, so canonicalization is never required.
func (v *Verifier) sign(encodedPayload string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(encodedPayload))
	return mac.Sum(nil)
}

// constantTimeEqual compares two byte slices without leaking timing
// information about length or content equality, including when lengths
// differ (a length mismatch must be rejected with the same code as a
// content mismatch — spec §4.5 / §8 property 5).
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		// Still perform a constant-time comparison against a same-length
		// buffer so the branch above doesn't become a timing oracle on its
		// own; the overall result is false regardless.
		subtle.ConstantTimeCompare(a, a)
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Mint encodes and signs a payload, producing a token in the wire format
// described by spec §6. It is exported for use by the control-plane
// collaborator's stand-in in tests, not by the data plane itself.
func (v *Verifier) Mint(p Payload) (string, error) {
	payloadBytes, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	sig := v.sign(encodedPayload)
	encodedSig := base64.RawURLEncoding.EncodeToString(sig)
	return encodedPayload + "." + encodedSig, nil
}
