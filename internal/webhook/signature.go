package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignatureHeader is the provider's webhook signature header.
const SignatureHeader = "x-vapi-signature"

// VerifySignature checks that body was signed with the tenant's public key:
// hex(HMAC-SHA256(publicKey, body)) compared in constant time.
//
// It returns false on every failure mode (missing key, malformed hex,
// mismatch) without distinguishing them, so the endpoint can't be used as a
// signature oracle.
func VerifySignature(body []byte, signature, publicKey string) bool {
	if publicKey == "" || signature == "" {
		return false
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(publicKey))
	mac.Write(body)
	want := mac.Sum(nil)

	return subtle.ConstantTimeCompare(want, got) == 1
}

// Sign computes the hex signature for body. Used by tests and by outbound
// webhook tooling.
func Sign(body []byte, publicKey string) string {
	mac := hmac.New(sha256.New, []byte(publicKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
