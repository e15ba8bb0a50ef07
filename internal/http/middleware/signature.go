package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignPayload returns the hex HMAC-SHA256 of payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 header value, with or without a
// "sha256=" prefix, in constant time.
func VerifySignature(payload []byte, header, secret string) bool {
	sig := strings.TrimSpace(header)
	secret = strings.TrimSpace(secret)
	if sig == "" || secret == "" {
		return false
	}
	sig = strings.TrimPrefix(strings.ToLower(sig), "sha256=")

	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}
