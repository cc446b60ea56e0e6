package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
)

const signaturePrefix = "sha256="

// Sign returns the X-Hub-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func Verify(secret string, body []byte, signature string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}

// VerifyRequest checks the signature header of an incoming hub delivery and
// returns the body it read. Receivers in the other services use it.
func VerifyRequest(secret string, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false
	}
	return body, Verify(secret, body, r.Header.Get(HeaderSignature))
}
