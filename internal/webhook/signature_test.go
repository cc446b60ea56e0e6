package webhook

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	body := []byte(`{"lead_id":"42"}`)

	sig := Sign("secret", body)

	assert.True(t, len(sig) > len(signaturePrefix))
	assert.Equal(t, signaturePrefix, sig[:len(signaturePrefix)])
	assert.Equal(t, sig, Sign("secret", body), "signing is deterministic")
	assert.NotEqual(t, sig, Sign("other", body))
}

func TestVerify(t *testing.T) {
	secret := "hub-secret"
	body := []byte(`{"event":"lead.created"}`)
	valid := Sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		expected  bool
	}{
		{"valid signature", secret, body, valid, true},
		{"missing prefix", secret, body, valid[len(signaturePrefix):], false},
		{"garbage", secret, body, "sha256=zz", false},
		{"wrong secret", "nope", body, valid, false},
		{"modified body", secret, []byte(`{"event":"lead.updated"}`), valid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Verify(tt.secret, tt.body, tt.signature))
		})
	}
}

func TestVerifyRequest(t *testing.T) {
	body := []byte(`{"a":1}`)
	req := httptest.NewRequest("POST", "/hook", bytes.NewReader(body))
	req.Header.Set(HeaderSignature, Sign("s", body))

	got, ok := VerifyRequest("s", req)
	require.True(t, ok)
	assert.Equal(t, body, got)
}
