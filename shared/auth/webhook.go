// Package auth guards the inbound HTTP surfaces: GitHub webhook signatures on
// ingress and bearer tokens on storage event pushes.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// VerifyWebhookSignature checks an X-Hub-Signature-256 header ("sha256=<hex>") against body.
func VerifyWebhookSignature(secret, body []byte, header string) error {
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}
