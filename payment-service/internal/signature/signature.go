// Package signature computes and checks the HMAC-SHA256 tags the payment
// gateway attaches to checkout callbacks and webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

var ErrEmptySecret = errors.New("signature secret must not be empty")

// Sign returns the lowercase hex HMAC-SHA256 of message.
func Sign(secret, message []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyEquals compares two tags in constant time.
func VerifyEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// PaymentMessage is the message signed for checkout callbacks: "<order id>|<payment id>".
func PaymentMessage(gatewayOrderID, gatewayPaymentID string) []byte {
	return []byte(gatewayOrderID + "|" + gatewayPaymentID)
}

// Verifier binds a secret so callers never handle key material directly.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func (v *Verifier) Sign(message []byte) string {
	return Sign(v.secret, message)
}

// Verify reports whether tag is the signature of message. An empty tag never verifies.
func (v *Verifier) Verify(message []byte, tag string) bool {
	if tag == "" {
		return false
	}
	return VerifyEquals(v.Sign(message), tag)
}

func (v *Verifier) VerifyPayment(gatewayOrderID, gatewayPaymentID, tag string) bool {
	return v.Verify(PaymentMessage(gatewayOrderID, gatewayPaymentID), tag)
}
