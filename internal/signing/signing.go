// Package signing generates and verifies HMAC signatures for time-limited
// download links to uploaded documents.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for a file of a batch valid until expiresUnix.
func (s *Signer) Sign(batchID, fileID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	// The canonical payload fixes the field order.
	fmt.Fprintf(mac, "%s:%s:%d", batchID, fileID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one.
func (s *Signer) Validate(batchID, fileID, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(batchID, fileID, exp)
	// hmac.Equal performs constant-time comparison to avoid timing attacks.
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Expired reports whether the expires parameter lies in the past.
func (s *Signer) Expired(expires string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return true
	}
	return time.Unix(exp, 0).Before(s.now())
}
