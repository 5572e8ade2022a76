package controlplane

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Signer computes the HMAC-SHA256 request signature the control plane requires on
// every call except the unauthenticated token endpoint.
//
// The MAC is computed over the concatenation ts + method + path + body with no
// delimiter between the fields — this is the source's documented ambiguity
// (spec Open Questions), pinned here as the canonical form so independent
// reimplementations interoperate byte-for-byte.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer from the shared secret. An empty secret is
// not rejected here: New builds no Signer for it, so signed calls return
// ErrMissingSecret, and config.ValidateReady refuses it at boot.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex-encoded MAC for the given request components. ts is
// the Unix-second timestamp; the caller sends the MAC and ts as
// X-HMAC-Signature and X-Timestamp.
func (s *Signer) Sign(ts int64, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
