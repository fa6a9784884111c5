package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"
)

// SignatureVerifier checks the HMAC signature the schedule publisher puts
// on dispatch webhook requests. Verification happens before any request
// side effects.
type SignatureVerifier struct {
	algorithm string
	secret    string
	encoding  string
	prefix    string
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{
		algorithm: "sha256",
		secret:    secret,
		encoding:  "hex",
		prefix:    "sha256=",
	}
}

func (v *SignatureVerifier) WithAlgorithm(algorithm string) *SignatureVerifier {
	v.algorithm = algorithm
	return v
}

func (v *SignatureVerifier) WithEncoding(encoding string) *SignatureVerifier {
	v.encoding = encoding
	return v
}

func (v *SignatureVerifier) WithPrefix(prefix string) *SignatureVerifier {
	v.prefix = prefix
	return v
}

func (v *SignatureVerifier) Verify(payload []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, v.prefix)
	expected := strings.TrimPrefix(v.Sign(payload), v.prefix)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWithTimestamp binds the signature to a unix timestamp so captured
// requests cannot be replayed after tolerance elapses. The signed string
// is "<timestamp>.<payload>".
func (v *SignatureVerifier) VerifyWithTimestamp(payload []byte, timestamp, signature string, tolerance time.Duration) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if d := time.Since(time.Unix(ts, 0)); d > tolerance || d < -tolerance {
		return false
	}

	signed := fmt.Sprintf("%s.%s", timestamp, payload)
	return v.Verify([]byte(signed), signature)
}

func (v *SignatureVerifier) Sign(payload []byte) string {
	var h hash.Hash
	switch strings.ToLower(v.algorithm) {
	case "sha512":
		h = hmac.New(sha512.New, []byte(v.secret))
	default:
		h = hmac.New(sha256.New, []byte(v.secret))
	}

	h.Write(payload)
	sum := h.Sum(nil)

	var encoded string
	switch strings.ToLower(v.encoding) {
	case "base64":
		encoded = base64.StdEncoding.EncodeToString(sum)
	default:
		encoded = hex.EncodeToString(sum)
	}

	return v.prefix + encoded
}
