package stream

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance bounds how far the signed timestamp may drift from now.
const SignatureTolerance = 5 * time.Minute

// SignatureHeader is where the host puts "time=<unix>,sig1=<hex>".
const SignatureHeader = "Webhook-Signature"

// Verifier checks webhook signatures against a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Configured reports whether a secret is set; without one every signature is
// rejected.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.secret) > 0
}

// Verify checks header against the raw, unparsed body. It fails closed on any
// malformed input.
func (v *Verifier) Verify(header string, body []byte) bool {
	if !v.Configured() || header == "" {
		return false
	}

	sig, ok := ParseSignatureHeader(header)
	if !ok {
		return false
	}

	skew := v.now().Unix() - sig.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(SignatureTolerance/time.Second) {
		return false
	}

	expected := Sign(v.secret, sig.Timestamp, body)
	return constantTimeEqual(expected, strings.ToLower(sig.Signature))
}

type Signature struct {
	Timestamp int64
	Signature string
}

// ParseSignatureHeader extracts time and sig1 from a comma separated
// key=value list. Unknown keys are ignored.
func ParseSignatureHeader(header string) (Signature, bool) {
	var out Signature
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || key == "" || value == "" {
			continue
		}
		switch key {
		case "time":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Signature{}, false
			}
			out.Timestamp = ts
		case "sig1":
			out.Signature = value
		}
	}
	if out.Timestamp == 0 || out.Signature == "" {
		return Signature{}, false
	}
	return out, true
}

// Sign returns hex(HMAC-SHA256(secret, "<timestamp>.<body>")).
func Sign(secret []byte, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue formats a header value for the given body, as the host
// would send it.
func SignatureHeaderValue(secret string, at time.Time, body []byte) string {
	ts := at.Unix()
	return "time=" + strconv.FormatInt(ts, 10) + ",sig1=" + Sign([]byte(secret), ts, body)
}

// constantTimeEqual only short-circuits on a length mismatch.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var mismatch byte
	for i := 0; i < len(a); i++ {
		mismatch |= a[i] ^ b[i]
	}
	return mismatch == 0
}
