package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header the provider signs webhook deliveries with.
const SignatureHeader = "Payment-Signature"

// SignatureTolerance bounds how stale a signed timestamp may be, guarding
// against replay of captured deliveries.
const SignatureTolerance = 5 * time.Minute

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign computes the signature header value for a payload. Exported for test
// fixtures and the provider simulator; the engine itself only verifies.
func Sign(secret string, at time.Time, payload []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + computeHMAC(secret, ts, payload)
}

// VerifySignature checks a header of the form "t=<unix>,v1=<hex>" against
// the exact raw payload bytes. The comparison is constant-time.
func VerifySignature(secret, header string, payload []byte, now time.Time) error {
	if header == "" {
		return fmt.Errorf("%w: missing header", ErrInvalidSignature)
	}

	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}

	age := now.Sub(time.Unix(unix, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeHMAC(secret, ts, payload)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}

	return nil
}

func computeHMAC(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
