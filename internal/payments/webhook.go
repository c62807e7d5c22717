package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Tolerance is the accepted clock skew between the webhook timestamp and now.
const Tolerance = 5 * time.Minute

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Standard Webhooks header names.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

func secretBytes(secret string) []byte {
	s := strings.TrimPrefix(secret, "whsec_")
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}

// Sign returns the v1 signature header value for a delivery.
func Sign(secret, id string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, secretBytes(secret))
	fmt.Fprintf(mac, "%s.%d.", id, timestamp)
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a delivery against the shared secret following the Standard
// Webhooks scheme. Any mismatch is reported as ErrInvalidSignature.
func Verify(secret string, h http.Header, body []byte, now time.Time) error {
	id := h.Get(HeaderID)
	tsRaw := h.Get(HeaderTimestamp)
	sigs := h.Get(HeaderSignature)
	if id == "" || tsRaw == "" || sigs == "" {
		return fmt.Errorf("%w: missing headers", ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	sent := time.Unix(ts, 0)
	if now.Sub(sent) > Tolerance || sent.Sub(now) > Tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	want := Sign(secret, id, ts, body)
	for _, sig := range strings.Fields(sigs) {
		if hmac.Equal([]byte(sig), []byte(want)) {
			return nil
		}
	}
	return ErrInvalidSignature
}
