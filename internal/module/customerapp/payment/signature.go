package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseSignatureHeader splits an x-signature value of the form
// "ts=1704908010,v1=618c8534...". Unknown parts are ignored.
func ParseSignatureHeader(header string) (ts string, v1 string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		}
	}

	return ts, v1, ts != "" && v1 != ""
}

// Manifest is the exact string the provider signs.
func Manifest(dataID, requestID, ts string) string {
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
}

func Sign(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook's x-signature header in constant time.
func VerifySignature(secret, header, requestID, dataID string) bool {
	if secret == "" {
		return false
	}

	ts, v1, ok := ParseSignatureHeader(header)
	if !ok {
		return false
	}

	expected := Sign(secret, Manifest(dataID, requestID, ts))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(v1)))
}
