// Package line implements the subset of the LINE Messaging API this service
// uses: webhook parsing with signature verification, and reply/push delivery.
package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// ValidSignature checks the X-Line-Signature header against the raw request
// body using the channel secret. Comparison is constant time.
func ValidSignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
