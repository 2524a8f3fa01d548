package cardgen

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HashHMAC computes HMAC-SHA256 over a normalized card number using a secret
// key (pepper). The database stores this hash instead of the clear number;
// callers must sanitize logs separately.
func HashHMAC(number string, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(number))
	return h.Sum(nil)
}
