package otp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/MrEthical07/authgate/internal"
)

const nonceBytes = 16

// deriveCode binds a fresh numeric code to user, purpose and issue time.
func deriveCode(key []byte, userID, purpose string, issuedAt time.Time, digits int) (string, error) {
	nonce, err := internal.RandomBytes(nonceBytes)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, key)
	writeField(mac, "code")
	writeField(mac, userID)
	writeField(mac, purpose)
	writeField(mac, strconv.FormatInt(issuedAt.UnixNano(), 10))
	_, _ = mac.Write(nonce)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

// codeHash is the only persisted form of a delivered code.
func codeHash(key []byte, userID, purpose string, issuedAt time.Time, code string) string {
	mac := hmac.New(sha256.New, key)
	writeField(mac, "verify")
	writeField(mac, userID)
	writeField(mac, purpose)
	writeField(mac, strconv.FormatInt(issuedAt.UnixNano(), 10))
	writeField(mac, code)
	return hex.EncodeToString(mac.Sum(nil))
}

func hashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeField(w io.Writer, v string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(v)))
	_, _ = w.Write(n[:])
	_, _ = w.Write([]byte(v))
}
