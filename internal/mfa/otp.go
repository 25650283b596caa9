// Package mfa holds the one-time code primitives shared by the SMS and WhatsApp channels.
package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

// CodeLength is the number of digits in a one-time code.
const CodeLength = 6

var ten = big.NewInt(10)

// GenerateOTP returns a 6-digit numeric OTP string (e.g. "042917").
// Each digit is drawn uniformly from crypto/rand.
func GenerateOTP() (string, error) {
	s := make([]byte, CodeLength)
	for i := range s {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}

// ValidCodeFormat reports whether code is exactly CodeLength ASCII digits.
func ValidCodeFormat(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// HashOTP returns a SHA-256 hash of the OTP string, hex-encoded.
func HashOTP(otp string) string {
	h := sha256.Sum256([]byte(otp))
	return hex.EncodeToString(h[:])
}

// OTPEqual performs constant-time comparison of the provided OTP's hash with the stored hash.
func OTPEqual(providedOTP, storedHash string) bool {
	providedHash := HashOTP(providedOTP)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
