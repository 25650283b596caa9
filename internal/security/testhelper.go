package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"time"
)

// Issuer and audience of NewTestTokenProvider. Links it signs expire after an hour.
const (
	TestIssuer   = "workforce-auth-test"
	TestAudience = "workforce-magic-link-test"
)

// testKey is generated once per test binary and never persisted.
var testKey = sync.OnceValues(func() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
})

// NewTestTokenProvider returns a TokenProvider over a process-local P-256 key. For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := testKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, key.Public(), TestIssuer, TestAudience, time.Hour), nil
}

// testKeyPEMs returns the test key pair as PKCS#8 and PKIX PEM.
func testKeyPEMs() (privatePEM, publicPEM string, err error) {
	key, err := testKey()
	if err != nil {
		return "", "", err
	}
	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", err
	}
	pub, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return "", "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: priv})),
		string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})), nil
}
