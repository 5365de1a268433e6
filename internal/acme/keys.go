package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/go-acme/lego/v4/certcrypto"
)

// Supported key types, named as the console sends them
const (
	KeyTypeP256    = "P256"
	KeyTypeP384    = "P384"
	KeyTypeRSA2048 = "2048"
	KeyTypeRSA3072 = "3072"
	KeyTypeRSA4096 = "4096"
	KeyTypeRSA8192 = "8192"
)

var keyTypes = map[string]certcrypto.KeyType{
	KeyTypeP256:    certcrypto.EC256,
	KeyTypeP384:    certcrypto.EC384,
	KeyTypeRSA2048: certcrypto.RSA2048,
	KeyTypeRSA3072: certcrypto.RSA3072,
	KeyTypeRSA4096: certcrypto.RSA4096,
	KeyTypeRSA8192: certcrypto.RSA8192,
}

// KeyTypes lists the supported key types in display order
func KeyTypes() []string {
	return []string{KeyTypeP256, KeyTypeP384, KeyTypeRSA2048, KeyTypeRSA3072, KeyTypeRSA4096, KeyTypeRSA8192}
}

// ValidKeyType reports whether kt is supported
func ValidKeyType(kt string) bool {
	_, ok := keyTypes[kt]
	return ok
}

// GenerateKey creates a key pair of the requested type
func GenerateKey(kt string) (crypto.Signer, error) {
	legoType, ok := keyTypes[kt]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeyType, kt)
	}

	key, err := certcrypto.GeneratePrivateKey(legoType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", kt, err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("generated %s key is not a signer", kt)
	}
	return signer, nil
}

// EncodeKey returns the PEM form of key
func EncodeKey(key crypto.Signer) []byte {
	return certcrypto.PEMEncode(key)
}

// DecodeKey parses a PEM private key
func DecodeKey(pemKey []byte) (crypto.Signer, error) {
	key, err := certcrypto.ParsePEMPrivateKey(pemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("private key is not a signer")
	}
	return signer, nil
}

// KeyTypeOf returns the key type matching key, or "" when it matches none
func KeyTypeOf(key crypto.PublicKey) string {
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return KeyTypeP256
		case elliptic.P384():
			return KeyTypeP384
		}
	case *rsa.PublicKey:
		switch k.N.BitLen() {
		case 2048:
			return KeyTypeRSA2048
		case 3072:
			return KeyTypeRSA3072
		case 4096:
			return KeyTypeRSA4096
		case 8192:
			return KeyTypeRSA8192
		}
	}
	return ""
}
